package spec

import "github.com/tturner/enipcore/internal/cip/protocol"

// CIP service codes.
const (
	CIPServiceGetAttributeAll      protocol.CIPServiceCode = 0x01
	CIPServiceSetAttributeAll      protocol.CIPServiceCode = 0x02
	CIPServiceGetAttributeList     protocol.CIPServiceCode = 0x03
	CIPServiceSetAttributeList     protocol.CIPServiceCode = 0x04
	CIPServiceReset                protocol.CIPServiceCode = 0x05
	CIPServiceStart                protocol.CIPServiceCode = 0x06
	CIPServiceStop                 protocol.CIPServiceCode = 0x07
	CIPServiceCreate               protocol.CIPServiceCode = 0x08
	CIPServiceDelete               protocol.CIPServiceCode = 0x09
	CIPServiceMultipleService      protocol.CIPServiceCode = protocol.ServiceMultipleServicePacket
	CIPServiceApplyAttributes      protocol.CIPServiceCode = 0x0D
	CIPServiceGetAttributeSingle   protocol.CIPServiceCode = protocol.ServiceGetAttributeSingle
	CIPServiceSetAttributeSingle   protocol.CIPServiceCode = 0x10
	CIPServiceFindNextObjectInst   protocol.CIPServiceCode = 0x11
	CIPServiceRestore              protocol.CIPServiceCode = 0x15
	CIPServiceSave                 protocol.CIPServiceCode = 0x16
	CIPServiceNoOp                 protocol.CIPServiceCode = 0x17
	CIPServiceGetMember            protocol.CIPServiceCode = 0x18
	CIPServiceSetMember            protocol.CIPServiceCode = 0x19
	CIPServiceExecutePCCC          protocol.CIPServiceCode = 0x4B
	CIPServiceReadTag              protocol.CIPServiceCode = 0x4C
	CIPServiceWriteTag             protocol.CIPServiceCode = 0x4D
	CIPServiceForwardClose         protocol.CIPServiceCode = 0x4E
	CIPServiceUnconnectedSend      protocol.CIPServiceCode = protocol.ServiceUnconnectedSend
	CIPServiceForwardOpen          protocol.CIPServiceCode = 0x54
	CIPServiceGetConnectionData    protocol.CIPServiceCode = 0x56
	CIPServiceSearchConnectionData protocol.CIPServiceCode = 0x57
	CIPServiceLargeForwardOpen     protocol.CIPServiceCode = 0x5B
)

// Services that share a code with the Connection Manager ones on other classes.
const (
	CIPServiceReadModifyWrite    protocol.CIPServiceCode = CIPServiceForwardClose
	CIPServiceReadTagFragmented  protocol.CIPServiceCode = CIPServiceUnconnectedSend
	CIPServiceWriteTagFragmented protocol.CIPServiceCode = 0x53
)

// CIP object classes.
const (
	CIPClassIdentity          uint16 = protocol.ClassIdentity
	CIPClassMessageRouter     uint16 = protocol.ClassMessageRouter
	CIPClassAssembly          uint16 = 0x04
	CIPClassConnectionManager uint16 = protocol.ClassConnectionManager
	CIPClassFileObject        uint16 = 0x37
	CIPClassPCCCObject        uint16 = 0x67
	CIPClassSymbolObject      uint16 = 0x6B
	CIPClassTemplateObject    uint16 = 0x6C
	CIPClassPort              uint16 = 0xF4
	CIPClassTCPIPInterface    uint16 = 0xF5
	CIPClassEthernetLink      uint16 = 0xF6
)
