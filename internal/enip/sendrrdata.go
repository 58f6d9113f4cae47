package enip

import (
	"fmt"

	"github.com/tturner/enipcore/internal/cip/codec"
	"github.com/tturner/enipcore/internal/cip/protocol"
)

// InterfaceHandleCIP is the only interface handle defined for CIP.
const InterfaceHandleCIP uint32 = 0

// SendRRData is the command-specific data of a SendRRData request or reply.
type SendRRData struct {
	InterfaceHandle uint32
	// Timeout is in seconds; targets ignore it for unconnected messages,
	// which carry their own timeout in the Unconnected Send request.
	Timeout uint16
	Packet  CommonPacketFormat
}

// NewSendRRData builds a routed request: the data item carries an
// Unconnected Send that delivers service/requestPath/requestData along routePath.
func NewSendRRData(service protocol.CIPServiceCode, routePath, requestPath, requestData []byte, opts ...protocol.UnconnectedSendOption) (SendRRData, error) {
	item, err := NewUnconnectedDataItem(service, routePath, requestPath, requestData, opts...)
	if err != nil {
		return SendRRData{}, err
	}
	cpf, err := NewUnconnectedCPF(NullAddressItem{}, item)
	if err != nil {
		return SendRRData{}, err
	}
	return SendRRData{InterfaceHandle: InterfaceHandleCIP, Packet: cpf}, nil
}

// NewDirectSendRRData builds a request addressed to the target itself, with
// no Unconnected Send wrapper.
func NewDirectSendRRData(req protocol.MessageRouterRequest) (SendRRData, error) {
	cpf, err := NewUnconnectedCPF(NullAddressItem{}, UnconnectedDataItem{Request: &req})
	if err != nil {
		return SendRRData{}, err
	}
	return SendRRData{InterfaceHandle: InterfaceHandleCIP, Packet: cpf}, nil
}

// EncodedSize is the serialized length.
func (s SendRRData) EncodedSize() int {
	return 6 + s.Packet.EncodedSize()
}

// Encode writes interface handle, timeout and the CPF.
func (s SendRRData) Encode() ([]byte, error) {
	buf := make([]byte, s.EncodedSize())
	offset := 0
	if err := codec.PutUint32(buf, &offset, s.InterfaceHandle); err != nil {
		return nil, err
	}
	if err := codec.PutUint16(buf, &offset, s.Timeout); err != nil {
		return nil, err
	}
	if err := s.Packet.EncodeTo(buf, &offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeSendRRData parses SendRRData command-specific data.
func DecodeSendRRData(buf []byte, opts DecodeOptions) (SendRRData, error) {
	var s SendRRData
	offset := 0
	var err error
	if s.InterfaceHandle, err = codec.GetUint32(buf, &offset); err != nil {
		return s, fmt.Errorf("%w: interface handle: %v", ErrFormat, err)
	}
	if s.Timeout, err = codec.GetUint16(buf, &offset); err != nil {
		return s, fmt.Errorf("%w: timeout: %v", ErrFormat, err)
	}
	if s.Packet, _, err = DecodeCommonPacketFormat(buf, offset, DefaultMaxItems, opts); err != nil {
		return s, err
	}
	return s, nil
}

// Reply returns the Message Router reply carried by a decoded SendRRData reply.
func (s SendRRData) Reply() (*protocol.MessageRouterResponse, error) {
	item, ok := s.Packet.UnconnectedData()
	if !ok {
		return nil, fmt.Errorf("%w: reply has no unconnected data item", ErrFormat)
	}
	if item.Response == nil {
		return nil, fmt.Errorf("%w: unconnected data item is not a reply", ErrFormat)
	}
	return item.Response, nil
}
