package server

import (
	"github.com/tturner/enipcore/internal/cip/codec"
	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/cip/spec"
)

// Identity holds the Identity object (class 0x01, instance 1) attributes.
type Identity struct {
	VendorID    uint16
	DeviceType  uint16
	ProductCode uint16
	RevMajor    uint8
	RevMinor    uint8
	Status      uint16
	Serial      uint32
	ProductName string
}

// DefaultIdentity describes a generic communications adapter.
func DefaultIdentity() Identity {
	return Identity{
		VendorID:    0x0001,
		DeviceType:  0x000C,
		ProductCode: 0x0001,
		RevMajor:    1,
		RevMinor:    1,
		Serial:      0x00C0FFEE,
		ProductName: "enipcore target",
	}
}

// Attribute returns the encoded value of one Identity attribute.
func (id Identity) Attribute(attribute uint16) ([]byte, bool) {
	switch attribute {
	case 1:
		return codec.AppendUint16(nil, id.VendorID), true
	case 2:
		return codec.AppendUint16(nil, id.DeviceType), true
	case 3:
		return codec.AppendUint16(nil, id.ProductCode), true
	case 4:
		return []byte{id.RevMajor, id.RevMinor}, true
	case 5:
		return codec.AppendUint16(nil, id.Status), true
	case 6:
		return codec.AppendUint32(nil, id.Serial), true
	case 7:
		return shortString(id.ProductName), true
	default:
		return nil, false
	}
}

// All returns attributes 1 through 7 back to back, the Get_Attribute_All layout.
func (id Identity) All() []byte {
	var out []byte
	for attr := uint16(1); attr <= 7; attr++ {
		value, _ := id.Attribute(attr)
		out = append(out, value...)
	}
	return out
}

func shortString(value string) []byte {
	data := []byte(value)
	if len(data) > 255 {
		data = data[:255]
	}
	return append([]byte{byte(len(data))}, data...)
}

func (s *Server) handleIdentity(service protocol.CIPServiceCode, path protocol.CIPPath) *protocol.MessageRouterResponse {
	if path.Instance != 1 {
		return statusReply(service, protocol.StatusObjectDoesNotExist)
	}
	id := s.cfg.Identity
	switch service {
	case spec.CIPServiceGetAttributeSingle:
		if !path.HasAttribute {
			return statusReply(service, protocol.StatusPathSegmentError)
		}
		value, ok := id.Attribute(path.Attribute)
		if !ok {
			return statusReply(service, protocol.StatusAttributeNotSupported)
		}
		return &protocol.MessageRouterResponse{ReplyService: service.Reply(), Data: value}
	case spec.CIPServiceGetAttributeAll:
		return &protocol.MessageRouterResponse{ReplyService: service.Reply(), Data: id.All()}
	default:
		return statusReply(service, protocol.StatusServiceNotSupported)
	}
}
