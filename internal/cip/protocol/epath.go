package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tturner/enipcore/internal/cip/codec"
)

// CIPPath represents a CIP logical path (class/instance/attribute).
type CIPPath struct {
	Class     uint16
	Instance  uint16
	Attribute uint16
	// HasAttribute is false for services addressed to an instance only.
	HasAttribute bool
}

func (p CIPPath) String() string {
	if p.HasAttribute {
		return fmt.Sprintf("0x%02X/%d/%d", p.Class, p.Instance, p.Attribute)
	}
	return fmt.Sprintf("0x%02X/%d", p.Class, p.Instance)
}

// EPATH logical segment types.
const (
	EPathSegmentClassID     = 0x20
	EPathSegmentInstanceID  = 0x24
	EPathSegmentAttributeID = 0x30

	epathSegment16 = 0x01
)

// Well-known object classes used by the envelope.
const (
	ClassIdentity          uint16 = 0x01
	ClassMessageRouter     uint16 = 0x02
	ClassConnectionManager uint16 = 0x06
)

// ConnectionManagerPath addresses instance 1 of the Connection Manager, the
// target of every Unconnected Send.
var ConnectionManagerPath = []byte{EPathSegmentClassID, byte(ClassConnectionManager), EPathSegmentInstanceID, 0x01}

func appendLogical(epath []byte, segment byte, value uint16) []byte {
	if value <= 0xFF {
		return append(epath, segment, uint8(value))
	}
	// Padded EPATH: 16-bit values are preceded by a pad byte.
	epath = append(epath, segment|epathSegment16, 0x00)
	return codec.AppendUint16(epath, value)
}

// LogicalSegment encodes one 8- or 16-bit logical segment.
func LogicalSegment(segment byte, value uint16) []byte {
	return appendLogical(nil, segment, value)
}

// EncodeEPATH encodes a CIP path into padded EPATH format.
func EncodeEPATH(path CIPPath) []byte {
	var epath []byte
	epath = appendLogical(epath, EPathSegmentClassID, path.Class)
	epath = appendLogical(epath, EPathSegmentInstanceID, path.Instance)
	if path.HasAttribute {
		epath = appendLogical(epath, EPathSegmentAttributeID, path.Attribute)
	}
	return epath
}

// ParseEPATH decodes logical class/instance/attribute segments. Port segments
// are skipped; anything else is rejected.
func ParseEPATH(data []byte) (CIPPath, error) {
	var path CIPPath
	offset := 0
	for offset < len(data) {
		seg := data[offset]
		if seg&0xE0 == 0x00 {
			next, err := skipPortSegment(data, offset)
			if err != nil {
				return path, err
			}
			offset = next
			continue
		}
		base := seg &^ epathSegment16
		offset++
		var value uint16
		if seg&epathSegment16 != 0 {
			offset++ // pad
			v, err := codec.GetUint16(data, &offset)
			if err != nil {
				return path, fmt.Errorf("%w: 16-bit segment 0x%02X: %v", ErrInvalidPath, seg, err)
			}
			value = v
		} else {
			v, err := codec.GetUint8(data, &offset)
			if err != nil {
				return path, fmt.Errorf("%w: 8-bit segment 0x%02X: %v", ErrInvalidPath, seg, err)
			}
			value = uint16(v)
		}
		switch base {
		case EPathSegmentClassID:
			path.Class = value
		case EPathSegmentInstanceID:
			path.Instance = value
		case EPathSegmentAttributeID:
			path.Attribute = value
			path.HasAttribute = true
		default:
			return path, fmt.Errorf("%w: unsupported segment 0x%02X", ErrInvalidPath, seg)
		}
	}
	return path, nil
}

func skipPortSegment(data []byte, offset int) (int, error) {
	seg := data[offset]
	offset++
	if seg&0x0F == 0x0F {
		offset += 2
	}
	if seg&0x10 != 0 {
		size, err := codec.GetUint8(data, &offset)
		if err != nil {
			return offset, fmt.Errorf("%w: port link size: %v", ErrInvalidPath, err)
		}
		offset += int(size)
	} else {
		offset++
	}
	if offset > len(data) {
		return offset, fmt.Errorf("%w: incomplete port segment", ErrInvalidPath)
	}
	if offset%2 == 1 && offset < len(data) {
		offset++
	}
	return offset, nil
}

// PortSegment encodes a route hop: a port number and its link address.
// Link addresses longer than one byte use the extended link form.
func PortSegment(port uint16, link []byte) ([]byte, error) {
	if len(link) == 0 {
		return nil, fmt.Errorf("%w: empty link address", ErrInvalidPath)
	}
	var seg []byte
	head := byte(0)
	if port < 0x0F {
		head = byte(port)
	} else {
		head = 0x0F
	}
	if len(link) > 1 {
		head |= 0x10
	}
	seg = append(seg, head)
	if len(link) > 1 {
		if len(link) > 0xFF {
			return nil, fmt.Errorf("%w: link address of %d bytes", ErrInvalidPath, len(link))
		}
		seg = append(seg, byte(len(link)))
	}
	if head&0x0F == 0x0F {
		seg = codec.AppendUint16(seg, port)
	}
	seg = append(seg, link...)
	if len(seg)%2 != 0 {
		seg = append(seg, 0x00)
	}
	return seg, nil
}

// BackplaneRoute is the common one-hop route: port 1 (backplane) to a slot.
func BackplaneRoute(slot uint8) []byte {
	return []byte{0x01, slot}
}

// ParseRoute parses "port,link[/port,link...]" (e.g. "1,0" or "2,192.168.1.10/1,3")
// into a route path.
func ParseRoute(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty route", ErrInvalidRoutePath)
	}
	var route []byte
	for _, hop := range strings.Split(input, "/") {
		parts := strings.SplitN(strings.TrimSpace(hop), ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: hop %q is not port,link", ErrInvalidRoutePath, hop)
		}
		port, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 0, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("%w: invalid port in %q", ErrInvalidRoutePath, hop)
		}
		linkText := strings.TrimSpace(parts[1])
		var link []byte
		if n, err := strconv.ParseUint(linkText, 0, 8); err == nil {
			link = []byte{byte(n)}
		} else {
			link = []byte(linkText)
		}
		seg, err := PortSegment(uint16(port), link)
		if err != nil {
			return nil, err
		}
		route = append(route, seg...)
	}
	return route, nil
}
