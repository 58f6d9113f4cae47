package protocol

import (
	"fmt"
	"strings"
)

const symbolicSegment = 0x91

// BuildSymbolicEPATH builds an EPATH from a dotted tag name using ANSI
// extended symbolic segments. Each member is padded to a word boundary.
func BuildSymbolicEPATH(tag string) ([]byte, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag", ErrInvalidPath)
	}
	var epath []byte
	for _, member := range strings.Split(tag, ".") {
		if member == "" {
			return nil, fmt.Errorf("%w: empty member in tag %q", ErrInvalidPath, tag)
		}
		if len(member) > 0xFF {
			return nil, fmt.Errorf("%w: member %q longer than 255 bytes", ErrInvalidPath, member)
		}
		epath = append(epath, symbolicSegment, byte(len(member)))
		epath = append(epath, member...)
		if len(member)%2 != 0 {
			epath = append(epath, 0x00)
		}
	}
	return epath, nil
}

// DecodeSymbolicEPATH reverses BuildSymbolicEPATH.
func DecodeSymbolicEPATH(data []byte) (string, error) {
	if len(data) < 2 || data[0] != symbolicSegment {
		return "", fmt.Errorf("%w: not a symbolic EPATH", ErrInvalidPath)
	}
	var members []string
	offset := 0
	for offset < len(data) {
		if data[offset] != symbolicSegment {
			return "", fmt.Errorf("%w: segment 0x%02X at %d is not symbolic", ErrInvalidPath, data[offset], offset)
		}
		if offset+2 > len(data) {
			return "", fmt.Errorf("%w: truncated symbolic segment", ErrInvalidPath)
		}
		n := int(data[offset+1])
		offset += 2
		if offset+n > len(data) {
			return "", fmt.Errorf("%w: symbolic segment declares %d bytes, %d left", ErrInvalidPath, n, len(data)-offset)
		}
		members = append(members, string(data[offset:offset+n]))
		offset += n
		if n%2 != 0 {
			offset++
		}
	}
	return strings.Join(members, "."), nil
}
