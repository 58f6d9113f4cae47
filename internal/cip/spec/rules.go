package spec

import (
	"fmt"

	"github.com/tturner/enipcore/internal/cip/protocol"
)

// Rule is a shape check applied to a service body.
type Rule interface {
	Name() string
	CheckRequest(payload []byte) error
	CheckResponse(payload []byte) error
}

// UnconnectedSendRule requires an embedded request and a valid route.
type UnconnectedSendRule struct{}

func (UnconnectedSendRule) Name() string {
	return "unconnected_send_embedded"
}

func (UnconnectedSendRule) CheckRequest(payload []byte) error {
	if _, err := protocol.DecodeUnconnectedSendRequest(payload); err != nil {
		return fmt.Errorf("embedded request: %w", err)
	}
	return nil
}

// CheckResponse accepts any body: a successful reply carries the target's
// reply data, which has no fixed shape here.
func (UnconnectedSendRule) CheckResponse(payload []byte) error {
	return nil
}

// MultipleServiceRule requires a count and an offset table that fits the body.
type MultipleServiceRule struct{}

func (MultipleServiceRule) Name() string {
	return "multiple_service_offsets"
}

func (MultipleServiceRule) CheckRequest(payload []byte) error {
	return checkOffsetTable(payload)
}

func (MultipleServiceRule) CheckResponse(payload []byte) error {
	return checkOffsetTable(payload)
}

func checkOffsetTable(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("missing service count")
	}
	count := int(payload[0]) | int(payload[1])<<8
	if count == 0 {
		return fmt.Errorf("service count is zero")
	}
	table := 2 + 2*count
	if len(payload) < table {
		return fmt.Errorf("offset table needs %d bytes, have %d", table, len(payload))
	}
	for i := 0; i < count; i++ {
		off := int(payload[2+2*i]) | int(payload[3+2*i])<<8
		if off < table || off >= len(payload) {
			return fmt.Errorf("offset %d of service %d outside body", off, i)
		}
	}
	return nil
}
