package enip

import (
	"errors"
	"fmt"

	"github.com/tturner/enipcore/internal/cip/codec"
)

// ErrInvalidItemSequence is returned when an unconnected packet is not
// exactly {Null address, Unconnected data}.
var ErrInvalidItemSequence = errors.New("invalid CPF item sequence")

// DefaultMaxItems bounds the declared item count accepted by decoders.
const DefaultMaxItems = 16

// CommonPacketFormat is an ordered list of address and data items.
type CommonPacketFormat struct {
	Items []Item
}

// NewUnconnectedCPF builds the packet for unconnected explicit messaging.
func NewUnconnectedCPF(items ...Item) (CommonPacketFormat, error) {
	if len(items) != 2 {
		return CommonPacketFormat{}, fmt.Errorf("%w: %d items, want Null then UnconnectedData", ErrInvalidItemSequence, len(items))
	}
	if _, ok := items[0].(NullAddressItem); !ok {
		return CommonPacketFormat{}, fmt.Errorf("%w: first item is %s, want Null", ErrInvalidItemSequence, items[0].Type())
	}
	if _, ok := items[1].(UnconnectedDataItem); !ok {
		return CommonPacketFormat{}, fmt.Errorf("%w: second item is %s, want UnconnectedData", ErrInvalidItemSequence, items[1].Type())
	}
	return CommonPacketFormat{Items: items}, nil
}

// ItemCount is the number of items.
func (c CommonPacketFormat) ItemCount() int {
	return len(c.Items)
}

// EncodedSize is 2 plus each item's encoded size.
func (c CommonPacketFormat) EncodedSize() int {
	size := 2
	for _, item := range c.Items {
		size += item.EncodedSize()
	}
	return size
}

// Encode writes the item count followed by each item in order.
func (c CommonPacketFormat) Encode() ([]byte, error) {
	buf := make([]byte, c.EncodedSize())
	offset := 0
	if err := c.EncodeTo(buf, &offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo writes the packet into buf at offset.
func (c CommonPacketFormat) EncodeTo(buf []byte, offset *int) error {
	if len(c.Items) > 0xFFFF {
		return fmt.Errorf("%w: %d items", ErrFormat, len(c.Items))
	}
	if err := codec.PutUint16(buf, offset, uint16(len(c.Items))); err != nil {
		return err
	}
	for i, item := range c.Items {
		if err := encodeItemTo(buf, offset, item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// DecodeCommonPacketFormat reads a packet at offset. It stops after the
// declared item count and returns the offset after the last item; trailing
// bytes are left alone. A count above maxItems is ErrFormat.
func DecodeCommonPacketFormat(buf []byte, offset int, maxItems int, opts DecodeOptions) (CommonPacketFormat, int, error) {
	count, err := codec.GetUint16(buf, &offset)
	if err != nil {
		return CommonPacketFormat{}, offset, fmt.Errorf("%w: item count: %v", ErrFormat, err)
	}
	if maxItems > 0 && int(count) > maxItems {
		return CommonPacketFormat{}, offset, fmt.Errorf("%w: %d items exceeds limit %d", ErrFormat, count, maxItems)
	}
	cpf := CommonPacketFormat{Items: make([]Item, 0, count)}
	for i := 0; i < int(count); i++ {
		item, next, err := DecodeItem(buf, offset, opts)
		if err != nil {
			return CommonPacketFormat{}, offset, fmt.Errorf("item %d: %w", i, err)
		}
		cpf.Items = append(cpf.Items, item)
		offset = next
	}
	return cpf, offset, nil
}

// UnconnectedData returns the first unconnected data item.
func (c CommonPacketFormat) UnconnectedData() (UnconnectedDataItem, bool) {
	for _, item := range c.Items {
		if data, ok := item.(UnconnectedDataItem); ok {
			return data, true
		}
	}
	return UnconnectedDataItem{}, false
}

// Unsupported returns the items whose type IDs were not recognized.
func (c CommonPacketFormat) Unsupported() []UnsupportedItem {
	var out []UnsupportedItem
	for _, item := range c.Items {
		if u, ok := item.(UnsupportedItem); ok {
			out = append(out, u)
		}
	}
	return out
}
