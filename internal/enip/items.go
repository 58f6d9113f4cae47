package enip

import (
	"errors"
	"fmt"

	"github.com/tturner/enipcore/internal/cip/codec"
	"github.com/tturner/enipcore/internal/cip/protocol"
)

// ItemType is a Common Packet Format item type ID.
type ItemType uint16

// CPF item type IDs.
const (
	ItemNullAddress          ItemType = 0x0000
	ItemListIdentityResponse ItemType = 0x000C
	ItemConnectedAddress     ItemType = 0x00A1
	ItemConnectedData        ItemType = 0x00B1
	ItemUnconnectedData      ItemType = 0x00B2
	ItemListServicesResponse ItemType = 0x0100
	ItemSockAddrO2T          ItemType = 0x8000
	ItemSockAddrT2O          ItemType = 0x8001
	ItemSequencedAddress     ItemType = 0x8002
)

func (t ItemType) String() string {
	switch t {
	case ItemNullAddress:
		return "Null"
	case ItemListIdentityResponse:
		return "ListIdentityResponse"
	case ItemConnectedAddress:
		return "ConnectedAddress"
	case ItemConnectedData:
		return "ConnectedData"
	case ItemUnconnectedData:
		return "UnconnectedData"
	case ItemListServicesResponse:
		return "ListServicesResponse"
	case ItemSockAddrO2T:
		return "SockAddrInfo-O2T"
	case ItemSockAddrT2O:
		return "SockAddrInfo-T2O"
	case ItemSequencedAddress:
		return "SequencedAddress"
	default:
		return fmt.Sprintf("Item(0x%04X)", uint16(t))
	}
}

const itemHeaderSize = 4

// ErrUnsupportedItemKind is reported for item type IDs this package does not
// decode. The item is still skipped by its advertised length.
var ErrUnsupportedItemKind = errors.New("unsupported CPF item kind")

// Item is one CPF address or data item. The set of kinds is closed.
type Item interface {
	Type() ItemType
	// Length is the size of the kind-specific fields.
	Length() int
	// EncodedSize is Length plus the 4-byte item header.
	EncodedSize() int
	encodeBody(buf []byte, offset *int) error
}

// NullAddressItem is the address item for unconnected messages.
type NullAddressItem struct{}

func (NullAddressItem) Type() ItemType                        { return ItemNullAddress }
func (NullAddressItem) Length() int                           { return 0 }
func (NullAddressItem) EncodedSize() int                      { return itemHeaderSize }
func (NullAddressItem) encodeBody(buf []byte, off *int) error { return nil }

// ConnectedAddressItem carries a connection identifier.
type ConnectedAddressItem struct {
	ConnectionID uint32
}

func (ConnectedAddressItem) Type() ItemType     { return ItemConnectedAddress }
func (ConnectedAddressItem) Length() int        { return 4 }
func (i ConnectedAddressItem) EncodedSize() int { return itemHeaderSize + i.Length() }
func (i ConnectedAddressItem) encodeBody(buf []byte, off *int) error {
	return codec.PutUint32(buf, off, i.ConnectionID)
}

// SequencedAddressItem carries a connection identifier and sequence number.
type SequencedAddressItem struct {
	ConnectionID   uint32
	SequenceNumber uint32
}

func (SequencedAddressItem) Type() ItemType     { return ItemSequencedAddress }
func (SequencedAddressItem) Length() int        { return 8 }
func (i SequencedAddressItem) EncodedSize() int { return itemHeaderSize + i.Length() }
func (i SequencedAddressItem) encodeBody(buf []byte, off *int) error {
	if err := codec.PutUint32(buf, off, i.ConnectionID); err != nil {
		return err
	}
	return codec.PutUint32(buf, off, i.SequenceNumber)
}

// ConnectedDataItem carries connected (class 3) transport data. Connected
// messaging is not driven by the session; the payload is kept opaque.
type ConnectedDataItem struct {
	Data []byte
}

func (ConnectedDataItem) Type() ItemType     { return ItemConnectedData }
func (i ConnectedDataItem) Length() int      { return len(i.Data) }
func (i ConnectedDataItem) EncodedSize() int { return itemHeaderSize + i.Length() }
func (i ConnectedDataItem) encodeBody(buf []byte, off *int) error {
	return codec.PutBytes(buf, off, i.Data)
}

// UnconnectedDataItem carries a Message Router request or reply. Exactly one
// of Request, Response or Raw is set; Raw holds a body that was not decoded.
type UnconnectedDataItem struct {
	Request  *protocol.MessageRouterRequest
	Response *protocol.MessageRouterResponse
	Raw      []byte
}

// NewUnconnectedDataItem builds the data item for a routed request: an
// Unconnected Send to the Connection Manager wrapping service/requestPath/requestData.
func NewUnconnectedDataItem(service protocol.CIPServiceCode, routePath, requestPath, requestData []byte, opts ...protocol.UnconnectedSendOption) (UnconnectedDataItem, error) {
	ucs, err := protocol.NewUnconnectedSendRequest(service, routePath, requestPath, requestData, opts...)
	if err != nil {
		return UnconnectedDataItem{}, err
	}
	outer, err := ucs.EncodeMessageRouter()
	if err != nil {
		return UnconnectedDataItem{}, err
	}
	return UnconnectedDataItem{Request: &outer}, nil
}

func (UnconnectedDataItem) Type() ItemType { return ItemUnconnectedData }

func (i UnconnectedDataItem) Length() int {
	switch {
	case i.Request != nil:
		return i.Request.EncodedSize()
	case i.Response != nil:
		return i.Response.EncodedSize()
	default:
		return len(i.Raw)
	}
}

func (i UnconnectedDataItem) EncodedSize() int { return itemHeaderSize + i.Length() }

func (i UnconnectedDataItem) encodeBody(buf []byte, off *int) error {
	switch {
	case i.Request != nil:
		return i.Request.EncodeTo(buf, off)
	case i.Response != nil:
		b, err := i.Response.Encode()
		if err != nil {
			return err
		}
		return codec.PutBytes(buf, off, b)
	default:
		return codec.PutBytes(buf, off, i.Raw)
	}
}

// SockAddrInfoItem describes a socket address for class 0/1 connections. Its
// fields are big-endian, unlike the rest of the encapsulation.
type SockAddrInfoItem struct {
	Direction ItemType // ItemSockAddrO2T or ItemSockAddrT2O
	Family    int16
	Port      uint16
	Addr      uint32
	Zero      [8]byte
}

func (i SockAddrInfoItem) Type() ItemType {
	if i.Direction == ItemSockAddrT2O {
		return ItemSockAddrT2O
	}
	return ItemSockAddrO2T
}
func (SockAddrInfoItem) Length() int        { return 16 }
func (i SockAddrInfoItem) EncodedSize() int { return itemHeaderSize + i.Length() }
func (i SockAddrInfoItem) encodeBody(buf []byte, off *int) error {
	if err := codec.PutInt16BE(buf, off, i.Family); err != nil {
		return err
	}
	if err := codec.PutUint16BE(buf, off, i.Port); err != nil {
		return err
	}
	if err := codec.PutUint32BE(buf, off, i.Addr); err != nil {
		return err
	}
	return codec.PutBytes(buf, off, i.Zero[:])
}

// ListIdentityResponseItem is the identity item of a ListIdentity reply.
type ListIdentityResponseItem struct {
	Data []byte
}

func (ListIdentityResponseItem) Type() ItemType     { return ItemListIdentityResponse }
func (i ListIdentityResponseItem) Length() int      { return len(i.Data) }
func (i ListIdentityResponseItem) EncodedSize() int { return itemHeaderSize + i.Length() }
func (i ListIdentityResponseItem) encodeBody(buf []byte, off *int) error {
	return codec.PutBytes(buf, off, i.Data)
}

// ListServicesResponseItem is the service item of a ListServices reply.
type ListServicesResponseItem struct {
	Data []byte
}

func (ListServicesResponseItem) Type() ItemType     { return ItemListServicesResponse }
func (i ListServicesResponseItem) Length() int      { return len(i.Data) }
func (i ListServicesResponseItem) EncodedSize() int { return itemHeaderSize + i.Length() }
func (i ListServicesResponseItem) encodeBody(buf []byte, off *int) error {
	return codec.PutBytes(buf, off, i.Data)
}

// UnsupportedItem holds an item with an unknown type ID. Its bytes are kept so
// the surrounding packet re-encodes unchanged, but its fields are not known.
type UnsupportedItem struct {
	TypeID ItemType
	Data   []byte
}

func (i UnsupportedItem) Type() ItemType   { return i.TypeID }
func (i UnsupportedItem) Length() int      { return len(i.Data) }
func (i UnsupportedItem) EncodedSize() int { return itemHeaderSize + i.Length() }
func (i UnsupportedItem) encodeBody(buf []byte, off *int) error {
	return codec.PutBytes(buf, off, i.Data)
}

// Err reports the item as ErrUnsupportedItemKind.
func (i UnsupportedItem) Err() error {
	return fmt.Errorf("%w: type 0x%04X, %d bytes", ErrUnsupportedItemKind, uint16(i.TypeID), len(i.Data))
}

// EncodeItem serializes type, length and the kind-specific fields.
func EncodeItem(item Item) ([]byte, error) {
	buf := make([]byte, item.EncodedSize())
	offset := 0
	if err := encodeItemTo(buf, &offset, item); err != nil {
		return nil, err
	}
	return buf, nil
}

func encodeItemTo(buf []byte, offset *int, item Item) error {
	length := item.Length()
	if length > 0xFFFF {
		return fmt.Errorf("%w: %s item of %d bytes", ErrFormat, item.Type(), length)
	}
	if err := codec.PutUint16(buf, offset, uint16(item.Type())); err != nil {
		return err
	}
	if err := codec.PutUint16(buf, offset, uint16(length)); err != nil {
		return err
	}
	start := *offset
	if err := item.encodeBody(buf, offset); err != nil {
		return err
	}
	if *offset-start != length {
		return fmt.Errorf("%w: %s item wrote %d bytes, declared %d", ErrFormat, item.Type(), *offset-start, length)
	}
	return nil
}

// DecodeOptions selects how ambiguous item bodies are read.
type DecodeOptions struct {
	// Responses decodes unconnected data items as Message Router replies
	// instead of requests.
	Responses bool
}

// DecodeItem reads one item at offset and returns the offset after it. An
// unknown type ID yields an UnsupportedItem, not an error.
func DecodeItem(buf []byte, offset int, opts DecodeOptions) (Item, int, error) {
	typeID, err := codec.GetUint16(buf, &offset)
	if err != nil {
		return nil, offset, fmt.Errorf("%w: item type: %v", ErrFormat, err)
	}
	length, err := codec.GetUint16(buf, &offset)
	if err != nil {
		return nil, offset, fmt.Errorf("%w: item length: %v", ErrFormat, err)
	}
	body, err := codec.GetBytes(buf, &offset, int(length))
	if err != nil {
		return nil, offset, fmt.Errorf("%w: %s item declares %d bytes: %v", ErrFormat, ItemType(typeID), length, err)
	}
	item, err := decodeItemBody(ItemType(typeID), body, opts)
	if err != nil {
		return nil, offset, err
	}
	return item, offset, nil
}

func decodeItemBody(kind ItemType, body []byte, opts DecodeOptions) (Item, error) {
	expect := func(n int) error {
		if len(body) != n {
			return fmt.Errorf("%w: %s item length %d, want %d", ErrFormat, kind, len(body), n)
		}
		return nil
	}
	pos := 0
	switch kind {
	case ItemNullAddress:
		if err := expect(0); err != nil {
			return nil, err
		}
		return NullAddressItem{}, nil
	case ItemConnectedAddress:
		if err := expect(4); err != nil {
			return nil, err
		}
		id, _ := codec.GetUint32(body, &pos)
		return ConnectedAddressItem{ConnectionID: id}, nil
	case ItemSequencedAddress:
		if err := expect(8); err != nil {
			return nil, err
		}
		id, _ := codec.GetUint32(body, &pos)
		seq, _ := codec.GetUint32(body, &pos)
		return SequencedAddressItem{ConnectionID: id, SequenceNumber: seq}, nil
	case ItemConnectedData:
		return ConnectedDataItem{Data: body}, nil
	case ItemUnconnectedData:
		return decodeUnconnectedData(body, opts)
	case ItemSockAddrO2T, ItemSockAddrT2O:
		if err := expect(16); err != nil {
			return nil, err
		}
		item := SockAddrInfoItem{Direction: kind}
		item.Family, _ = codec.GetInt16BE(body, &pos)
		item.Port, _ = codec.GetUint16BE(body, &pos)
		item.Addr, _ = codec.GetUint32BE(body, &pos)
		copy(item.Zero[:], body[pos:])
		return item, nil
	case ItemListIdentityResponse:
		return ListIdentityResponseItem{Data: body}, nil
	case ItemListServicesResponse:
		return ListServicesResponseItem{Data: body}, nil
	default:
		return UnsupportedItem{TypeID: kind, Data: body}, nil
	}
}

func decodeUnconnectedData(body []byte, opts DecodeOptions) (Item, error) {
	if opts.Responses {
		resp, err := protocol.DecodeMessageRouterResponse(body, 0, len(body))
		if err != nil {
			return nil, fmt.Errorf("unconnected data reply: %w", err)
		}
		return UnconnectedDataItem{Response: resp}, nil
	}
	req, err := protocol.DecodeMessageRouterRequest(body)
	if err != nil {
		return nil, fmt.Errorf("unconnected data request: %w", err)
	}
	return UnconnectedDataItem{Request: &req}, nil
}
