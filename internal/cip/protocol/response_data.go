package protocol

import (
	"fmt"
	"sync"

	"github.com/tturner/enipcore/internal/cip/codec"
)

// ResponseData is a typed reply body selected by the request service code.
type ResponseData interface {
	Service() CIPServiceCode
}

// ResponseDecoder turns a successful reply body into typed data.
type ResponseDecoder func(data []byte) (ResponseData, error)

var (
	decodersMu sync.RWMutex
	decoders   = map[CIPServiceCode]ResponseDecoder{}
)

// The Multiple Service decoder decodes embedded replies through the registry
// itself, so it is installed at init rather than in the map literal.
func init() {
	RegisterResponseDecoder(ServiceMultipleServicePacket, decodeMultipleServiceResponse)
}

// RegisterResponseDecoder installs (or with nil, removes) the decoder for a
// request service code. Services without a decoder keep their raw Data only.
func RegisterResponseDecoder(service CIPServiceCode, decoder ResponseDecoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	if decoder == nil {
		delete(decoders, service.Request())
		return
	}
	decoders[service.Request()] = decoder
}

func lookupDecoder(service CIPServiceCode) (ResponseDecoder, bool) {
	decodersMu.RLock()
	defer decodersMu.RUnlock()
	d, ok := decoders[service]
	return d, ok
}

// decodeResponseData never fails the enclosing reply: an unknown service or a
// body the decoder rejects both leave ResponseData nil.
func decodeResponseData(service CIPServiceCode, data []byte) ResponseData {
	decoder, ok := lookupDecoder(service)
	if !ok {
		return nil
	}
	out, err := decoder(data)
	if err != nil {
		return nil
	}
	return out
}

// MultipleServiceResponse is the body of a Multiple Service Packet reply.
type MultipleServiceResponse struct {
	Replies []*MessageRouterResponse
}

func (MultipleServiceResponse) Service() CIPServiceCode { return ServiceMultipleServicePacket }

func decodeMultipleServiceResponse(data []byte) (ResponseData, error) {
	offset := 0
	count, err := codec.GetUint16(data, &offset)
	if err != nil {
		return nil, fmt.Errorf("%w: reply count: %v", ErrFormat, err)
	}
	offsets := make([]int, count)
	for i := range offsets {
		v, err := codec.GetUint16(data, &offset)
		if err != nil {
			return nil, fmt.Errorf("%w: reply offset %d: %v", ErrFormat, i, err)
		}
		offsets[i] = int(v)
	}
	out := MultipleServiceResponse{Replies: make([]*MessageRouterResponse, 0, count)}
	for i, start := range offsets {
		end := len(data)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		if start >= end || end > len(data) {
			return nil, fmt.Errorf("%w: reply %d spans [%d,%d) of %d bytes", ErrFormat, i, start, end, len(data))
		}
		reply, err := DecodeMessageRouterResponse(data, start, end-start)
		if err != nil {
			return nil, fmt.Errorf("reply %d: %w", i, err)
		}
		out.Replies = append(out.Replies, reply)
	}
	return out, nil
}

// BuildMultipleServiceRequest packs requests behind a count and offset table.
func BuildMultipleServiceRequest(requests []MessageRouterRequest) ([]byte, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("multiple service packet needs at least one request")
	}
	encoded := make([][]byte, 0, len(requests))
	for i, req := range requests {
		b, err := req.Encode()
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		encoded = append(encoded, b)
	}
	header := 2 + 2*len(encoded)
	out := codec.AppendUint16(nil, uint16(len(encoded)))
	next := header
	for _, b := range encoded {
		if next > 0xFFFF {
			return nil, fmt.Errorf("multiple service packet exceeds 65535 bytes")
		}
		out = codec.AppendUint16(out, uint16(next))
		next += len(b)
	}
	for _, b := range encoded {
		out = append(out, b...)
	}
	return out, nil
}

// DecodeMultipleServiceRequest unpacks the requests of a Multiple Service Packet.
func DecodeMultipleServiceRequest(data []byte) ([]MessageRouterRequest, error) {
	offset := 0
	count, err := codec.GetUint16(data, &offset)
	if err != nil {
		return nil, fmt.Errorf("%w: request count: %v", ErrFormat, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: multiple service packet with no requests", ErrFormat)
	}
	offsets := make([]int, count)
	for i := range offsets {
		v, err := codec.GetUint16(data, &offset)
		if err != nil {
			return nil, fmt.Errorf("%w: request offset %d: %v", ErrFormat, i, err)
		}
		offsets[i] = int(v)
	}
	requests := make([]MessageRouterRequest, 0, count)
	for i, start := range offsets {
		end := len(data)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		if start < offset || start >= end || end > len(data) {
			return nil, fmt.Errorf("%w: request %d spans [%d,%d) of %d bytes", ErrFormat, i, start, end, len(data))
		}
		req, err := DecodeMessageRouterRequest(data[start:end])
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// BuildMultipleServiceResponse packs replies behind a count and offset table.
func BuildMultipleServiceResponse(replies []*MessageRouterResponse) ([]byte, error) {
	out := codec.AppendUint16(nil, uint16(len(replies)))
	encoded := make([][]byte, 0, len(replies))
	next := 2 + 2*len(replies)
	for i, reply := range replies {
		b, err := reply.Encode()
		if err != nil {
			return nil, fmt.Errorf("reply %d: %w", i, err)
		}
		if next > 0xFFFF {
			return nil, fmt.Errorf("%w: multiple service reply exceeds 65535 bytes", ErrFormat)
		}
		out = codec.AppendUint16(out, uint16(next))
		next += len(b)
		encoded = append(encoded, b)
	}
	for _, b := range encoded {
		out = append(out, b...)
	}
	return out, nil
}
