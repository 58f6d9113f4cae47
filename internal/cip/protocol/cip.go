package protocol

// CIP (Common Industrial Protocol) Message Router encoding and decoding.

import (
	"errors"
	"fmt"

	"github.com/tturner/enipcore/internal/cip/codec"
)

// CIPServiceCode represents a CIP service code.
type CIPServiceCode uint8

// ReplyFlag is set on the service code of every Message Router reply.
const ReplyFlag CIPServiceCode = 0x80

// Services the envelope itself needs to know about.
const (
	ServiceMultipleServicePacket CIPServiceCode = 0x0A
	ServiceGetAttributeSingle    CIPServiceCode = 0x0E
	ServiceUnconnectedSend       CIPServiceCode = 0x52
)

// IsReply reports whether the reply bit is set.
func (s CIPServiceCode) IsReply() bool {
	return s&ReplyFlag != 0
}

// Reply returns the reply code for a request service.
func (s CIPServiceCode) Reply() CIPServiceCode {
	return s | ReplyFlag
}

// Request strips the reply bit.
func (s CIPServiceCode) Request() CIPServiceCode {
	return s &^ ReplyFlag
}

var (
	// ErrFormat is shared with the codec so callers can match either layer.
	ErrFormat = codec.ErrFormat

	// ErrInvalidPath is returned for an empty or odd-length request path.
	ErrInvalidPath = errors.New("invalid request path")
)

// MessageRouterRequest is a CIP service request addressed by a padded EPATH.
type MessageRouterRequest struct {
	Service CIPServiceCode
	Path    []byte
	// Data is the service-specific body. It is opaque and carries its own
	// length semantics; no prefix is added when encoding.
	Data []byte
}

// NewMessageRouterRequest validates the path and builds a request.
func NewMessageRouterRequest(service CIPServiceCode, path []byte, data []byte) (MessageRouterRequest, error) {
	if err := validatePath(path); err != nil {
		return MessageRouterRequest{}, err
	}
	return MessageRouterRequest{
		Service: service,
		Path:    append([]byte(nil), path...),
		Data:    append([]byte(nil), data...),
	}, nil
}

func validatePath(path []byte) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	if len(path)%2 != 0 {
		return fmt.Errorf("%w: path length %d is not word aligned", ErrInvalidPath, len(path))
	}
	if len(path)/2 > 0xFF {
		return fmt.Errorf("%w: path of %d words exceeds 255", ErrInvalidPath, len(path)/2)
	}
	return nil
}

// PathWords is the request path size in 16-bit words.
func (r MessageRouterRequest) PathWords() uint8 {
	return uint8(len(r.Path) / 2)
}

// EncodedSize is the serialized length in bytes.
func (r MessageRouterRequest) EncodedSize() int {
	return 2 + len(r.Path) + len(r.Data)
}

// Encode serializes service, path size, path and data.
func (r MessageRouterRequest) Encode() ([]byte, error) {
	buf := make([]byte, r.EncodedSize())
	offset := 0
	if err := r.EncodeTo(buf, &offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo writes the request into buf at offset.
func (r MessageRouterRequest) EncodeTo(buf []byte, offset *int) error {
	if err := validatePath(r.Path); err != nil {
		return err
	}
	if err := codec.PutUint8(buf, offset, uint8(r.Service)); err != nil {
		return err
	}
	if err := codec.PutUint8(buf, offset, r.PathWords()); err != nil {
		return err
	}
	if err := codec.PutBytes(buf, offset, r.Path); err != nil {
		return err
	}
	return codec.PutBytes(buf, offset, r.Data)
}

// DecodeMessageRouterRequest parses a request; everything after the path is Data.
func DecodeMessageRouterRequest(data []byte) (MessageRouterRequest, error) {
	offset := 0
	service, err := codec.GetUint8(data, &offset)
	if err != nil {
		return MessageRouterRequest{}, fmt.Errorf("%w: request service: %v", ErrFormat, err)
	}
	words, err := codec.GetUint8(data, &offset)
	if err != nil {
		return MessageRouterRequest{}, fmt.Errorf("%w: request path size: %v", ErrFormat, err)
	}
	path, err := codec.GetBytes(data, &offset, int(words)*2)
	if err != nil {
		return MessageRouterRequest{}, fmt.Errorf("%w: request path: %v", ErrFormat, err)
	}
	req := MessageRouterRequest{
		Service: CIPServiceCode(service),
		Path:    path,
	}
	if err := validatePath(path); err != nil {
		return req, err
	}
	if offset < len(data) {
		req.Data = append([]byte(nil), data[offset:]...)
	}
	return req, nil
}

// MessageRouterResponse is a decoded CIP reply.
type MessageRouterResponse struct {
	ReplyService     CIPServiceCode
	GeneralStatus    GeneralStatus
	AdditionalStatus []uint16
	// RemainingPathSize is only present on routing failures of Unconnected Send.
	RemainingPathSize uint8
	// Data holds the raw reply body on success.
	Data []byte
	// ResponseData is the typed body when the service has a registered decoder.
	ResponseData ResponseData
}

// minResponseSize covers reply service, reserved, general status and status size.
const minResponseSize = 4

// OK reports whether the general status is success.
func (r *MessageRouterResponse) OK() bool {
	return r.GeneralStatus == StatusSuccess
}

// Err returns the CIP status as an error value, or nil on success.
// Decoding never fails because of a non-success status.
func (r *MessageRouterResponse) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{
		Service:          r.ReplyService.Request(),
		Status:           r.GeneralStatus,
		AdditionalStatus: append([]uint16(nil), r.AdditionalStatus...),
	}
}

// RoutingError interprets the first additional status word against the
// routing error table. ok is false when the status is not a routing failure.
func (r *MessageRouterResponse) RoutingError() (RoutingError, bool) {
	if !r.GeneralStatus.IsRoutingFailure() || len(r.AdditionalStatus) == 0 {
		return 0, false
	}
	return RoutingError(r.AdditionalStatus[0]), true
}

// DecodeMessageRouterResponse decodes a reply starting at offset. validLength
// bounds the reply inside buf; a value <= 0 means the rest of buf.
func DecodeMessageRouterResponse(buf []byte, offset int, validLength int) (*MessageRouterResponse, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrFormat)
	}
	if offset < 0 || offset > len(buf) {
		return nil, fmt.Errorf("%w: offset %d outside %d byte buffer", ErrFormat, offset, len(buf))
	}
	end := len(buf)
	if validLength > 0 {
		if offset+validLength > len(buf) {
			return nil, fmt.Errorf("%w: response declares %d bytes, %d available", ErrFormat, validLength, len(buf)-offset)
		}
		end = offset + validLength
	}
	data := buf[offset:end]
	if len(data) < minResponseSize {
		return nil, fmt.Errorf("%w: response too short: %d bytes (minimum %d)", ErrFormat, len(data), minResponseSize)
	}

	pos := 0
	reply, _ := codec.GetUint8(data, &pos)
	pos++ // reserved
	status, _ := codec.GetUint8(data, &pos)
	extWords, _ := codec.GetUint8(data, &pos)

	resp := &MessageRouterResponse{
		ReplyService:  CIPServiceCode(reply),
		GeneralStatus: GeneralStatus(status),
	}
	if extWords > 0 {
		resp.AdditionalStatus = make([]uint16, 0, extWords)
		for i := 0; i < int(extWords); i++ {
			word, err := codec.GetUint16(data, &pos)
			if err != nil {
				return nil, fmt.Errorf("%w: additional status word %d: %v", ErrFormat, i, err)
			}
			resp.AdditionalStatus = append(resp.AdditionalStatus, word)
		}
	}

	if !resp.OK() {
		if resp.ReplyService.Request() == ServiceUnconnectedSend && pos < len(data) {
			resp.RemainingPathSize, _ = codec.GetUint8(data, &pos)
		}
		return resp, nil
	}

	if pos < len(data) {
		resp.Data = append([]byte(nil), data[pos:]...)
	}
	resp.ResponseData = decodeResponseData(resp.ReplyService.Request(), resp.Data)
	return resp, nil
}

// EncodedSize is the serialized reply length.
func (r *MessageRouterResponse) EncodedSize() int {
	size := minResponseSize + 2*len(r.AdditionalStatus)
	if !r.OK() && r.ReplyService.Request() == ServiceUnconnectedSend {
		size++
	}
	if r.OK() {
		size += len(r.Data)
	}
	return size
}

// Encode serializes a reply. Targets and tests use this; the client only decodes.
func (r *MessageRouterResponse) Encode() ([]byte, error) {
	if len(r.AdditionalStatus) > 0xFF {
		return nil, fmt.Errorf("%w: %d additional status words", ErrFormat, len(r.AdditionalStatus))
	}
	buf := make([]byte, r.EncodedSize())
	offset := 0
	_ = codec.PutUint8(buf, &offset, uint8(r.ReplyService))
	_ = codec.PutUint8(buf, &offset, 0)
	_ = codec.PutUint8(buf, &offset, uint8(r.GeneralStatus))
	_ = codec.PutUint8(buf, &offset, uint8(len(r.AdditionalStatus)))
	for _, word := range r.AdditionalStatus {
		if err := codec.PutUint16(buf, &offset, word); err != nil {
			return nil, err
		}
	}
	if !r.OK() {
		if r.ReplyService.Request() == ServiceUnconnectedSend {
			if err := codec.PutUint8(buf, &offset, r.RemainingPathSize); err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	if err := codec.PutBytes(buf, &offset, r.Data); err != nil {
		return nil, err
	}
	return buf, nil
}
