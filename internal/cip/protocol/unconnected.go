package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/tturner/enipcore/internal/cip/codec"
)

// ErrInvalidRoutePath is returned for an empty route or one longer than 255 bytes.
var ErrInvalidRoutePath = errors.New("invalid route path")

// Default Unconnected Send timing: 2^10 ms tick * 14 ticks, about 14.3 s.
const (
	DefaultPriorityTick int8  = 0x0A
	DefaultTimeoutTicks uint8 = 0x0E

	maxRoutePathBytes = 0xFF
)

// UnconnectedSendRequest routes an embedded Message Router request to a target
// through the Connection Manager.
type UnconnectedSendRequest struct {
	// PriorityTick holds the priority bit (0x10) and the tick time exponent (low nibble).
	PriorityTick int8
	TimeoutTicks uint8
	Message      MessageRouterRequest
	RoutePath    []byte
}

// UnconnectedSendOption adjusts a request before it is encoded.
type UnconnectedSendOption func(*UnconnectedSendRequest)

// WithTicks sets the raw priority/tick byte and timeout tick count.
func WithTicks(priorityTick int8, timeoutTicks uint8) UnconnectedSendOption {
	return func(r *UnconnectedSendRequest) {
		r.PriorityTick = priorityTick
		r.TimeoutTicks = timeoutTicks
	}
}

// WithTimeout picks the smallest tick exponent that can express d in 255 ticks.
func WithTimeout(d time.Duration) UnconnectedSendOption {
	return func(r *UnconnectedSendRequest) {
		r.PriorityTick, r.TimeoutTicks = TicksForTimeout(d)
	}
}

// TicksForTimeout converts a duration into a tick exponent and tick count.
func TicksForTimeout(d time.Duration) (int8, uint8) {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0, 1
	}
	for exp := 0; exp <= 15; exp++ {
		tick := int64(1) << exp
		ticks := (ms + tick - 1) / tick
		if ticks <= 0xFF {
			return int8(exp), uint8(ticks)
		}
	}
	return 0x0F, 0xFF
}

// NewUnconnectedSendRequest wraps service/requestPath/requestData for delivery
// along routePath.
func NewUnconnectedSendRequest(service CIPServiceCode, routePath, requestPath, requestData []byte, opts ...UnconnectedSendOption) (UnconnectedSendRequest, error) {
	if err := validateRoute(routePath); err != nil {
		return UnconnectedSendRequest{}, err
	}
	msg, err := NewMessageRouterRequest(service, requestPath, requestData)
	if err != nil {
		return UnconnectedSendRequest{}, err
	}
	req := UnconnectedSendRequest{
		PriorityTick: DefaultPriorityTick,
		TimeoutTicks: DefaultTimeoutTicks,
		Message:      msg,
		RoutePath:    append([]byte(nil), routePath...),
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req, nil
}

func validateRoute(route []byte) error {
	if len(route) == 0 {
		return fmt.Errorf("%w: route is empty", ErrInvalidRoutePath)
	}
	if len(route) > maxRoutePathBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidRoutePath, len(route), maxRoutePathBytes)
	}
	return nil
}

// validateWireRoute bounds a route by what the word-count byte can describe.
// A decoded odd route carries its pad byte, so it may be one byte over the
// constructor's limit.
func validateWireRoute(route []byte) error {
	if len(route) == 0 {
		return fmt.Errorf("%w: route is empty", ErrInvalidRoutePath)
	}
	if words := (len(route) + 1) / 2; words > 0xFF {
		return fmt.Errorf("%w: %d words exceeds 255", ErrInvalidRoutePath, words)
	}
	return nil
}

// Timeout is the duration encoded by the tick fields.
func (r UnconnectedSendRequest) Timeout() time.Duration {
	tick := time.Duration(1<<(uint8(r.PriorityTick)&0x0F)) * time.Millisecond
	return tick * time.Duration(r.TimeoutTicks)
}

// MessageSize is the encoded size of the embedded request.
func (r UnconnectedSendRequest) MessageSize() int {
	return r.Message.EncodedSize()
}

// HasPad reports whether a pad byte follows the embedded request.
func (r UnconnectedSendRequest) HasPad() bool {
	return r.MessageSize()%2 != 0
}

func (r UnconnectedSendRequest) routeWords() int {
	return (len(r.RoutePath) + 1) / 2
}

// EncodedSize is the serialized length of the request body.
func (r UnconnectedSendRequest) EncodedSize() int {
	size := 4 + r.MessageSize()
	if r.HasPad() {
		size++
	}
	return size + 2 + 2*r.routeWords()
}

// Encode serializes priority, ticks, message size, message, pad, route size,
// reserved and route path. Odd route paths get a trailing zero to stay word aligned.
func (r UnconnectedSendRequest) Encode() ([]byte, error) {
	buf := make([]byte, r.EncodedSize())
	offset := 0
	if err := r.EncodeTo(buf, &offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo writes the request into buf at offset.
func (r UnconnectedSendRequest) EncodeTo(buf []byte, offset *int) error {
	if err := validateWireRoute(r.RoutePath); err != nil {
		return err
	}
	size := r.MessageSize()
	if size > 0xFFFF {
		return fmt.Errorf("%w: embedded message of %d bytes", ErrFormat, size)
	}
	steps := []func() error{
		func() error { return codec.PutUint8(buf, offset, uint8(r.PriorityTick)) },
		func() error { return codec.PutUint8(buf, offset, r.TimeoutTicks) },
		func() error { return codec.PutUint16(buf, offset, uint16(size)) },
		func() error { return r.Message.EncodeTo(buf, offset) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	if r.HasPad() {
		if err := codec.PutUint8(buf, offset, 0); err != nil {
			return err
		}
	}
	if err := codec.PutUint8(buf, offset, uint8(r.routeWords())); err != nil {
		return err
	}
	if err := codec.PutUint8(buf, offset, 0); err != nil {
		return err
	}
	if err := codec.PutBytes(buf, offset, r.RoutePath); err != nil {
		return err
	}
	if len(r.RoutePath)%2 != 0 {
		return codec.PutUint8(buf, offset, 0)
	}
	return nil
}

// DecodeUnconnectedSendRequest parses an Unconnected Send request body. The
// returned route path is word aligned, so an odd route comes back with its
// pad: a 1-byte route decodes as 2 bytes and a 255-byte route as 256.
func DecodeUnconnectedSendRequest(data []byte) (UnconnectedSendRequest, error) {
	var req UnconnectedSendRequest
	offset := 0
	tick, err := codec.GetUint8(data, &offset)
	if err != nil {
		return req, fmt.Errorf("%w: priority/tick: %v", ErrFormat, err)
	}
	ticks, err := codec.GetUint8(data, &offset)
	if err != nil {
		return req, fmt.Errorf("%w: timeout ticks: %v", ErrFormat, err)
	}
	size, err := codec.GetUint16(data, &offset)
	if err != nil {
		return req, fmt.Errorf("%w: message size: %v", ErrFormat, err)
	}
	msgBytes, err := codec.GetBytes(data, &offset, int(size))
	if err != nil {
		return req, fmt.Errorf("%w: embedded message: %v", ErrFormat, err)
	}
	msg, err := DecodeMessageRouterRequest(msgBytes)
	if err != nil {
		return req, fmt.Errorf("embedded message: %w", err)
	}
	if size%2 != 0 {
		offset++
	}
	words, err := codec.GetUint8(data, &offset)
	if err != nil {
		return req, fmt.Errorf("%w: route path size: %v", ErrFormat, err)
	}
	offset++ // reserved
	route, err := codec.GetBytes(data, &offset, int(words)*2)
	if err != nil {
		return req, fmt.Errorf("%w: route path: %v", ErrFormat, err)
	}
	req = UnconnectedSendRequest{
		PriorityTick: int8(tick),
		TimeoutTicks: ticks,
		Message:      msg,
		RoutePath:    route,
	}
	return req, validateWireRoute(route)
}

// EncodeMessageRouter wraps the request in the outer Message Router request
// addressed to the Connection Manager.
func (r UnconnectedSendRequest) EncodeMessageRouter() (MessageRouterRequest, error) {
	body, err := r.Encode()
	if err != nil {
		return MessageRouterRequest{}, err
	}
	return MessageRouterRequest{
		Service: ServiceUnconnectedSend,
		Path:    append([]byte(nil), ConnectionManagerPath...),
		Data:    body,
	}, nil
}
