// Package session drives one EtherNet/IP encapsulation session over a byte
// stream: RegisterSession, SendRRData request/reply exchanges and
// UnRegisterSession.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tturner/enipcore/internal/cip/codec"
	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/cip/spec"
	"github.com/tturner/enipcore/internal/enip"
	"github.com/tturner/enipcore/internal/logging"
	"github.com/tturner/enipcore/internal/metrics"
)

// State is the registration state of a session.
type State int

const (
	Disconnected State = iota
	Registering
	Active
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Registering:
		return "registering"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Direction tells a FrameObserver which way a frame travelled.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// FrameObserver sees every complete frame written to or read from the channel.
type FrameObserver interface {
	ObserveFrame(dir Direction, frame []byte)
}

// Option configures a Session.
type Option func(*Session)

// WithRoute makes Send wrap requests in an Unconnected Send along route.
// An empty route sends requests directly to the connected target.
func WithRoute(route []byte) Option {
	return func(s *Session) { s.route = append([]byte(nil), route...) }
}

// WithUnconnectedSendOptions sets the tick/timeout options used for routed requests.
func WithUnconnectedSendOptions(opts ...protocol.UnconnectedSendOption) Option {
	return func(s *Session) { s.usOpts = append(s.usOpts, opts...) }
}

// WithLogger sets the logger. The default drops everything.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRecorder receives one metric per exchange.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Session) { s.rec = r }
}

// WithObserver receives every frame sent and received.
func WithObserver(o FrameObserver) Option {
	return func(s *Session) { s.obs = o }
}

// WithTarget names the peer in logs and metrics.
func WithTarget(target string) Option {
	return func(s *Session) { s.target = target }
}

// WithSenderContextSeed fixes the first sender context instead of drawing it
// from crypto/rand.
func WithSenderContextSeed(seed uint64) Option {
	return func(s *Session) { s.nextContext = seed }
}

// Session owns a channel and the session handle registered on it. A session
// runs one exchange at a time; concurrent calls fail with ErrBusy.
type Session struct {
	busy sync.Mutex // held for the length of an exchange
	mu   sync.Mutex // guards state and handle

	ch          io.ReadWriter
	state       State
	handle      uint32
	nextContext uint64

	route  []byte
	usOpts []protocol.UnconnectedSendOption
	log    *logging.Logger
	rec    metrics.Recorder
	obs    FrameObserver
	target string
}

// New creates a disconnected session over ch.
func New(ch io.ReadWriter, opts ...Option) *Session {
	s := &Session{
		ch:          ch,
		state:       Disconnected,
		log:         logging.Nop(),
		nextContext: randomSeed(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	offset := 0
	seed, _ := codec.GetUint64(b[:], &offset)
	return seed
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle returns the registered session handle, or 0 when not active.
func (s *Session) Handle() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Session) setState(state State, handle uint32) {
	s.mu.Lock()
	s.state = state
	s.handle = handle
	s.mu.Unlock()
}

func (s *Session) lock() error {
	if !s.busy.TryLock() {
		return ErrBusy
	}
	return nil
}

func (s *Session) senderContext() uint64 {
	ctx := s.nextContext
	s.nextContext++
	return ctx
}

// Connect registers a session. On any failure the session stays
// Disconnected; a reply that does not grant a session is a
// *SessionRejectedError.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.busy.Unlock()

	if s.state != Disconnected {
		return fmt.Errorf("%w (%s, handle 0x%08X)", ErrAlreadyConnected, s.state, s.handle)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.setState(Registering, 0)
	start := time.Now()
	sc := s.senderContext()
	h, payload, err := s.exchange(ctx, enip.BuildRegisterSession(sc))
	rtt := msSince(start)
	if err == nil {
		err = s.checkRegisterReply(h, payload, sc)
	}
	if err != nil {
		s.setState(Disconnected, 0)
		s.record(metrics.OperationRegister, "RegisterSession", rtt, nil, err)
		s.log.Error("RegisterSession with %s failed: %v", s.targetName(), err)
		return err
	}

	s.setState(Active, h.SessionHandle)
	s.record(metrics.OperationRegister, "RegisterSession", rtt, nil, nil)
	s.log.Info("Registered session 0x%08X with %s", s.handle, s.targetName())
	return nil
}

func (s *Session) checkRegisterReply(h enip.Header, payload []byte, sc uint64) error {
	if h.Command != enip.CommandRegisterSession {
		return &SessionRejectedError{Command: h.Command, Status: h.Status}
	}
	if h.SenderContext != sc {
		return fmt.Errorf("%w: RegisterSession reply sender context 0x%016X, sent 0x%016X", ErrFormat, h.SenderContext, sc)
	}
	if h.Status != enip.StatusSuccess {
		rejected := &SessionRejectedError{Command: h.Command, Status: h.Status}
		if h.Status == enip.StatusUnsupportedProtocolRevision {
			if data, err := enip.DecodeRegisterSessionData(payload); err == nil {
				rejected.OfferedVersion = data.ProtocolVersion
				rejected.HasOffer = true
			}
		}
		return rejected
	}
	if h.SessionHandle == 0 {
		return fmt.Errorf("%w: RegisterSession reply granted session handle 0", ErrFormat)
	}
	return nil
}

// Send addresses service to path (class, instance and optional attribute)
// and returns the decoded reply. A non-success CIP status is returned as
// part of the response, not as an error; use resp.Err() to inspect it.
func (s *Session) Send(ctx context.Context, service protocol.CIPServiceCode, path protocol.CIPPath, data []byte) (*protocol.MessageRouterResponse, error) {
	req, err := protocol.NewMessageRouterRequest(service, protocol.EncodeEPATH(path), data)
	if err != nil {
		return nil, err
	}
	return s.SendRequest(ctx, req)
}

// SendRequest sends a prepared Message Router request in a SendRRData
// exchange. With a route configured the request travels inside an
// Unconnected Send to the Connection Manager.
func (s *Session) SendRequest(ctx context.Context, req protocol.MessageRouterRequest) (*protocol.MessageRouterResponse, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	if s.state != Active {
		return nil, fmt.Errorf("%w: state is %s", ErrNotActive, s.state)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rr enip.SendRRData
	var err error
	if len(s.route) > 0 {
		rr, err = enip.NewSendRRData(req.Service, s.route, req.Path, req.Data, s.usOpts...)
	} else {
		rr, err = enip.NewDirectSendRRData(req)
	}
	if err != nil {
		return nil, err
	}
	sc := s.senderContext()
	frame, err := enip.BuildSendRRData(s.handle, sc, rr)
	if err != nil {
		return nil, err
	}

	serviceName := spec.ServiceName(req.Service)
	start := time.Now()
	h, payload, err := s.exchange(ctx, frame)
	rtt := msSince(start)
	var resp *protocol.MessageRouterResponse
	if err == nil {
		resp, err = s.decodeSendReply(h, payload, sc)
	}
	if err != nil {
		if isTransportFailure(err) {
			s.setState(Disconnected, 0)
		}
		s.record(metrics.OperationSend, serviceName, rtt, nil, err)
		return nil, err
	}

	s.record(metrics.OperationSend, serviceName, rtt, resp, nil)
	return resp, nil
}

func (s *Session) decodeSendReply(h enip.Header, payload []byte, sc uint64) (*protocol.MessageRouterResponse, error) {
	if h.Command != enip.CommandSendRRData {
		return nil, &headerMismatchError{fmt.Sprintf("reply command %s, want SendRRData", h.Command)}
	}
	if h.SenderContext != sc {
		return nil, &headerMismatchError{fmt.Sprintf("reply sender context 0x%016X, sent 0x%016X", h.SenderContext, sc)}
	}
	if h.Status != enip.StatusSuccess {
		return nil, &EncapStatusError{Command: h.Command, Status: h.Status}
	}
	rr, err := enip.DecodeSendRRData(payload, enip.DecodeOptions{Responses: true})
	if err != nil {
		return nil, fmt.Errorf("SendRRData reply: %w", err)
	}
	return rr.Reply()
}

// Disconnect unregisters the session. No reply is expected. The session is
// Disconnected afterwards even when the write fails; the write error is
// still returned.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.busy.Unlock()

	if s.state != Active {
		s.setState(Disconnected, 0)
		return nil
	}

	handle := s.handle
	s.setState(Disconnected, 0)

	start := time.Now()
	frame := enip.BuildUnregisterSession(handle, s.senderContext())
	err := s.write(ctx, frame)
	s.record(metrics.OperationUnregister, "UnRegisterSession", msSince(start), nil, err)
	if err != nil {
		s.log.Verbose("UnRegisterSession 0x%08X: %v", handle, err)
		return fmt.Errorf("unregister session 0x%08X: %w", handle, err)
	}
	s.log.Info("Unregistered session 0x%08X", handle)
	return nil
}

// exchange writes frame and reads back one reply frame.
func (s *Session) exchange(ctx context.Context, frame []byte) (enip.Header, []byte, error) {
	restore := s.applyDeadline(ctx)
	defer restore()

	if err := s.writeFrame(frame); err != nil {
		return enip.Header{}, nil, contextError(ctx, err)
	}
	reply, err := ReadFrame(s.ch)
	if err != nil {
		return enip.Header{}, nil, contextError(ctx, err)
	}
	s.log.LogHex("RX", reply)
	if s.obs != nil {
		s.obs.ObserveFrame(Inbound, reply)
	}
	return enip.DecodeFrame(reply)
}

func (s *Session) write(ctx context.Context, frame []byte) error {
	restore := s.applyDeadline(ctx)
	defer restore()
	return contextError(ctx, s.writeFrame(frame))
}

func (s *Session) writeFrame(frame []byte) error {
	s.log.LogHex("TX", frame)
	if err := WriteFull(s.ch, frame); err != nil {
		return err
	}
	if s.obs != nil {
		s.obs.ObserveFrame(Outbound, frame)
	}
	return nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// applyDeadline pushes the context deadline onto channels that support one,
// and expires the channel early when the context is cancelled.
func (s *Session) applyDeadline(ctx context.Context) func() {
	d, ok := s.ch.(deadliner)
	if !ok {
		return func() {}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = d.SetDeadline(deadline)
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = d.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		// A callback already running must land before the deadline is cleared.
		if !stop() {
			<-fired
		}
		_ = d.SetDeadline(time.Time{})
	}
}

// contextError reports the context's error in place of the I/O error it caused.
func contextError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	// The channel deadline can fire a moment before the context notices.
	if deadline, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) && !time.Now().Before(deadline) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// headerMismatchError means the reply does not belong to the request just
// sent, so the stream can no longer be trusted.
type headerMismatchError struct {
	msg string
}

func (e *headerMismatchError) Error() string { return "unexpected reply: " + e.msg }
func (e *headerMismatchError) Unwrap() error { return ErrFormat }

func isTransportFailure(err error) bool {
	var mismatch *headerMismatchError
	var status *EncapStatusError
	switch {
	case errors.As(err, &mismatch):
		return true
	case errors.As(err, &status):
		return status.Status == enip.StatusInvalidSessionHandle
	case errors.Is(err, ErrFormat):
		return false
	default:
		return true
	}
}

func (s *Session) targetName() string {
	if s.target == "" {
		return "target"
	}
	return s.target
}

func (s *Session) record(op metrics.OperationType, service string, rtt float64, resp *protocol.MessageRouterResponse, err error) {
	m := metrics.Metric{
		Timestamp: time.Now(),
		Target:    s.target,
		Operation: op,
		Service:   service,
		RTTMs:     rtt,
		Outcome:   classify(resp, err),
	}
	if err != nil {
		m.Error = err.Error()
		var status *EncapStatusError
		var rejected *SessionRejectedError
		if errors.As(err, &status) {
			m.EncapStatus = uint32(status.Status)
		} else if errors.As(err, &rejected) {
			m.EncapStatus = uint32(rejected.Status)
		}
	} else {
		m.Success = resp == nil || resp.OK()
		if resp != nil {
			m.GeneralStatus = uint8(resp.GeneralStatus)
		}
	}

	var status uint8
	if resp != nil {
		status = uint8(resp.GeneralStatus)
	}
	s.log.LogExchange(string(op), s.targetName(), service, err == nil && (resp == nil || resp.OK()), rtt, status, err)
	if s.rec != nil {
		s.rec.Record(m)
	}
}

func classify(resp *protocol.MessageRouterResponse, err error) metrics.Outcome {
	var status *EncapStatusError
	var rejected *SessionRejectedError
	switch {
	case err == nil && resp != nil && !resp.OK():
		return metrics.OutcomeCIPError
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded):
		return metrics.OutcomeTimeout
	case errors.As(err, &rejected):
		return metrics.OutcomeRejected
	case errors.As(err, &status):
		return metrics.OutcomeEncapError
	case errors.Is(err, ErrFormat):
		return metrics.OutcomeFormatError
	default:
		return metrics.OutcomeTransport
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
