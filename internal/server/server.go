// Package server is a small EtherNet/IP target: it registers sessions,
// answers SendRRData explicit messages for the Identity object and
// unwraps Unconnected Send requests routed to its backplane slot.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tturner/enipcore/internal/cip/codec"
	"github.com/tturner/enipcore/internal/enip"
	"github.com/tturner/enipcore/internal/logging"
)

// Config configures a Server.
type Config struct {
	ListenAddr string
	Identity   Identity
	// Slot is the backplane slot Unconnected Send routes must name.
	Slot uint8
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration
}

// DefaultConfig listens on the registered port.
func DefaultConfig() Config {
	return Config{
		ListenAddr:  fmt.Sprintf(":%d", enip.Port),
		Identity:    DefaultIdentity(),
		IdleTimeout: 60 * time.Second,
	}
}

// Server accepts encapsulation sessions over TCP.
type Server struct {
	cfg      Config
	logger   *logging.Logger
	listener net.Listener

	mu          sync.Mutex
	conns       map[net.Conn]struct{}
	nextSession uint32
	stats       Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. A nil logger drops all output.
func New(cfg Config, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Identity.ProductName == "" {
		cfg.Identity = DefaultIdentity()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:         cfg,
		logger:      logger,
		conns:       make(map[net.Conn]struct{}),
		nextSession: 0x00010001,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start listens and accepts connections in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen TCP: %w", err)
	}
	s.listener = listener
	s.count(func(st *Stats) { st.Started = time.Now() })
	s.logger.Info("Listening on %s", listener.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to return.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("Server stopped")
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Accept error: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn handles one connection until the peer unregisters, closes it,
// or sends something unframeable. It closes conn before returning.
func (s *Server) ServeConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	state := &connState{sessions: make(map[uint32]struct{})}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.stats.LastPeer = remote
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.stats.Sessions -= len(state.sessions)
		s.mu.Unlock()
		conn.Close()
	}()

	s.logger.Verbose("New connection from %s", remote)

	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		frame, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.logger.Verbose("Connection %s: %v", remote, err)
			}
			return
		}
		h, payload, err := enip.DecodeFrame(frame)
		if err != nil {
			s.logger.Error("Connection %s: %v", remote, err)
			return
		}
		reply, closeConn := s.handleCommand(state, h, payload)
		if reply != nil {
			if _, err := conn.Write(reply); err != nil {
				s.logger.Error("Write to %s: %v", remote, err)
				return
			}
		}
		if closeConn {
			s.logger.Verbose("Connection %s closed after UnRegisterSession", remote)
			return
		}
	}
}

// readFrame reads one header and the payload it declares.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, enip.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	offset := 2
	length, _ := codec.GetUint16(header, &offset)
	frame := make([]byte, enip.HeaderSize+int(length))
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[enip.HeaderSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}

func (s *Server) allocateSession() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSession
	s.nextSession++
	if s.nextSession == 0 {
		s.nextSession = 1
	}
	return id
}
