package server

import "time"

// Stats is a snapshot of server activity.
type Stats struct {
	Started     time.Time
	Connections int // open now
	Sessions    int // registered now
	Registered  uint64
	Requests    uint64
	// Failures counts encapsulation error replies and CIP replies with a
	// non-zero general status.
	Failures uint64
	LastPeer string
}

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Connections = len(s.conns)
	return st
}

func (s *Server) count(update func(*Stats)) {
	s.mu.Lock()
	update(&s.stats)
	s.mu.Unlock()
}
