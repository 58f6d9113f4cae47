package session

import (
	"errors"
	"fmt"

	"github.com/tturner/enipcore/internal/enip"
)

var (
	// ErrNotActive is returned by Send before a session has been registered.
	ErrNotActive = errors.New("session not active")
	// ErrAlreadyConnected is returned by Connect on a session that is not disconnected.
	ErrAlreadyConnected = errors.New("session already connected")
	// ErrBusy is returned when another exchange is already in flight on the session.
	ErrBusy = errors.New("session busy")
	// ErrFormat is the shared malformed-frame error.
	ErrFormat = enip.ErrFormat
)

// SessionRejectedError reports a RegisterSession reply that did not grant a
// session. OfferedVersion is set when the target answered with
// UnsupportedProtocolRevision and included the version it supports.
type SessionRejectedError struct {
	Command        enip.Command
	Status         enip.Status
	OfferedVersion uint16
	HasOffer       bool
}

func (e *SessionRejectedError) Error() string {
	if e.Command != enip.CommandRegisterSession {
		return fmt.Sprintf("session rejected: unexpected reply command %s", e.Command)
	}
	if e.HasOffer {
		return fmt.Sprintf("session rejected: %s (status 0x%04X), target offers protocol version %d", e.Status, uint32(e.Status), e.OfferedVersion)
	}
	return fmt.Sprintf("session rejected: %s (status 0x%04X)", e.Status, uint32(e.Status))
}

// EncapStatusError is a reply whose encapsulation header carries a non-zero
// status. It is a transport-level failure, unlike a CIP general status.
type EncapStatusError struct {
	Command enip.Command
	Status  enip.Status
}

func (e *EncapStatusError) Error() string {
	return fmt.Sprintf("%s reply: encapsulation status %s (0x%04X)", e.Command, e.Status, uint32(e.Status))
}
