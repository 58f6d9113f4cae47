package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/enip"
	"github.com/tturner/enipcore/internal/session"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "connection failed",
				Reason:  "timeout",
				Hint:    "check network",
				Try:     "ping host",
				Err:     fmt.Errorf("dial tcp: timeout"),
			},
			contains: []string{"connection failed", "Reason: timeout", "Hint: check network", "Try: ping host", "Details: dial tcp: timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	msg := UserFriendlyError{Message: "msg"}.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestUserFriendlyError_Unwrap(t *testing.T) {
	err := WrapNetworkError(fmt.Errorf("read: %w", session.ErrConnectionClosed), "10.0.0.1", 44818)
	if !errors.Is(err, session.ErrConnectionClosed) {
		t.Error("wrapped error should still match ErrConnectionClosed")
	}

	var nilErr UserFriendlyError
	if nilErr.Unwrap() != nil {
		t.Error("Unwrap on nil Err should return nil")
	}
}

func TestWrapNetworkError(t *testing.T) {
	if WrapNetworkError(nil, "10.0.0.1", 44818) != nil {
		t.Fatal("nil error should return nil")
	}

	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"timeout", fmt.Errorf("dial tcp: i/o timeout"), "timeout"},
		{"context deadline", fmt.Errorf("%w: read", context.DeadlineExceeded), "timeout"},
		{"refused", fmt.Errorf("connection refused"), "refused"},
		{"no route", fmt.Errorf("no route to host"), "route"},
		{"reset", fmt.Errorf("connection reset by peer"), "reset"},
		{"closed", session.ErrConnectionClosed, "closed"},
		{"rejected with offer", &session.SessionRejectedError{Command: enip.CommandRegisterSession, Status: enip.StatusUnsupportedProtocolRevision, OfferedVersion: 2, HasOffer: true}, "version 2"},
		{"rejected", &session.SessionRejectedError{Command: enip.CommandRegisterSession, Status: enip.StatusInvalidLength}, "Invalid length"},
		{"encap status", &session.EncapStatusError{Command: enip.CommandSendRRData, Status: enip.StatusInvalidSessionHandle}, "Invalid session handle"},
		{"generic", fmt.Errorf("something else"), "Network communication failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ufe := WrapNetworkError(tt.err, "10.0.0.1", 44818).(UserFriendlyError)
			if !strings.Contains(ufe.Message, "10.0.0.1:44818") {
				t.Errorf("message should contain address, got %q", ufe.Message)
			}
			if !strings.Contains(ufe.Reason, tt.reason) {
				t.Errorf("reason = %q, want to contain %q", ufe.Reason, tt.reason)
			}
		})
	}
}

func TestWrapCIPError(t *testing.T) {
	if WrapCIPError(nil, "read") != nil {
		t.Fatal("nil error should return nil")
	}

	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"status", &protocol.StatusError{Service: 0x0E, Status: protocol.StatusServiceNotSupported}, "0x08"},
		{"routing", &protocol.StatusError{Service: 0x52, Status: protocol.StatusConnectionFailure, AdditionalStatus: []uint16{0x0312}}, "route"},
		{"bad path", fmt.Errorf("build: %w", protocol.ErrInvalidPath), "malformed"},
		{"bad route", protocol.ErrInvalidRoutePath, "malformed"},
		{"format", fmt.Errorf("reply: %w", enip.ErrFormat), "malformed response"},
		{"not active", session.ErrNotActive, "connect first"},
		{"timeout", fmt.Errorf("timeout waiting for response"), "timeout"},
		{"generic", fmt.Errorf("something"), "CIP protocol error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ufe := WrapCIPError(tt.err, "Get_Attribute_Single").(UserFriendlyError)
			if !strings.Contains(ufe.Message, "Get_Attribute_Single") {
				t.Errorf("message should contain operation, got %q", ufe.Message)
			}
			if !strings.Contains(ufe.Reason, tt.reason) {
				t.Errorf("reason = %q, want to contain %q", ufe.Reason, tt.reason)
			}
		})
	}
}

func TestWrapConfigError(t *testing.T) {
	if WrapConfigError(nil, "requests.yaml") != nil {
		t.Fatal("nil error should return nil")
	}
	ufe := WrapConfigError(fmt.Errorf("invalid yaml"), "requests.yaml").(UserFriendlyError)
	if !strings.Contains(ufe.Message, "requests.yaml") {
		t.Errorf("message should contain config path, got %q", ufe.Message)
	}
	if ufe.Reason != "invalid yaml" {
		t.Errorf("reason should be inner error message, got %q", ufe.Reason)
	}
	if !strings.Contains(ufe.Try, "--dry-run") {
		t.Errorf("try should suggest a dry run, got %q", ufe.Try)
	}
}
