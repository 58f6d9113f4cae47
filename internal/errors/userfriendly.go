package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/enip"
	"github.com/tturner/enipcore/internal/session"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps dial, registration and transport errors with context
func WrapNetworkError(err error, ip string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with EtherNet/IP target at %s:%d", ip, port),
		Reason:  extractNetworkReason(err),
		Hint:    "The device may not speak EtherNet/IP on this port, or there may be a network connectivity issue",
		Try:     fmt.Sprintf("enipcore register --ip %s --port %d", ip, port),
		Err:     err,
	}
}

// WrapCIPError wraps explicit-message errors with context
func WrapCIPError(err error, operation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("CIP request failed: %s", operation),
		Reason:  extractCIPReason(err),
		Hint:    "The device may not support this service, or the class/instance/attribute or route may be incorrect",
		Try:     "Check the request path and route; decode the exchange with: enipcore decode --pcap <file>",
		Err:     err,
	}
}

// WrapConfigError wraps request file errors with context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "A request file needs a target ip and at least one request with service, class and instance",
		Try:     fmt.Sprintf("enipcore batch --config %s --dry-run", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	var rejected *session.SessionRejectedError
	if stderrors.As(err, &rejected) {
		if rejected.HasOffer {
			return fmt.Sprintf("Session rejected - target only supports protocol version %d", rejected.OfferedVersion)
		}
		return fmt.Sprintf("Session rejected - %s", rejected.Status)
	}
	var encap *session.EncapStatusError
	if stderrors.As(err, &encap) {
		return fmt.Sprintf("Target reported encapsulation status %s", encap.Status)
	}
	if stderrors.Is(err, session.ErrConnectionClosed) {
		return "Connection closed - target closed the connection mid-frame"
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return "Connection timeout - device may be offline or unreachable"
	}

	errStr := err.Error()

	// Common network error patterns
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - device may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - device may not be listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or device unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - device closed the connection unexpectedly"
	}

	return "Network communication failed"
}

func extractCIPReason(err error) string {
	var status *protocol.StatusError
	if stderrors.As(err, &status) {
		if status.Status.IsRoutingFailure() {
			return "Route to the target module failed - check the route path"
		}
		return fmt.Sprintf("Device returned CIP status 0x%02X (%s)", uint8(status.Status), status.Status)
	}
	if stderrors.Is(err, protocol.ErrInvalidPath) || stderrors.Is(err, protocol.ErrInvalidRoutePath) {
		return "Request path or route is malformed and was rejected before sending"
	}
	if stderrors.Is(err, enip.ErrFormat) {
		return "Received invalid or malformed response from device"
	}
	if stderrors.Is(err, session.ErrNotActive) {
		return "No registered session - connect first"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Device did not respond within timeout period"
	}

	return "CIP protocol error occurred"
}
