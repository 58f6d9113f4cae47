// Package transport opens the byte streams sessions run over: a direct TCP
// connection to the target, or a TCP stream tunnelled through an SSH jump host
// that can also receive run artifacts over SFTP.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPort is the registered EtherNet/IP explicit messaging port.
const DefaultPort = 44818

// Dialer opens a stream to a target address.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)

	// Close releases any held resources (e.g., SSH connection).
	Close() error

	// String returns a human-readable description of the route to the target.
	String() string
}

// Uploader copies local files to the far side of a dialer.
type Uploader interface {
	Put(ctx context.Context, localPath, remotePath string) error
}

// Options configures dialing behavior.
type Options struct {
	ConnectTimeout time.Duration // Per-dial timeout when ctx has no deadline
	KeepAlive      time.Duration // TCP keep-alive period; negative disables
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 5 * time.Second,
		KeepAlive:      30 * time.Second,
	}
}

// Direct dials the target from this host.
type Direct struct {
	dialer net.Dialer
}

// NewDirect creates a direct TCP dialer.
func NewDirect(opts Options) *Direct {
	return &Direct{dialer: net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: opts.KeepAlive}}
}

// DialContext connects to addr.
func (d *Direct) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// Close is a no-op; direct connections are owned by the caller.
func (d *Direct) Close() error { return nil }

func (d *Direct) String() string { return "direct" }

// TargetAddr joins host and port, defaulting the port to 44818.
func TargetAddr(host string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Dial opens a TCP stream to host:port through d.
func Dial(ctx context.Context, d Dialer, host string, port int) (net.Conn, error) {
	if host == "" {
		return nil, fmt.Errorf("target host is required")
	}
	return d.DialContext(ctx, "tcp", TargetAddr(host, port))
}

var (
	_ Dialer   = (*Direct)(nil)
	_ Dialer   = (*SSH)(nil)
	_ Uploader = (*SSH)(nil)
)
