package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/enipcore/internal/capture"
	"github.com/tturner/enipcore/internal/cip/protocol"
	"github.com/tturner/enipcore/internal/config"
	"github.com/tturner/enipcore/internal/errors"
	"github.com/tturner/enipcore/internal/logging"
	"github.com/tturner/enipcore/internal/metrics"
	"github.com/tturner/enipcore/internal/session"
	"github.com/tturner/enipcore/internal/transport"
)

// targetFlags are shared by every command that opens a session.
type targetFlags struct {
	ip        string
	port      int
	timeout   time.Duration
	via       string
	route     string
	slot      int
	pcap      string
	logLevel  string
	logFile   string
	logFormat string
}

func addTargetFlags(cmd *cobra.Command, f *targetFlags) {
	cmd.Flags().StringVar(&f.ip, "ip", "", "Target IP address (required)")
	cmd.Flags().IntVar(&f.port, "port", transport.DefaultPort, "Target TCP port")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "Per-exchange timeout")
	cmd.Flags().StringVar(&f.via, "via", "", "Reach the target through an SSH jump host (ssh://user@host:22?key=...)")
	addRouteFlags(cmd, f)
	addLogFlags(cmd, f)
}

func addRouteFlags(cmd *cobra.Command, f *targetFlags) {
	cmd.Flags().StringVar(&f.route, "route", "", "Unconnected Send route, e.g. 1,0 or 2,10.0.0.9/1,3")
	cmd.Flags().IntVar(&f.slot, "slot", -1, "Route through backplane port 1 to this slot")
}

func addLogFlags(cmd *cobra.Command, f *targetFlags) {
	cmd.Flags().StringVar(&f.pcap, "pcap", "", "Record the exchanged frames to this pcap file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level (silent, error, info, verbose, debug)")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Also write every log line to this file")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format (text or json)")
}

func (f *targetFlags) routeBytes() ([]byte, error) {
	if f.route != "" && f.slot >= 0 {
		return nil, fmt.Errorf("--route and --slot are mutually exclusive")
	}
	switch {
	case f.route != "":
		return protocol.ParseRoute(f.route)
	case f.slot > 0xFF:
		return nil, fmt.Errorf("--slot must be 0-255")
	case f.slot >= 0:
		return protocol.BackplaneRoute(uint8(f.slot)), nil
	default:
		return nil, nil
	}
}

func (f *targetFlags) logger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewLoggerWithOptions(level, f.logFile, f.logFormat, 1)
}

func (f *targetFlags) target() config.TargetConfig {
	return config.TargetConfig{
		IP:        f.ip,
		Port:      f.port,
		TimeoutMs: int(f.timeout / time.Millisecond),
		Via:       f.via,
	}
}

// sessionSetup describes one live session to open.
type sessionSetup struct {
	Target   config.TargetConfig
	Route    []byte
	Logger   *logging.Logger
	Recorder metrics.Recorder
	PCAP     string
}

// liveSession bundles a registered session with everything it runs over.
type liveSession struct {
	*session.Session
	dialer  transport.Dialer
	conn    net.Conn
	capture *capture.Writer
	timeout time.Duration
	target  config.TargetConfig
}

func (s sessionSetup) timeout() time.Duration {
	if s.Target.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.Target.TimeoutMs) * time.Millisecond
}

// openSession dials the target, wires logging, metrics and capture into a
// session and registers it.
func openSession(ctx context.Context, setup sessionSetup) (*liveSession, error) {
	timeout := setup.timeout()
	dialer, err := transport.ParseWithOptions(setup.Target.Via, transport.Options{
		ConnectTimeout: timeout,
		KeepAlive:      30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("--via: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := transport.Dial(dialCtx, dialer, setup.Target.IP, setup.Target.Port)
	if err != nil {
		dialer.Close()
		return nil, errors.WrapNetworkError(err, setup.Target.IP, setup.Target.Port)
	}

	live := &liveSession{dialer: dialer, conn: conn, timeout: timeout, target: setup.Target}
	opts := []session.Option{
		session.WithLogger(setup.Logger),
		session.WithTarget(transport.TargetAddr(setup.Target.IP, setup.Target.Port)),
	}
	if setup.Recorder != nil {
		opts = append(opts, session.WithRecorder(setup.Recorder))
	}
	if len(setup.Route) > 0 {
		opts = append(opts, session.WithRoute(setup.Route), session.WithUnconnectedSendOptions(protocol.WithTimeout(timeout)))
	}
	if setup.PCAP != "" {
		w, err := capture.Create(setup.PCAP, capture.EndpointsFromConn(conn))
		if err != nil {
			live.close()
			return nil, err
		}
		live.capture = w
		opts = append(opts, session.WithObserver(w))
	}
	live.Session = session.New(conn, opts...)

	regCtx, cancelReg := context.WithTimeout(ctx, timeout)
	defer cancelReg()
	if err := live.Connect(regCtx); err != nil {
		live.close()
		return nil, errors.WrapNetworkError(err, setup.Target.IP, setup.Target.Port)
	}
	return live, nil
}

// send runs one request under the per-exchange timeout.
func (l *liveSession) send(ctx context.Context, service protocol.CIPServiceCode, path protocol.CIPPath, data []byte) (*protocol.MessageRouterResponse, float64, error) {
	sendCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	start := time.Now()
	resp, err := l.Send(sendCtx, service, path, data)
	return resp, float64(time.Since(start).Microseconds()) / 1000, err
}

// Close unregisters the session and releases the connection, capture and dialer.
func (l *liveSession) Close(ctx context.Context) error {
	var first error
	if l.Session != nil {
		discCtx, cancel := context.WithTimeout(ctx, l.timeout)
		first = l.Disconnect(discCtx)
		cancel()
	}
	if err := l.close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (l *liveSession) close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if l.conn != nil {
		keep(l.conn.Close())
	}
	if l.capture != nil {
		keep(l.capture.Close())
	}
	if l.dialer != nil {
		keep(l.dialer.Close())
	}
	return first
}
