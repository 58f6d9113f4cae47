package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Parse parses a --via string and returns a Dialer.
// Supported formats:
//   - "" or "direct" -> Direct
//   - "ssh://user@host:port" -> SSH jump host
//   - "ssh://user@host:port?key=/path&insecure=true" -> SSH with options
//   - "user@host" (bare host) -> SSH with defaults
func Parse(spec string) (Dialer, error) {
	return ParseWithOptions(spec, DefaultOptions())
}

// ParseWithOptions parses a --via string with custom dial options.
func ParseWithOptions(spec string, opts Options) (Dialer, error) {
	if IsDirect(spec) {
		return NewDirect(opts), nil
	}
	if strings.Contains(spec, "://") {
		return parseURL(spec, opts)
	}
	return parseSSHHost(spec, opts)
}

func parseURL(spec string, opts Options) (Dialer, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	switch u.Scheme {
	case "direct":
		return NewDirect(opts), nil
	case "ssh":
		return parseSSHURL(u, opts)
	default:
		return nil, fmt.Errorf("unsupported transport scheme: %s", u.Scheme)
	}
}

func parseSSHURL(u *url.URL, opts Options) (Dialer, error) {
	sshOpts := DefaultSSHOptions()
	sshOpts.Options = opts

	if u.User != nil {
		sshOpts.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			sshOpts.Password = pw
			sshOpts.AllowPassword = true
		}
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("SSH host is required")
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		sshOpts.Port = port
	}

	q := u.Query()
	if key := q.Get("key"); key != "" {
		sshOpts.KeyFile = key
	}
	if passphrase := q.Get("passphrase"); passphrase != "" {
		sshOpts.KeyPassphrase = passphrase
	}
	if knownHosts := q.Get("known_hosts"); knownHosts != "" {
		sshOpts.KnownHostsFile = knownHosts
	}
	if insecure := q.Get("insecure"); insecure == "true" || insecure == "1" {
		sshOpts.InsecureIgnoreHost = true
	}
	if agent := q.Get("agent"); agent == "false" || agent == "0" {
		sshOpts.Agent = false
	}

	return NewSSH(host, sshOpts)
}

// parseSSHHost parses a bare hostname or user@host:port spec.
func parseSSHHost(spec string, opts Options) (Dialer, error) {
	sshOpts := DefaultSSHOptions()
	sshOpts.Options = opts

	// Usernames can contain @ (e.g., name@domain@host)
	if idx := strings.LastIndex(spec, "@"); idx != -1 {
		sshOpts.User = spec[:idx]
		spec = spec[idx+1:]
	}

	host := spec
	if idx := strings.LastIndex(spec, ":"); idx != -1 {
		// A failed port parse means the whole thing is the host (e.g., IPv6)
		if port, err := strconv.Atoi(spec[idx+1:]); err == nil {
			sshOpts.Port = port
			host = spec[:idx]
		}
	}

	if host == "" {
		return nil, fmt.Errorf("SSH host is required")
	}
	return NewSSH(host, sshOpts)
}

// IsDirect returns true if spec means dialing the target from this host.
func IsDirect(spec string) bool {
	return spec == "" || spec == "direct"
}
