package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions configures the jump host connection.
type SSHOptions struct {
	Options

	// Authentication
	User          string // SSH username
	KeyFile       string // Path to private key file
	KeyPassphrase string // Passphrase for encrypted key (optional)
	Password      string // Password authentication
	AllowPassword bool   // Password auth is only offered when set
	Agent         bool   // Use SSH agent for authentication

	// Host verification
	KnownHostsFile     string // Path to known_hosts file
	InsecureIgnoreHost bool   // Skip host key verification (dangerous)

	// Connection
	Port          int           // SSH port (default 22)
	SSHKeepAlive  time.Duration // keepalive@openssh.com interval; 0 disables
	SSHDialTarget string        // Overrides host:port for the SSH dial itself (tests)
}

// DefaultSSHOptions returns sensible default SSH options.
func DefaultSSHOptions() SSHOptions {
	return SSHOptions{
		Options:      DefaultOptions(),
		Port:         22,
		SSHKeepAlive: 30 * time.Second,
		Agent:        true, // Try SSH agent by default
	}
}

// SSH tunnels target connections through a jump host and uploads artifacts to it.
type SSH struct {
	opts   SSHOptions
	host   string
	client *ssh.Client
	sftp   *sftp.Client
	done   chan struct{}
	mu     sync.Mutex
}

// NewSSH creates a jump host dialer. Nothing is dialed until first use.
func NewSSH(host string, opts SSHOptions) (*SSH, error) {
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	return &SSH{opts: opts, host: host}, nil
}

func (s *SSH) addr() string {
	if s.opts.SSHDialTarget != "" {
		return s.opts.SSHDialTarget
	}
	port := s.opts.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(s.host, strconv.Itoa(port))
}

// connect establishes the SSH connection if not already connected.
func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	config, err := s.buildSSHConfig()
	if err != nil {
		return nil, fmt.Errorf("build SSH config: %w", err)
	}

	addr := s.addr()
	dialer := net.Dialer{Timeout: s.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial jump host %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake: %w", err)
	}

	s.client = ssh.NewClient(sshConn, chans, reqs)
	s.done = make(chan struct{})
	if s.opts.SSHKeepAlive > 0 {
		go s.keepAlive(s.client, s.done)
	}
	return s.client, nil
}

// buildSSHConfig builds the SSH client configuration.
func (s *SSH) buildSSHConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if s.opts.Agent {
		if agentAuth := sshAgentAuth(); agentAuth != nil {
			authMethods = append(authMethods, agentAuth)
		}
	}

	if s.opts.KeyFile != "" {
		keyAuth, err := publicKeyAuth(s.opts.KeyFile, s.opts.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("key file auth: %w", err)
		}
		authMethods = append(authMethods, keyAuth)
	}

	if s.opts.KeyFile == "" && !s.opts.Agent {
		for _, keyPath := range defaultKeyPaths() {
			if keyAuth, err := publicKeyAuth(keyPath, ""); err == nil {
				authMethods = append(authMethods, keyAuth)
				break
			}
		}
	}

	if s.opts.Password != "" && s.opts.AllowPassword {
		authMethods = append(authMethods, ssh.Password(s.opts.Password))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}

	hostKeyCallback, err := s.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	user := s.opts.User
	if user == "" {
		user = os.Getenv("USER")
		if user == "" {
			user = os.Getenv("USERNAME") // Windows
		}
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.opts.ConnectTimeout,
	}, nil
}

func (s *SSH) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.opts.InsecureIgnoreHost {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := s.opts.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("known hosts (set insecure=true to skip verification): %w", err)
	}
	return cb, nil
}

// keepAlive sends periodic keep-alive requests until the client is closed.
func (s *SSH) keepAlive(client *ssh.Client, done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.SSHKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				return
			}
		}
	}
}

// DialContext opens a direct-tcpip channel from the jump host to addr.
func (s *SSH) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := client.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s via %s: %w", addr, s, err)
	}
	return conn, nil
}

// getSFTP returns the SFTP client, creating it if necessary.
func (s *SSH) getSFTP(ctx context.Context) (*sftp.Client, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sftp != nil {
		return s.sftp, nil
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("create SFTP client: %w", err)
	}
	s.sftp = sftpClient
	return s.sftp, nil
}

// Put copies a local file to the jump host.
func (s *SSH) Put(ctx context.Context, localPath, remotePath string) error {
	if err := ValidatePath(remotePath); err != nil {
		return err
	}
	sftpClient, err := s.getSFTP(ctx)
	if err != nil {
		return err
	}

	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer localFile.Close()

	localInfo, err := localFile.Stat()
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}

	if dir := path.Dir(remotePath); dir != "." {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return fmt.Errorf("create remote directory: %w", err)
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file: %w", err)
	}
	defer remoteFile.Close()

	if _, err := io.Copy(remoteFile, localFile); err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	// Permissions are best effort; some servers refuse chmod.
	_ = sftpClient.Chmod(remotePath, localInfo.Mode())
	return nil
}

// Close closes the SFTP session and the SSH connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.sftp != nil {
		if err := s.sftp.Close(); err != nil {
			errs = append(errs, err)
		}
		s.sftp = nil
	}
	if s.client != nil {
		close(s.done)
		if err := s.client.Close(); err != nil {
			errs = append(errs, err)
		}
		s.client = nil
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// String returns the jump host as an ssh:// URL.
func (s *SSH) String() string {
	user := s.opts.User
	if user == "" {
		user = os.Getenv("USER")
		if user == "" {
			user = "unknown"
		}
	}
	port := s.opts.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("ssh://%s@%s", user, net.JoinHostPort(s.host, strconv.Itoa(port)))
}

// sshAgentAuth returns an SSH agent authentication method, or nil when no
// agent socket is reachable.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers)
}

// publicKeyAuth returns a public key authentication method.
func publicKeyAuth(keyPath, passphrase string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// defaultKeyPaths returns default SSH key file paths.
func defaultKeyPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
}
