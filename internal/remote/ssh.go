package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// SSHConfig describes the logger host.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	KeyPath        string // private key file; takes precedence over Password
	Password       string
	KnownHostsPath string // empty disables host key verification
	Dir            string // directory holding the logs on the remote host
	Timeout        time.Duration
}

// SSHSource fetches files by running cat on the logger host. The client
// connection is reused across fetches and redialled after a failure.
type SSHSource struct {
	cfg    SSHConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHSource creates an SSHSource. No connection is made until the
// first Fetch.
func NewSSHSource(cfg SSHConfig, logger *slog.Logger) (*SSHSource, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, errors.New("remote: ssh host and user are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SSHSource{cfg: cfg, logger: logger.With(slog.String("component", "ssh_source"))}, nil
}

// Fetch returns the contents of name in the configured directory. A
// missing remote file yields an error wrapping domain.ErrNotFound.
func (s *SSHSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		s.reset()
		return nil, fmt.Errorf("remote: ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(catCommand(s.cfg.Dir, name)) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, classifyRunError(name, err, stderr.String())
		}
	}
	return stdout.Bytes(), nil
}

// Close closes the underlying connection.
func (s *SSHSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SSHSource) dial(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	clientCfg, err := s.clientConfig()
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("remote: ssh handshake %s: %w", addr, err)
	}
	s.client = ssh.NewClient(c, chans, reqs)
	s.logger.Info("ssh connected", slog.String("addr", addr), slog.String("user", s.cfg.User))
	return s.client, nil
}

func (s *SSHSource) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

func (s *SSHSource) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if s.cfg.KeyPath != "" {
		key, err := os.ReadFile(s.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("remote: read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("remote: parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.cfg.Password != "" {
		auth = append(auth, ssh.Password(s.cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("remote: no ssh auth method configured")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if s.cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(s.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("remote: known hosts: %w", err)
		}
		hostKey = cb
	}

	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         s.cfg.Timeout,
	}, nil
}

// catCommand builds the remote command for name under dir.
func catCommand(dir, name string) string {
	target := path.Base(name)
	if dir != "" {
		target = path.Join(dir, target)
	}
	return "cat " + shellQuote(target)
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func classifyRunError(name string, err error, stderr string) error {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) && strings.Contains(stderr, "No such file") {
		return fmt.Errorf("remote: %s: %w", name, domain.ErrNotFound)
	}
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("remote: cat %s: %w: %s", name, err, msg)
	}
	return fmt.Errorf("remote: cat %s: %w", name, err)
}
