package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tturner/proxyja4/internal/artifact"
)

// SSH reaches a capture sensor over SSH. Commands run in SSH sessions and
// capture files come back over SFTP. The connection is opened on first use
// and shared until Close.
type SSH struct {
	opts SSHOptions
	host string

	mu     sync.Mutex
	client *ssh.Client
	sftp   *sftp.Client
}

// NewSSH creates an SSH transport. No connection is made until first use.
func NewSSH(host string, opts SSHOptions) (*SSH, error) {
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	return &SSH{opts: opts, host: host}, nil
}

func (s *SSH) addr() string {
	port := s.opts.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(s.host, strconv.Itoa(port))
}

// dial returns the shared client, connecting if needed.
func (s *SSH) dial(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	config, err := s.clientConfig()
	if err != nil {
		return nil, fmt.Errorf("build SSH config: %w", err)
	}

	addr := s.addr()
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s: %w", addr, err)
	}
	s.client = ssh.NewClient(sshConn, chans, reqs)
	return s.client, nil
}

// files returns the shared SFTP client.
func (s *SSH) files(ctx context.Context) (*sftp.Client, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftp == nil {
		s.sftp, err = sftp.NewClient(client)
		if err != nil {
			return nil, fmt.Errorf("open SFTP session: %w", err)
		}
	}
	return s.sftp, nil
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := s.authMethods()
	if err != nil {
		return nil, err
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}
	hostKey, err := hostKeyCallback(s.opts)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            sshUser(s.opts),
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         s.opts.ConnectTimeout,
	}, nil
}

// authMethods tries the agent, then an explicit key, then the usual key
// files when neither was asked for, then a password.
func (s *SSH) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if s.opts.Agent {
		if m := agentAuth(); m != nil {
			methods = append(methods, m)
		}
	}
	if s.opts.KeyFile != "" {
		m, err := keyAuth(s.opts.KeyFile, s.opts.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("key file auth: %w", err)
		}
		methods = append(methods, m)
	} else if !s.opts.Agent {
		for _, path := range defaultKeyPaths() {
			if m, err := keyAuth(path, ""); err == nil {
				methods = append(methods, m)
				break
			}
		}
	}
	if s.opts.Password != "" {
		methods = append(methods, ssh.Password(s.opts.Password))
	}
	return methods, nil
}

// hostKeyCallback verifies against the configured known_hosts file, or
// ~/.ssh/known_hosts when present. Sensors without either are accepted
// unverified.
func hostKeyCallback(opts SSHOptions) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHost {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("known hosts: %w", err)
		}
		return cb, nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		if cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts")); err == nil {
			return cb, nil
		}
	}
	return ssh.InsecureIgnoreHostKey(), nil
}

func sshUser(opts SSHOptions) string {
	for _, u := range []string{opts.User, os.Getenv("USER"), os.Getenv("USERNAME")} {
		if u != "" {
			return u
		}
	}
	return "root"
}

// Exec runs a command remotely and returns exit code, stdout, stderr.
func (s *SSH) Exec(ctx context.Context, cmd []string, env map[string]string, cwd string) (int, string, string, error) {
	if len(cmd) == 0 {
		return -1, "", "", fmt.Errorf("empty command")
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	client, err := s.dial(ctx)
	if err != nil {
		return -1, "", "", err
	}
	session, err := client.NewSession()
	if err != nil {
		return -1, "", "", fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	// Some servers refuse Setenv; the command still runs without it.
	for k, v := range env {
		_ = session.Setenv(k, v)
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(buildCommandString(cmd, cwd)) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return -1, stdout.String(), stderr.String(), ctx.Err()
	case err := <-done:
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return exitErr.ExitStatus(), stdout.String(), stderr.String(), nil
		}
		return 0, stdout.String(), stderr.String(), err
	}
}

// Start launches cmd under nohup so tcpdump outlives the SSH session.
func (s *SSH) Start(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("empty command")
	}
	exitCode, _, stderr, err := s.Exec(ctx, []string{"sh", "-c", buildDetachedString(cmd)}, nil, "")
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("detached start exited %d: %s", exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// Get downloads a capture over SFTP. The local file is replaced only after
// the whole remote file has been read.
func (s *SSH) Get(ctx context.Context, remotePath, localPath string) error {
	fs, err := s.files(ctx)
	if err != nil {
		return err
	}
	remote, err := fs.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open %s on %s: %w", remotePath, s.host, err)
	}
	defer remote.Close()

	info, err := remote.Stat()
	if err != nil {
		return fmt.Errorf("stat %s on %s: %w", remotePath, s.host, err)
	}
	return artifact.WriteFrom(localPath, remote, info.Mode().Perm())
}

// Mkdir creates a directory on the remote host.
func (s *SSH) Mkdir(ctx context.Context, path string) error {
	fs, err := s.files(ctx)
	if err != nil {
		return err
	}
	return fs.MkdirAll(path)
}

// Check opens the SSH connection if needed and runs a no-op command.
func (s *SSH) Check(ctx context.Context) error {
	exitCode, _, stderr, err := s.Exec(ctx, []string{"true"}, nil, "")
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("remote shell exited %d: %s", exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// Close closes the SFTP session and the connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	if s.sftp != nil {
		first = s.sftp.Close()
		s.sftp = nil
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && first == nil {
			first = err
		}
		s.client = nil
	}
	return first
}

// String returns the agent spec this transport was built from.
func (s *SSH) String() string {
	return fmt.Sprintf("ssh://%s@%s", sshUser(s.opts), s.addr())
}

// agentAuth uses the keys held by the agent at SSH_AUTH_SOCK.
func agentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers)
}

func keyAuth(path, passphrase string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(path)
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
		return nil, fmt.Errorf("parse key %s: %w", path, err)
	}
	return ssh.PublicKeys(signer), nil
}

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

// buildCommandString joins argv into a shell command, quoting where needed.
func buildCommandString(cmd []string, cwd string) string {
	parts := make([]string, len(cmd))
	for i, arg := range cmd {
		parts[i] = arg
		if needsQuoting(arg) {
			parts[i] = shellQuote(arg)
		}
	}
	line := strings.Join(parts, " ")
	if cwd != "" {
		return "cd " + shellQuote(cwd) + " && " + line
	}
	return line
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// buildDetachedString wraps a command so the remote shell returns at once
// and the process survives the session.
func buildDetachedString(cmd []string) string {
	return "nohup " + buildCommandString(cmd, "") + " >/dev/null 2>&1 &"
}

func needsQuoting(s string) bool {
	return s == "" || strings.ContainsAny(s, " \t\n\"'\\$`!*?[](){}<>|&;")
}

var _ Transport = (*SSH)(nil)
