// Package transport provides abstractions for command execution and file
// retrieval on a capture agent, which may be the local host, a container
// driven through its runtime CLI, or a remote host reached over SSH.
package transport

import (
	"context"
	"time"
)

// Transport abstracts agent execution and file transfer.
type Transport interface {
	// Exec runs a command and returns exit code, stdout, stderr.
	// cmd is the command as argv (not shell string).
	// env is additional environment variables.
	// cwd is the working directory (empty = default).
	Exec(ctx context.Context, cmd []string, env map[string]string, cwd string) (exitCode int, stdout, stderr string, err error)

	// Start launches a command detached from the caller and returns once it
	// has been spawned. The command keeps running after Start returns.
	Start(ctx context.Context, cmd []string) error

	// Get copies a file from the agent to a local path.
	Get(ctx context.Context, remotePath, localPath string) error

	// Mkdir creates a directory (and parents) on the agent.
	Mkdir(ctx context.Context, remotePath string) error

	// Check verifies the agent is reachable and ready to run commands.
	Check(ctx context.Context) error

	// Close releases any held resources (e.g., SSH connection).
	Close() error

	// String returns a human-readable description of the transport.
	String() string
}

// Options configures transport behavior.
type Options struct {
	Timeout time.Duration // Default command timeout
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Timeout: 2 * time.Minute,
	}
}

// SSHOptions configures SSH-specific transport behavior.
type SSHOptions struct {
	Options

	// Authentication
	User          string // SSH username
	KeyFile       string // Path to private key file
	KeyPassphrase string // Passphrase for encrypted key (optional)
	Password      string // Password authentication (fallback)
	Agent         bool   // Use SSH agent for authentication

	// Host verification
	KnownHostsFile     string // Path to known_hosts file
	InsecureIgnoreHost bool   // Skip host key verification (dangerous)

	// Connection
	Port           int           // SSH port (default 22)
	ConnectTimeout time.Duration // Connection timeout
}

// DefaultSSHOptions returns sensible default SSH options.
func DefaultSSHOptions() SSHOptions {
	return SSHOptions{
		Options:        DefaultOptions(),
		Port:           22,
		ConnectTimeout: 30 * time.Second,
		Agent:          true, // Try SSH agent by default
	}
}
