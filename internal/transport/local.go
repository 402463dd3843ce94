package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/tturner/proxyja4/internal/artifact"
)

// Local implements Transport for local execution.
type Local struct {
	opts Options
}

// NewLocal creates a new local transport.
func NewLocal(opts Options) *Local {
	return &Local{opts: opts}
}

// Exec runs a command locally and returns exit code, stdout, stderr.
func (l *Local) Exec(ctx context.Context, cmd []string, env map[string]string, cwd string) (int, string, string, error) {
	if len(cmd) == 0 {
		return -1, "", "", fmt.Errorf("empty command")
	}

	// Apply timeout if set
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)

	// Set environment
	if len(env) > 0 {
		c.Env = os.Environ()
		for k, v := range env {
			c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	// Set working directory
	if cwd != "" {
		c.Dir = cwd
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil // Exit with non-zero is not an error per se
		}
	}
	if err == nil && ctx.Err() != nil {
		// Killed by the deadline rather than exiting on its own.
		err = ctx.Err()
	}

	return exitCode, stdout.String(), stderr.String(), err
}

// Start spawns a command locally without waiting for it.
func (l *Local) Start(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("empty command")
	}
	c := exec.Command(cmd[0], cmd[1:]...)
	if err := c.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd[0], err)
	}
	return c.Process.Release()
}

// Get copies a local file to another local path, replacing dstPath
// atomically.
func (l *Local) Get(ctx context.Context, srcPath, dstPath string) error {
	return artifact.CopyFile(srcPath, dstPath)
}

// Mkdir creates a directory locally.
func (l *Local) Mkdir(ctx context.Context, path string) error {
	return os.MkdirAll(path, 0755)
}

// Check always succeeds for the local host.
func (l *Local) Check(ctx context.Context) error {
	return nil
}

// Close is a no-op for local transport.
func (l *Local) Close() error {
	return nil
}

// String returns a description of this transport.
func (l *Local) String() string {
	return "local"
}
