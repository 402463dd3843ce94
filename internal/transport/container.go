package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Container implements Transport for a container reached through its
// runtime CLI (docker or podman) on the local host.
type Container struct {
	runtime string
	name    string
	host    Transport
}

// NewContainer creates a transport for the named container. runtime is the
// CLI binary, "docker" when empty.
func NewContainer(runtime, name string, opts Options) (*Container, error) {
	if name == "" {
		return nil, fmt.Errorf("container name is required")
	}
	if runtime == "" {
		runtime = "docker"
	}
	return &Container{runtime: runtime, name: name, host: NewLocal(opts)}, nil
}

// Name returns the container name.
func (c *Container) Name() string {
	return c.name
}

// Exec runs a command inside the container.
func (c *Container) Exec(ctx context.Context, cmd []string, env map[string]string, cwd string) (int, string, string, error) {
	if len(cmd) == 0 {
		return -1, "", "", fmt.Errorf("empty command")
	}
	return c.host.Exec(ctx, c.execArgv(false, cmd, env, cwd), nil, "")
}

// Start runs a command inside the container in detached mode.
func (c *Container) Start(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("empty command")
	}
	exitCode, _, stderr, err := c.host.Exec(ctx, c.execArgv(true, cmd, nil, ""), nil, "")
	if err != nil {
		return fmt.Errorf("%s exec -d: %w", c.runtime, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s exec -d exited %d: %s", c.runtime, exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// Get copies a file out of the container.
func (c *Container) Get(ctx context.Context, remotePath, localPath string) error {
	argv := []string{c.runtime, "cp", c.name + ":" + remotePath, localPath}
	exitCode, _, stderr, err := c.host.Exec(ctx, argv, nil, "")
	if err != nil {
		return fmt.Errorf("%s cp: %w", c.runtime, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s cp exited %d: %s", c.runtime, exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// Mkdir creates a directory inside the container.
func (c *Container) Mkdir(ctx context.Context, remotePath string) error {
	exitCode, _, stderr, err := c.Exec(ctx, []string{"mkdir", "-p", remotePath}, nil, "")
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("mkdir %s exited %d: %s", remotePath, exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// Check verifies the container is running.
func (c *Container) Check(ctx context.Context) error {
	argv := []string{c.runtime, "ps", "-q", "-f", "name=" + c.name}
	exitCode, stdout, stderr, err := c.host.Exec(ctx, argv, nil, "")
	if err != nil {
		return fmt.Errorf("%s ps: %w", c.runtime, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s ps exited %d: %s", c.runtime, exitCode, strings.TrimSpace(stderr))
	}
	if strings.TrimSpace(stdout) == "" {
		return fmt.Errorf("container %s is not running", c.name)
	}
	return nil
}

// Close is a no-op; the container outlives the transport.
func (c *Container) Close() error {
	return nil
}

// String returns a description of this transport.
func (c *Container) String() string {
	return c.runtime + "://" + c.name
}

func (c *Container) execArgv(detach bool, cmd []string, env map[string]string, cwd string) []string {
	argv := []string{c.runtime, "exec"}
	if detach {
		argv = append(argv, "-d")
	}
	if cwd != "" {
		argv = append(argv, "-w", cwd)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argv = append(argv, "-e", k+"="+env[k])
	}
	argv = append(argv, c.name)
	return append(argv, cmd...)
}

// Ensure Container implements Transport
var _ Transport = (*Container)(nil)
