// Package capture drives a packet capture on a capture agent: tcpdump is
// started detached on the agent, interrupted on stop, and the pcap is copied
// back to the local captures directory.
package capture

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tturner/proxyja4/internal/artifact"
	"github.com/tturner/proxyja4/internal/errors"
	"github.com/tturner/proxyja4/internal/logging"
	"github.com/tturner/proxyja4/internal/transport"
)

// AutoName requests a timestamped output file name.
const AutoName = "auto"

// PointerFile records the name of the capture most recently started.
const PointerFile = ".current_capture"

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateRetrieved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateRetrieved:
		return "retrieved"
	}
	return "unknown"
}

// Options configures paths and the capture tool on the agent.
type Options struct {
	RemoteDir      string
	LocalDir       string
	Tool           string
	InstallCommand []string
	ExcludePort    int // 0 captures everything
	GracePeriod    time.Duration
	FallbackName   string
}

// DefaultOptions matches the capture_poc container layout.
func DefaultOptions() Options {
	return Options{
		RemoteDir:      "/captures",
		LocalDir:       "captures",
		Tool:           "tcpdump",
		InstallCommand: []string{"apk", "add", "tcpdump"},
		ExcludePort:    22,
		GracePeriod:    2 * time.Second,
		FallbackName:   "test.pcap",
	}
}

// Session manages one named capture. A Session is not safe for concurrent use.
type Session struct {
	agent transport.Transport
	opts  Options
	log   *logging.Logger

	state State
	iface string
	name  string

	now func() time.Time
}

// NewSession creates an idle session on agent.
func NewSession(agent transport.Transport, opts Options, logger *logging.Logger) *Session {
	def := DefaultOptions()
	if opts.RemoteDir == "" {
		opts.RemoteDir = def.RemoteDir
	}
	if opts.LocalDir == "" {
		opts.LocalDir = def.LocalDir
	}
	if opts.Tool == "" {
		opts.Tool = def.Tool
	}
	if opts.FallbackName == "" {
		opts.FallbackName = def.FallbackName
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		agent: agent,
		opts:  opts,
		log:   logger,
		now:   time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Name returns the resolved output file name, or "" before Start.
func (s *Session) Name() string { return s.name }

// Interface returns the interface the capture was started on.
func (s *Session) Interface() string { return s.iface }

// LocalPath returns where a capture named name is retrieved to.
func (s *Session) LocalPath(name string) string {
	return filepath.Join(s.opts.LocalDir, name)
}

// RemotePath returns where the agent writes a capture named name.
func (s *Session) RemotePath(name string) string {
	return path.Join(s.opts.RemoteDir, name)
}

// Interfaces lists the agent's network interfaces as a single line.
func (s *Session) Interfaces(ctx context.Context) (string, bool) {
	if !s.agentReachable(ctx) {
		return "", false
	}
	exitCode, stdout, stderr, err := s.agent.Exec(ctx, []string{"ip", "link"}, nil, "")
	if err != nil || exitCode != 0 {
		s.log.Error("Could not list interfaces on %s: %s", s.agent, reason(err, stderr))
		return "", false
	}
	line := flatten(stdout)
	s.log.Info("Available interfaces on %s: %s", s.agent, line)
	return line, true
}

// Start launches the capture tool on iface writing to outputName, or to a
// timestamped name when outputName is "auto". Any capture already running
// on the agent is stopped first.
func (s *Session) Start(ctx context.Context, iface, outputName string) bool {
	if err := s.start(ctx, iface, outputName); err != nil {
		s.log.Error("Failed to start packet capture: %v", err)
		return false
	}
	s.log.Info("Packet capture started on %s interface %s -> %s", s.agent, s.iface, s.RemotePath(s.name))
	return true
}

func (s *Session) start(ctx context.Context, iface, outputName string) error {
	const op = "start capture"

	if iface == "" {
		return errors.Errorf(errors.KindPrecondition, op, "no interface given")
	}
	if err := s.agent.Check(ctx); err != nil {
		return errors.WrapAgentError(err, s.agent.String())
	}
	if err := s.ensureTool(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(s.opts.LocalDir, 0755); err != nil {
		return errors.NewPath(errors.KindPrecondition, "create captures directory", s.opts.LocalDir, err)
	}
	if err := s.agent.Mkdir(ctx, s.opts.RemoteDir); err != nil {
		return errors.NewPath(errors.KindTransport, "create remote captures directory", s.opts.RemoteDir, err)
	}

	// A previous tcpdump would keep the interface busy and its file open.
	if s.interrupt(ctx) {
		s.log.Verbose("Stopped a capture that was already running")
		s.wait(ctx, s.opts.GracePeriod)
	}

	name, err := s.resolveName(outputName)
	if err != nil {
		return errors.New(errors.KindPrecondition, op, err)
	}

	if err := s.agent.Start(ctx, s.captureCommand(iface, name)); err != nil {
		return errors.New(errors.KindTransport, op, err)
	}

	s.iface = iface
	s.name = name
	s.state = StateRunning

	pointer := filepath.Join(s.opts.LocalDir, PointerFile)
	if err := artifact.WriteFile(pointer, []byte(name+"\n"), 0644); err != nil {
		// The session still knows the name; only a later process loses it.
		s.log.Error("Failed to record current capture in %s: %v", pointer, err)
	}
	return nil
}

func (s *Session) captureCommand(iface, name string) []string {
	cmd := []string{s.opts.Tool, "-i", iface, "-w", s.RemotePath(name)}
	if s.opts.ExcludePort > 0 {
		cmd = append(cmd, "not", "port", strconv.Itoa(s.opts.ExcludePort))
	}
	return cmd
}

func (s *Session) resolveName(outputName string) (string, error) {
	switch outputName {
	case "":
		return s.opts.FallbackName, nil
	case AutoName:
		return artifact.TimestampName("capture", ".pcap", s.now()), nil
	}
	if strings.ContainsAny(outputName, `/\`) || outputName == "." || outputName == ".." {
		return "", fmt.Errorf("output name %q must be a plain file name", outputName)
	}
	return outputName, nil
}

// ensureTool checks for the capture tool on the agent and installs it when
// missing.
func (s *Session) ensureTool(ctx context.Context) error {
	const op = "check capture tool"

	exitCode, _, _, err := s.agent.Exec(ctx, []string{"which", s.opts.Tool}, nil, "")
	if err != nil || exitCode != 0 {
		if len(s.opts.InstallCommand) == 0 {
			return errors.Errorf(errors.KindPrecondition, op, "%s not found on %s", s.opts.Tool, s.agent)
		}
		s.log.Info("%s not found on %s, installing...", s.opts.Tool, s.agent)
		exitCode, _, stderr, err := s.agent.Exec(ctx, s.opts.InstallCommand, nil, "")
		if err != nil || exitCode != 0 {
			return errors.Errorf(errors.KindPrecondition, op, "install %s: %s", s.opts.Tool, reason(err, stderr))
		}
		s.log.Info("%s installed successfully", s.opts.Tool)
	}

	exitCode, stdout, stderr, err := s.agent.Exec(ctx, []string{s.opts.Tool, "--version"}, nil, "")
	if err != nil || exitCode != 0 {
		return errors.Errorf(errors.KindPrecondition, op, "%s --version: %s", s.opts.Tool, reason(err, stderr))
	}
	// tcpdump prints its version on stderr
	s.log.Info("%s version: %s", s.opts.Tool, flatten(stdout+" "+stderr))
	return nil
}

// interrupt sends SIGINT to the capture tool and reports whether a process
// received it.
func (s *Session) interrupt(ctx context.Context) bool {
	exitCode, _, _, err := s.agent.Exec(ctx, []string{"pkill", "-INT", s.opts.Tool}, nil, "")
	return err == nil && exitCode == 0
}

// Stop interrupts the capture, waits for the tool to flush, and retrieves the
// file. The name comes from the session, then the pointer file, then the
// fallback name.
func (s *Session) Stop(ctx context.Context) bool {
	if !s.agentReachable(ctx) {
		return false
	}

	prev := s.state
	s.state = StateStopping
	if !s.interrupt(ctx) {
		s.log.Info("Failed to send SIGINT to %s on %s (it may not be running)", s.opts.Tool, s.agent)
	}
	s.wait(ctx, s.opts.GracePeriod)

	name := s.resolveStopName()
	if !s.Retrieve(ctx, name) {
		if prev == StateRunning {
			// Let a retry find the capture again.
			s.state = StateRunning
		} else {
			s.state = StateIdle
		}
		return false
	}
	return true
}

func (s *Session) resolveStopName() string {
	if s.name != "" {
		return s.name
	}
	name, err := CurrentCapture(s.opts.LocalDir)
	if err == nil && name != "" {
		s.log.Verbose("Using capture name %s from %s", name, PointerFile)
		return name
	}
	s.log.Verbose("No current capture recorded, using %s", s.opts.FallbackName)
	return s.opts.FallbackName
}

// Retrieve copies the named capture from the agent into the local captures
// directory and checks it is non-empty.
func (s *Session) Retrieve(ctx context.Context, name string) bool {
	size, err := s.retrieve(ctx, name)
	if err != nil {
		s.log.Error("Failed to retrieve %s: %v", name, err)
		return false
	}
	s.log.Info("%s copied to %s (%d bytes)", name, s.opts.LocalDir, size)

	s.name = name
	s.state = StateRetrieved

	local := s.LocalPath(name)
	sum, err := Summarize(local)
	if err != nil {
		s.log.Error("Could not summarize %s: %v", local, err)
	} else {
		s.log.Info("%s: %s", name, sum)
	}
	return true
}

func (s *Session) retrieve(ctx context.Context, name string) (int64, error) {
	if _, err := s.resolveName(name); err != nil || name == "" || name == AutoName {
		return 0, errors.Errorf(errors.KindPrecondition, "retrieve capture", "invalid capture name %q", name)
	}
	if err := s.agent.Check(ctx); err != nil {
		return 0, errors.WrapAgentError(err, s.agent.String())
	}
	if err := os.MkdirAll(s.opts.LocalDir, 0755); err != nil {
		return 0, errors.NewPath(errors.KindPrecondition, "create captures directory", s.opts.LocalDir, err)
	}

	local := s.LocalPath(name)
	if err := s.agent.Get(ctx, s.RemotePath(name), local); err != nil {
		return 0, errors.NewPath(errors.KindTransport, "copy", s.RemotePath(name), err)
	}
	size, err := artifact.NonEmptySize(local)
	if err != nil {
		return 0, errors.NewPath(errors.KindPrecondition, "verify", local, err)
	}
	return size, nil
}

func (s *Session) agentReachable(ctx context.Context) bool {
	if err := s.agent.Check(ctx); err != nil {
		s.log.Error("%v", errors.WrapAgentError(err, s.agent.String()))
		return false
	}
	return true
}

func (s *Session) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// CurrentCapture reads the capture name recorded in dir's pointer file.
func CurrentCapture(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, PointerFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func reason(err error, stderr string) string {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return msg
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}
