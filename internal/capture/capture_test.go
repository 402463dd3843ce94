package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/tturner/proxyja4/internal/logging"
)

// fakeAgent stands in for the capture container. Commands are matched on
// their first argv element.
type fakeAgent struct {
	checkErr   error
	missing    bool // tool not installed until the install command runs
	installErr bool
	running    bool // a tcpdump process exists
	startErr   error
	getErr     error
	fixture    func(local string)

	execs  [][]string
	starts [][]string
	gets   [][2]string
}

func (f *fakeAgent) Exec(ctx context.Context, cmd []string, env map[string]string, cwd string) (int, string, string, error) {
	f.execs = append(f.execs, cmd)
	switch cmd[0] {
	case "which":
		if f.missing {
			return 1, "", "", nil
		}
		return 0, "/usr/bin/tcpdump\n", "", nil
	case "apk":
		if f.installErr {
			return 1, "", "ERROR: unable to select packages", nil
		}
		f.missing = false
		return 0, "", "", nil
	case "tcpdump":
		return 0, "", "tcpdump version 4.99.4\nlibpcap version 1.10.4\n", nil
	case "pkill":
		if f.running {
			f.running = false
			return 0, "", "", nil
		}
		return 1, "", "", nil
	case "ip":
		return 0, "1: lo: <LOOPBACK,UP>\n2: eth0@if5: <BROADCAST,UP>\n", "", nil
	}
	return 0, "", "", nil
}

func (f *fakeAgent) Start(ctx context.Context, cmd []string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, cmd)
	f.running = true
	return nil
}

func (f *fakeAgent) Get(ctx context.Context, remote, local string) error {
	f.gets = append(f.gets, [2]string{remote, local})
	if f.getErr != nil {
		return f.getErr
	}
	if f.fixture != nil {
		f.fixture(local)
	}
	return nil
}

func (f *fakeAgent) Mkdir(ctx context.Context, remote string) error { return nil }
func (f *fakeAgent) Check(ctx context.Context) error                { return f.checkErr }
func (f *fakeAgent) Close() error                                   { return nil }
func (f *fakeAgent) String() string                                 { return "docker://capture_poc" }

func (f *fakeAgent) ran(name string) int {
	n := 0
	for _, cmd := range f.execs {
		if cmd[0] == name {
			n++
		}
	}
	return n
}

func newTestSession(t *testing.T, agent *fakeAgent) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.LocalDir = filepath.Join(t.TempDir(), "captures")
	opts.GracePeriod = time.Millisecond
	s := NewSession(agent, opts, logging.Discard())
	s.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local) }
	return s
}

func pcapFixture(t *testing.T) func(string) {
	return func(local string) {
		writeFixturePCAP(t, local, []fixturePacket{{dstPort: 443}})
	}
}

func TestStartAutoName(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestSession(t, agent)

	if !s.Start(context.Background(), "eth0", AutoName) {
		t.Fatal("Start returned false")
	}
	if s.State() != StateRunning {
		t.Errorf("state = %v, want running", s.State())
	}
	if s.Name() != "capture_20250304_050607.pcap" {
		t.Errorf("name = %q", s.Name())
	}
	want := []string{"tcpdump", "-i", "eth0", "-w", "/captures/capture_20250304_050607.pcap", "not", "port", "22"}
	if len(agent.starts) != 1 || strings.Join(agent.starts[0], " ") != strings.Join(want, " ") {
		t.Errorf("started %v, want %v", agent.starts, want)
	}

	name, err := CurrentCapture(s.opts.LocalDir)
	if err != nil || name != s.Name() {
		t.Errorf("pointer = %q, %v", name, err)
	}
	entries, _ := os.ReadDir(s.opts.LocalDir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestStartThenStop(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestSession(t, agent)
	agent.fixture = pcapFixture(t)

	if !s.Start(context.Background(), "any", AutoName) {
		t.Fatal("Start failed")
	}
	if !s.Stop(context.Background()) {
		t.Fatal("Stop failed")
	}
	if s.State() != StateRetrieved {
		t.Errorf("state = %v, want retrieved", s.State())
	}

	pattern := regexp.MustCompile(`^capture_\d{8}_\d{6}\.pcap$`)
	local := agent.gets[0][1]
	if !pattern.MatchString(filepath.Base(local)) {
		t.Errorf("retrieved %s", local)
	}
	if agent.gets[0][0] != "/captures/"+filepath.Base(local) {
		t.Errorf("remote path = %s", agent.gets[0][0])
	}
	if info, err := os.Stat(local); err != nil || info.Size() == 0 {
		t.Errorf("local capture missing or empty")
	}
}

func TestStartInstallsMissingTool(t *testing.T) {
	agent := &fakeAgent{missing: true}
	s := newTestSession(t, agent)

	if !s.Start(context.Background(), "eth0", "run.pcap") {
		t.Fatal("Start failed")
	}
	if agent.ran("apk") != 1 {
		t.Errorf("install ran %d times", agent.ran("apk"))
	}
	if agent.ran("tcpdump") != 1 {
		t.Errorf("version check ran %d times", agent.ran("tcpdump"))
	}
}

func TestStartStopsPriorCapture(t *testing.T) {
	agent := &fakeAgent{running: true}
	s := newTestSession(t, agent)

	if !s.Start(context.Background(), "eth0", "run.pcap") {
		t.Fatal("Start failed")
	}
	if agent.ran("pkill") != 1 {
		t.Errorf("pkill ran %d times", agent.ran("pkill"))
	}
	if len(agent.starts) != 1 {
		t.Errorf("started %d captures", len(agent.starts))
	}
}

func TestStartFailures(t *testing.T) {
	tests := []struct {
		name   string
		agent  *fakeAgent
		iface  string
		output string
	}{
		{"agent down", &fakeAgent{checkErr: errors.New("container capture_poc is not running")}, "eth0", "a.pcap"},
		{"install fails", &fakeAgent{missing: true, installErr: true}, "eth0", "a.pcap"},
		{"start fails", &fakeAgent{startErr: errors.New("exec failed")}, "eth0", "a.pcap"},
		{"no interface", &fakeAgent{}, "", "a.pcap"},
		{"path in name", &fakeAgent{}, "eth0", "../escape.pcap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.agent)
			if s.Start(context.Background(), tt.iface, tt.output) {
				t.Fatal("Start succeeded")
			}
			if s.State() != StateIdle {
				t.Errorf("state = %v, want idle", s.State())
			}
			if _, err := CurrentCapture(s.opts.LocalDir); err == nil {
				t.Errorf("pointer written on failed start")
			}
		})
	}
}

func TestStartRestartsRunningCapture(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestSession(t, agent)
	if !s.Start(context.Background(), "eth0", "a.pcap") {
		t.Fatal("first Start failed")
	}
	if !s.Start(context.Background(), "any", "b.pcap") {
		t.Fatal("second Start failed")
	}

	if got := agent.ran("pkill"); got != 2 {
		t.Errorf("pkill ran %d times, want 2", got)
	}
	if len(agent.starts) != 2 {
		t.Fatalf("launched %d captures, want 2", len(agent.starts))
	}
	if got := strings.Join(agent.starts[1], " "); !strings.Contains(got, "-i any -w /captures/b.pcap") {
		t.Errorf("second launch = %q", got)
	}
	if s.Name() != "b.pcap" || s.Interface() != "any" || s.State() != StateRunning {
		t.Errorf("session = %s on %s (%v)", s.Name(), s.Interface(), s.State())
	}
	name, err := CurrentCapture(s.opts.LocalDir)
	if err != nil || name != "b.pcap" {
		t.Errorf("CurrentCapture = %q, %v, want b.pcap", name, err)
	}
}

func TestStopWithoutStartUsesPointer(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestSession(t, agent)
	agent.fixture = pcapFixture(t)

	os.MkdirAll(s.opts.LocalDir, 0755)
	os.WriteFile(filepath.Join(s.opts.LocalDir, PointerFile), []byte("earlier.pcap\n"), 0644)

	if !s.Stop(context.Background()) {
		t.Fatal("Stop failed")
	}
	if agent.gets[0][0] != "/captures/earlier.pcap" {
		t.Errorf("retrieved %s, want earlier.pcap", agent.gets[0][0])
	}
}

func TestStopWithoutStartUsesFallback(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestSession(t, agent)
	agent.fixture = pcapFixture(t)

	if !s.Stop(context.Background()) {
		t.Fatal("Stop failed")
	}
	if agent.gets[0][0] != "/captures/test.pcap" {
		t.Errorf("retrieved %s, want fallback test.pcap", agent.gets[0][0])
	}
	if s.State() != StateRetrieved {
		t.Errorf("state = %v", s.State())
	}
}

func TestRetrieveFailures(t *testing.T) {
	tests := []struct {
		name  string
		agent *fakeAgent
		file  string
	}{
		{"copy fails", &fakeAgent{getErr: errors.New("no such file")}, "a.pcap"},
		{"empty file", &fakeAgent{}, "a.pcap"},
		{"agent down", &fakeAgent{checkErr: errors.New("down")}, "a.pcap"},
		{"bad name", &fakeAgent{}, "../a.pcap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.agent)
			if tt.name == "empty file" {
				tt.agent.fixture = func(local string) { os.WriteFile(local, nil, 0644) }
			}
			if s.Retrieve(context.Background(), tt.file) {
				t.Fatal("Retrieve succeeded")
			}
			if s.State() == StateRetrieved {
				t.Error("state advanced on failure")
			}
		})
	}
}

func TestStopFailureKeepsRunning(t *testing.T) {
	agent := &fakeAgent{getErr: errors.New("copy failed")}
	s := newTestSession(t, agent)

	if !s.Start(context.Background(), "eth0", "a.pcap") {
		t.Fatal("Start failed")
	}
	if s.Stop(context.Background()) {
		t.Fatal("Stop succeeded")
	}
	if s.State() != StateRunning {
		t.Errorf("state = %v, want running for a retry", s.State())
	}
}

func TestRetrieveNonPcapStillSucceeds(t *testing.T) {
	agent := &fakeAgent{fixture: func(local string) { os.WriteFile(local, []byte("not a pcap"), 0644) }}
	s := newTestSession(t, agent)
	if !s.Retrieve(context.Background(), "odd.pcap") {
		t.Fatal("summary failure must not fail retrieval")
	}
}

func TestInterfaces(t *testing.T) {
	s := newTestSession(t, &fakeAgent{})
	line, ok := s.Interfaces(context.Background())
	if !ok {
		t.Fatal("Interfaces failed")
	}
	if strings.Contains(line, "\n") || !strings.Contains(line, "eth0@if5") {
		t.Errorf("interfaces = %q", line)
	}

	down := newTestSession(t, &fakeAgent{checkErr: errors.New("down")})
	if _, ok := down.Interfaces(context.Background()); ok {
		t.Error("Interfaces succeeded with agent down")
	}
}

func TestCaptureCommandWithoutExclusion(t *testing.T) {
	s := newTestSession(t, &fakeAgent{})
	s.opts.ExcludePort = 0
	got := strings.Join(s.captureCommand("any", "x.pcap"), " ")
	if got != "tcpdump -i any -w /captures/x.pcap" {
		t.Errorf("command = %q", got)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle: "idle", StateRunning: "running", StateStopping: "stopping", StateRetrieved: "retrieved", State(9): "unknown",
	} {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), want)
		}
	}
}
