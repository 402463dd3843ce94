package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func quiet(l *Logger) *Logger {
	var out, errOut bytes.Buffer
	l.SetConsole(&out, &errOut)
	return l
}

func TestNewLogger_LazyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ca.log")
	l := quiet(NewLogger(LogLevelInfo, path))
	defer l.Close()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("log file should not exist before first message, stat err = %v", err)
	}

	l.Info("hello")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file should exist after first message: %v", err)
	}
}

func TestForComponent(t *testing.T) {
	dir := t.TempDir()
	l := ForComponent(dir, "capture", LogLevelInfo)
	if l.Path() != filepath.Join(dir, "capture.log") {
		t.Errorf("Path() = %q", l.Path())
	}
	if ForComponent("", "capture", LogLevelInfo).Path() != "" {
		t.Error("empty dir should give console-only logger")
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.log")

	l := quiet(NewLogger(LogLevelInfo, path))
	l.Info("first run")
	l.Close()

	l = quiet(NewLogger(LogLevelInfo, path))
	l.Info("second run")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], "INFO: first run") || !strings.Contains(lines[1], "INFO: second run") {
		t.Errorf("unexpected content: %q", data)
	}
	// log.LstdFlags prefix: "2006/01/02 15:04:05 "
	if len(lines[0]) < 20 || lines[0][4] != '/' || lines[0][10] != ' ' {
		t.Errorf("line should be timestamp-prefixed: %q", lines[0])
	}
}

func TestLoggerLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l := quiet(NewLogger(LogLevelInfo, path))

	l.Error("error msg")
	l.Info("info msg")
	l.Verbose("verbose msg")
	l.Debug("debug msg")

	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "ERROR: error msg") {
		t.Error("log should contain error message")
	}
	if !strings.Contains(content, "INFO: info msg") {
		t.Error("log should contain info message")
	}
	if strings.Contains(content, "VERBOSE: verbose msg") {
		t.Error("log should NOT contain verbose message at Info level")
	}
	if strings.Contains(content, "DEBUG: debug msg") {
		t.Error("log should NOT contain debug message at Info level")
	}
}

func TestLoggerSilentLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l := quiet(NewLogger(LogLevelSilent, path))

	l.Error("should not appear")
	l.Info("should not appear")
	l.Close()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("silent logger should not create a file")
	}
}

func TestLoggerConsoleRouting(t *testing.T) {
	l := NewLogger(LogLevelInfo, "")
	var out, errOut bytes.Buffer
	l.SetConsole(&out, &errOut)

	l.Info("to stdout")
	l.Error("to stderr")

	if !strings.Contains(out.String(), "to stdout") || strings.Contains(out.String(), "to stderr") {
		t.Errorf("stdout = %q", out.String())
	}
	if !strings.Contains(errOut.String(), "to stderr") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestLoggerUnwritableFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	l := NewLogger(LogLevelInfo, filepath.Join(file, "sub", "x.log"))
	var out, errOut bytes.Buffer
	l.SetConsole(&out, &errOut)

	l.Info("still printed")
	l.Info("again")

	if !strings.Contains(out.String(), "still printed") {
		t.Error("console output should continue when the file cannot be opened")
	}
	if strings.Count(errOut.String(), "WARNING") != 1 {
		t.Errorf("expected exactly one warning, got %q", errOut.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"", LogLevelInfo, false},
		{"info", LogLevelInfo, false},
		{"DEBUG", LogLevelDebug, false},
		{"verbose", LogLevelVerbose, false},
		{"error", LogLevelError, false},
		{"silent", LogLevelSilent, false},
		{"loud", LogLevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.in, got, tt.want)
		}
		if back, _ := ParseLevel(got.String()); back != got {
			t.Errorf("ParseLevel(%q.String()) = %d", got, back)
		}
	}
}

func TestLogRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l := quiet(NewLogger(LogLevelInfo, path))

	l.LogRequest("squid", "https://example.com", true, 0, nil)
	l.LogRequest("mitmproxy", "http://example.com", false, 28, nil)
	l.Close()

	data, _ := os.ReadFile(path)
	content := string(data)

	if !strings.Contains(content, "SUCCESS https://example.com via squid (exit: 0)") {
		t.Errorf("missing success line: %s", content)
	}
	if !strings.Contains(content, "ERROR: FAILED http://example.com via mitmproxy (exit: 28)") {
		t.Errorf("missing failure line: %s", content)
	}
}

func TestClose_NilFile(t *testing.T) {
	l := NewLogger(LogLevelInfo, "")
	if err := l.Close(); err != nil {
		t.Errorf("Close with nil file should not error: %v", err)
	}
}
