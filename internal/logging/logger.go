package logging

// Leveled logging with one append-only file per component

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel maps a config or flag value to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "off":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelSilent:
		return "silent"
	case LogLevelError:
		return "error"
	case LogLevelInfo:
		return "info"
	case LogLevelVerbose:
		return "verbose"
	case LogLevelDebug:
		return "debug"
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// Logger provides leveled logging to the console and an optional log file.
// The file is opened in append mode on the first message, so components that
// never log leave nothing behind.
type Logger struct {
	mu      sync.Mutex
	level   LogLevel
	path    string
	file    *os.File
	fileLog *log.Logger
	openErr error
	stdout  *log.Logger
	stderr  *log.Logger
}

// NewLogger creates a new logger. logFile may be empty for console-only output.
func NewLogger(level LogLevel, logFile string) *Logger {
	return &Logger{
		level:  level,
		path:   logFile,
		stdout: log.New(os.Stdout, "", log.LstdFlags),
		stderr: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// ForComponent creates a logger writing to <dir>/<component>.log.
func ForComponent(dir, component string, level LogLevel) *Logger {
	if dir == "" {
		return NewLogger(level, "")
	}
	return NewLogger(level, filepath.Join(dir, component+".log"))
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := NewLogger(LogLevelSilent, "")
	l.stdout = log.New(io.Discard, "", 0)
	l.stderr = log.New(io.Discard, "", 0)
	return l
}

// SetConsole redirects console output.
func (l *Logger) SetConsole(stdout, stderr io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = log.New(stdout, "", log.LstdFlags)
	l.stderr = log.New(stderr, "", log.LstdFlags)
}

// Path returns the log file path, or "" for console-only loggers.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the logger and flushes all data
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.fileLog = nil
		return err
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		msg := fmt.Sprintf("ERROR: "+format, v...)
		l.write(msg, true)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		msg := fmt.Sprintf("INFO: "+format, v...)
		l.write(msg, false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LogLevelVerbose {
		msg := fmt.Sprintf("VERBOSE: "+format, v...)
		l.write(msg, false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		msg := fmt.Sprintf("DEBUG: "+format, v...)
		l.write(msg, false)
	}
}

// openLocked opens the log file on first use. Caller holds l.mu.
func (l *Logger) openLocked() {
	if l.fileLog != nil || l.path == "" || l.openErr != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.openErr = err
		l.stderr.Printf("WARNING: log file %s disabled: %v", l.path, err)
		return
	}
	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		l.openErr = err
		l.stderr.Printf("WARNING: log file %s disabled: %v", l.path, err)
		return
	}
	l.file = file
	l.fileLog = log.New(file, "", log.LstdFlags)
}

// write writes a message to the appropriate outputs
func (l *Logger) write(msg string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.openLocked()
	if l.fileLog != nil {
		l.fileLog.Println(msg)
	}

	// Errors go to stderr, everything else to stdout
	if isError {
		l.stderr.Println(msg)
	} else {
		l.stdout.Println(msg)
	}
}

// LogRequest logs the outcome of one matrix request.
func (l *Logger) LogRequest(proxy, url string, success bool, exitCode int, err error) {
	var statusStr string
	if success {
		statusStr = "SUCCESS"
	} else {
		statusStr = "FAILED"
	}

	var errStr string
	if err != nil {
		errStr = fmt.Sprintf(" - error: %v", err)
	}

	msg := fmt.Sprintf("%s %s via %s (exit: %d)%s", statusStr, url, proxy, exitCode, errStr)

	if success {
		l.Info("%s", msg)
	} else {
		l.Error("%s", msg)
	}
}
