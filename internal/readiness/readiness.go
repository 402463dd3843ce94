// Package readiness waits for artifacts produced by sibling processes and
// probes proxy ports.
package readiness

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/tturner/proxyja4/internal/errors"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 60 * time.Second
)

// Poller checks for a file at a fixed interval until it appears or the
// timeout elapses.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration

	exists func(path string) bool
}

// NewPoller returns a Poller; zero durations take the defaults.
func NewPoller(interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{Interval: interval, Timeout: timeout, exists: fileExists}
}

// WaitForFile reports whether path exists before the timeout. It returns
// within Timeout+Interval and returns false once ctx is done.
func (p *Poller) WaitForFile(ctx context.Context, path string) bool {
	return p.Wait(ctx, path) == nil
}

// Wait is WaitForFile with the reason on failure: a TimeoutFailure, or the
// context error on cancellation.
func (p *Poller) Wait(ctx context.Context, path string) error {
	exists := p.exists
	if exists == nil {
		exists = fileExists
	}
	interval, timeout := p.Interval, p.Timeout
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if exists(path) {
			return nil
		}
		if time.Since(start) >= timeout {
			return errors.NewPath(errors.KindTimeout, "wait for", path,
				fmt.Errorf("not present after %v", timeout))
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CheckTCP makes a single connection attempt to addr.
func CheckTCP(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.NewPath(errors.KindTransport, "dial", addr, err)
	}
	conn.Close()
	return nil
}
