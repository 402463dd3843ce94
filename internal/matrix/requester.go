package matrix

import (
	"context"
	"strconv"
	"time"

	"github.com/tturner/proxyja4/internal/transport"
)

// Outcome is what a single request produced.
type Outcome struct {
	ExitCode int
	Stderr   string
}

// Requester issues one request to url with env applied on top of the
// inherited environment. A non-nil error means the request could not be
// attempted at all.
type Requester interface {
	Request(ctx context.Context, url string, env map[string]string) (Outcome, error)
}

// CurlRequester runs curl through a transport, discarding the body and
// writing response headers to stderr.
type CurlRequester struct {
	Binary  string
	Timeout time.Duration // passed as --max-time

	runner transport.Transport
}

// NewCurlRequester returns a requester running binary on runner. A nil
// runner uses the local host.
func NewCurlRequester(binary string, timeout time.Duration, runner transport.Transport) *CurlRequester {
	if binary == "" {
		binary = "curl"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if runner == nil {
		opts := transport.DefaultOptions()
		// curl enforces --max-time; the transport deadline only catches a hung process.
		opts.Timeout = timeout + 5*time.Second
		runner = transport.NewLocal(opts)
	}
	return &CurlRequester{Binary: binary, Timeout: timeout, runner: runner}
}

// Command returns the argv for url.
func (c *CurlRequester) Command(url string) []string {
	secs := strconv.FormatFloat(c.Timeout.Seconds(), 'f', -1, 64)
	return []string{c.Binary, "-sS", "-D", "/dev/stderr", "-o", "/dev/null", url, "--max-time", secs}
}

func (c *CurlRequester) Request(ctx context.Context, url string, env map[string]string) (Outcome, error) {
	exitCode, _, stderr, err := c.runner.Exec(ctx, c.Command(url), env, "")
	if err != nil {
		return Outcome{ExitCode: -1, Stderr: stderr}, err
	}
	return Outcome{ExitCode: exitCode, Stderr: stderr}, nil
}
