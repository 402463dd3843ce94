package trust

import (
	"context"
	"time"

	"github.com/tturner/proxyja4/internal/ca"
	"github.com/tturner/proxyja4/internal/logging"
	"github.com/tturner/proxyja4/internal/readiness"
)

// Sibling is a CA certificate written by another proxy process on its first
// start.
type Sibling struct {
	Name          string `yaml:"name"`
	Path          string `yaml:"path"`
	InstalledName string `yaml:"installed_name"`
}

// DefaultSiblings are the CAs generated by the mitmproxy and squid containers.
func DefaultSiblings() []Sibling {
	return []Sibling{
		{Name: "mitmproxy", Path: "/mitm_ca/mitmproxy-ca-cert.pem", InstalledName: "mitmproxy-ca.crt"},
		{Name: "squid", Path: "/shared_ca_cert.pem", InstalledName: "squid-ca.crt"},
	}
}

// Result summarizes one bootstrap pass.
type Result struct {
	Installed []string // sibling names
	Missing   []string // timed out or cancelled
	Failed    []string // found but could not be installed
	Refreshed bool
}

// Bootstrap waits for each sibling CA and installs it. Every failure is
// logged and the loop moves on to the next sibling.
type Bootstrap struct {
	Installer *Installer
	Poller    *readiness.Poller

	log *logging.Logger
}

// NewBootstrap wires an installer and poller together.
func NewBootstrap(inst *Installer, poller *readiness.Poller, logger *logging.Logger) *Bootstrap {
	if poller == nil {
		poller = readiness.NewPoller(0, 0)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bootstrap{Installer: inst, Poller: poller, log: logger}
}

// Run waits for and installs each sibling in order, then refreshes trust if
// anything was installed.
func (b *Bootstrap) Run(ctx context.Context, siblings []Sibling) Result {
	var res Result
	b.log.Info("Starting automatic CA certificate installation...")

	for _, s := range siblings {
		b.log.Info("Waiting for %s...", s.Path)
		if err := b.Poller.Wait(ctx, s.Path); err != nil {
			b.log.Error("%s CA certificate not found: %v", s.Name, err)
			res.Missing = append(res.Missing, s.Name)
			continue
		}
		b.log.Info("Found %s", s.Path)

		if !ca.IsValidCertificate(s.Path) {
			// The producer may have written a placeholder; install anyway and
			// let the trust refresh reject it.
			b.log.Verbose("%s does not parse as a PEM certificate", s.Path)
		}

		if b.Installer.Install(s.Path, s.InstalledName) {
			b.log.Info("%s CA certificate installed successfully", s.Name)
			res.Installed = append(res.Installed, s.Name)
		} else {
			b.log.Error("Failed to install %s CA certificate", s.Name)
			res.Failed = append(res.Failed, s.Name)
		}
	}

	if len(res.Installed) > 0 {
		res.Refreshed = b.Installer.RefreshTrust(ctx)
	}
	b.log.Info("Automatic CA installation complete (%d installed, %d missing, %d failed)",
		len(res.Installed), len(res.Missing), len(res.Failed))
	return res
}

// Serve keeps the process resident until ctx is cancelled, logging a
// heartbeat every interval. A non-positive interval disables the heartbeat.
func (b *Bootstrap) Serve(ctx context.Context, heartbeat time.Duration) {
	b.log.Info("CA installation complete. Container ready for testing.")

	var tick <-chan time.Time
	if heartbeat > 0 {
		t := time.NewTicker(heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			b.log.Info("Shutting down: %v", context.Cause(ctx))
			return
		case <-tick:
			b.log.Verbose("Still resident, %d trust anchors installed", len(b.Installer.Anchors()))
		}
	}
}
