// Package trust installs CA certificates into the system trust store and
// drives the automatic bootstrap that waits for sibling proxy CAs.
package trust

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tturner/proxyja4/internal/artifact"
	"github.com/tturner/proxyja4/internal/logging"
	"github.com/tturner/proxyja4/internal/transport"
)

const (
	DefaultDir           = "/usr/local/share/ca-certificates"
	DefaultInstalledName = "proxy-ja4-ca.crt"
)

// DefaultRefreshCommand rebuilds the Debian/Alpine style trust bundle.
var DefaultRefreshCommand = []string{"update-ca-certificates"}

// Anchor is one CA certificate installed into the trust directory.
type Anchor struct {
	SourcePath    string
	InstalledName string
	InstalledPath string
}

// Installer copies CA certificates into a trust directory. Each anchor gets
// its own file name, so concurrent installers never write the same target.
type Installer struct {
	Dir            string
	RefreshCommand []string
	GOOS           string

	runner  transport.Transport
	log     *logging.Logger
	anchors []Anchor
}

// NewInstaller returns an Installer for dir that runs the refresh command
// through runner. A nil runner uses the local host.
func NewInstaller(dir string, runner transport.Transport, logger *logging.Logger) *Installer {
	if dir == "" {
		dir = DefaultDir
	}
	if runner == nil {
		runner = transport.NewLocal(transport.DefaultOptions())
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Installer{
		Dir:            dir,
		RefreshCommand: DefaultRefreshCommand,
		GOOS:           runtime.GOOS,
		runner:         runner,
		log:            logger,
	}
}

// Install copies sourcePath into the trust directory as installedName. A
// missing source is logged and reported as false without touching the
// trust directory.
func (i *Installer) Install(sourcePath, installedName string) bool {
	if !artifact.Exists(sourcePath) {
		i.log.Info("CA candidate not found: %s", sourcePath)
		return false
	}

	if err := os.MkdirAll(i.Dir, 0755); err != nil {
		i.log.Error("Failed to create %s: %v", i.Dir, err)
		return false
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		i.log.Error("Failed to read %s: %v", sourcePath, err)
		return false
	}

	dst := filepath.Join(i.Dir, installedName)
	if err := artifact.WriteFile(dst, data, 0644); err != nil {
		i.log.Error("Failed to install %s: %v", dst, err)
		return false
	}

	i.anchors = append(i.anchors, Anchor{
		SourcePath:    sourcePath,
		InstalledName: installedName,
		InstalledPath: dst,
	})
	i.log.Info("Copied %s to %s", sourcePath, dst)
	return true
}

// Anchors returns the anchors installed so far.
func (i *Installer) Anchors() []Anchor {
	out := make([]Anchor, len(i.anchors))
	copy(out, i.anchors)
	return out
}

// RefreshTrust rebuilds the system trust bundle. Outside Linux it is a no-op
// returning true. On Linux it only runs once something has been installed;
// with no anchors it returns false.
func (i *Installer) RefreshTrust(ctx context.Context) bool {
	if i.GOOS != "linux" {
		i.log.Info("Skipping trust refresh on %s", i.GOOS)
		return true
	}
	if len(i.anchors) == 0 {
		i.log.Info("No CA certificate installed, skipping trust refresh")
		return false
	}
	if len(i.RefreshCommand) == 0 {
		i.log.Error("No trust refresh command configured")
		return false
	}

	exitCode, stdout, stderr, err := i.runner.Exec(ctx, i.RefreshCommand, nil, "")
	if err != nil {
		i.log.Error("Failed to update CA certificates: %v", err)
		return false
	}
	if exitCode != 0 {
		i.log.Error("Failed to update CA certificates: %s exited %d: %s",
			i.RefreshCommand[0], exitCode, strings.TrimSpace(stderr))
		return false
	}
	if out := strings.TrimSpace(stdout); out != "" {
		i.log.Verbose("%s", out)
	}
	i.log.Info("CA certificates updated")
	return true
}
