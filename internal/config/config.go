package config

// Configuration loading and validation for proxyja4

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tturner/proxyja4/internal/artifact"
	"github.com/tturner/proxyja4/internal/ca"
	"github.com/tturner/proxyja4/internal/capture"
	"github.com/tturner/proxyja4/internal/errors"
	"github.com/tturner/proxyja4/internal/logging"
	"github.com/tturner/proxyja4/internal/matrix"
	"github.com/tturner/proxyja4/internal/transport"
	"github.com/tturner/proxyja4/internal/trust"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "proxyja4.yaml"

// Config is the full proxyja4 configuration.
type Config struct {
	CA      CAConfig      `yaml:"ca"`
	Trust   TrustConfig   `yaml:"trust"`
	Capture CaptureConfig `yaml:"capture"`
	Matrix  MatrixConfig  `yaml:"matrix"`
	Logging LoggingConfig `yaml:"logging"`
}

// CAConfig locates and shapes the shared root CA.
type CAConfig struct {
	Root          string `yaml:"root"` // project root for the runtime layout
	Dir           string `yaml:"dir"`
	KeyFile       string `yaml:"key_file"`
	CertFile      string `yaml:"cert_file"`
	CommonName    string `yaml:"common_name"`
	KeyBits       int    `yaml:"key_bits"`
	ValidityYears int    `yaml:"validity_years"`
}

// TrustConfig controls trust store installation and the automatic bootstrap.
type TrustConfig struct {
	Dir            string          `yaml:"dir"`
	RefreshCommand []string        `yaml:"refresh_command"`
	InstalledName  string          `yaml:"installed_name"`
	Siblings       []trust.Sibling `yaml:"siblings"`
	PollInterval   time.Duration   `yaml:"poll_interval"`
	WaitTimeout    time.Duration   `yaml:"wait_timeout"`
	Heartbeat      time.Duration   `yaml:"heartbeat"`
}

// CaptureConfig selects the capture agent and tcpdump invocation.
type CaptureConfig struct {
	Agent          string        `yaml:"agent"`
	Interface      string        `yaml:"interface"`
	Output         string        `yaml:"output"`
	RemoteDir      string        `yaml:"remote_dir"`
	LocalDir       string        `yaml:"local_dir"`
	Tool           string        `yaml:"tool"`
	InstallCommand []string      `yaml:"install_command"`
	ExcludePort    int           `yaml:"exclude_port"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	FallbackName   string        `yaml:"fallback_name"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// MatrixConfig describes the proxy test matrix.
type MatrixConfig struct {
	Profiles       []matrix.Profile `yaml:"profiles"`
	Targets        []string         `yaml:"targets"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	HealthChecks   bool             `yaml:"health_checks"`
	HealthTimeout  time.Duration    `yaml:"health_timeout"`
	ReportPath     string           `yaml:"report_path"`
	ClientBinary   string           `yaml:"client_binary"`
}

// LoggingConfig controls per-component log files.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// Default returns the configuration matching the compose stack.
func Default() *Config {
	caOpts := ca.DefaultOptions()
	capOpts := capture.DefaultOptions()
	return &Config{
		CA: CAConfig{
			Root:          ".",
			Dir:           caOpts.Dir,
			KeyFile:       caOpts.KeyFile,
			CertFile:      caOpts.CertFile,
			CommonName:    caOpts.CommonName,
			KeyBits:       caOpts.KeyBits,
			ValidityYears: caOpts.ValidityYears,
		},
		Trust: TrustConfig{
			Dir:            trust.DefaultDir,
			RefreshCommand: append([]string{}, trust.DefaultRefreshCommand...),
			InstalledName:  trust.DefaultInstalledName,
			Siblings:       trust.DefaultSiblings(),
			PollInterval:   2 * time.Second,
			WaitTimeout:    60 * time.Second,
			Heartbeat:      time.Hour,
		},
		Capture: CaptureConfig{
			Agent:          "docker://capture_poc",
			Interface:      "eth0",
			Output:         capOpts.FallbackName,
			RemoteDir:      capOpts.RemoteDir,
			LocalDir:       capOpts.LocalDir,
			Tool:           capOpts.Tool,
			InstallCommand: capOpts.InstallCommand,
			ExcludePort:    capOpts.ExcludePort,
			GracePeriod:    capOpts.GracePeriod,
			FallbackName:   capOpts.FallbackName,
			CommandTimeout: 30 * time.Second,
		},
		Matrix: MatrixConfig{
			Profiles:       matrix.DefaultProfiles(),
			Targets:        matrix.DefaultTargets(),
			RequestTimeout: 15 * time.Second,
			HealthChecks:   true,
			HealthTimeout:  5 * time.Second,
			ReportPath:     filepath.Join("captures", "comprehensive_test_results.json"),
			ClientBinary:   "curl",
		},
		Logging: LoggingConfig{
			Dir:   "logs",
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.WrapConfigError(
			fmt.Errorf("read config file: %w", err),
			path,
		)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("validate config: %w", err), path)
	}

	return cfg, nil
}

// Validate checks a configuration for values the components cannot run with.
func Validate(cfg *Config) error {
	if cfg.CA.KeyBits < 2048 {
		return fmt.Errorf("ca.key_bits must be >= 2048")
	}
	if cfg.CA.ValidityYears <= 0 {
		return fmt.Errorf("ca.validity_years must be > 0")
	}
	if cfg.CA.Dir == "" {
		return fmt.Errorf("ca.dir is required")
	}

	if cfg.Trust.PollInterval <= 0 {
		return fmt.Errorf("trust.poll_interval must be > 0")
	}
	if cfg.Trust.WaitTimeout <= 0 {
		return fmt.Errorf("trust.wait_timeout must be > 0")
	}
	if cfg.Trust.Heartbeat < 0 {
		return fmt.Errorf("trust.heartbeat must be >= 0")
	}
	for i, s := range cfg.Trust.Siblings {
		if s.Path == "" || s.InstalledName == "" {
			return fmt.Errorf("trust.siblings[%d]: path and installed_name are required", i)
		}
		if strings.ContainsAny(s.InstalledName, `/\`) {
			return fmt.Errorf("trust.siblings[%d]: installed_name must be a file name", i)
		}
	}

	if err := validateAgent(cfg.Capture.Agent); err != nil {
		return fmt.Errorf("capture.agent: %w", err)
	}
	if cfg.Capture.GracePeriod < 0 {
		return fmt.Errorf("capture.grace_period must be >= 0")
	}
	if cfg.Capture.CommandTimeout <= 0 {
		return fmt.Errorf("capture.command_timeout must be > 0")
	}
	if cfg.Capture.ExcludePort < 0 || cfg.Capture.ExcludePort > 65535 {
		return fmt.Errorf("capture.exclude_port must be 0-65535")
	}

	if err := validateProfiles(cfg.Matrix.Profiles); err != nil {
		return err
	}
	if len(cfg.Matrix.Targets) == 0 {
		return fmt.Errorf("matrix.targets must not be empty")
	}
	for i, target := range cfg.Matrix.Targets {
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			return fmt.Errorf("matrix.targets[%d]: %q is not an http(s) URL", i, target)
		}
	}
	if cfg.Matrix.RequestTimeout <= 0 {
		return fmt.Errorf("matrix.request_timeout must be > 0")
	}
	if cfg.Matrix.HealthChecks && cfg.Matrix.HealthTimeout <= 0 {
		return fmt.Errorf("matrix.health_timeout must be > 0 when health checks are enabled")
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func validateProfiles(profiles []matrix.Profile) error {
	if len(profiles) == 0 {
		return fmt.Errorf("matrix.profiles must not be empty")
	}
	seen := make(map[string]bool, len(profiles))
	for i, p := range profiles {
		if p.Name == "" {
			return fmt.Errorf("matrix.profiles[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("matrix.profiles[%d]: duplicate profile name %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func validateAgent(spec string) error {
	switch {
	case transport.IsLocal(spec), spec == "local://":
		return nil
	case transport.IsContainer(spec):
		if _, name, _ := strings.Cut(spec, "://"); name == "" {
			return fmt.Errorf("container name is required in %q", spec)
		}
		return nil
	case transport.IsSSH(spec):
		return nil
	}
	return fmt.Errorf("unsupported agent %q (use docker://, podman://, ssh:// or local)", spec)
}

// WriteDefault writes the default configuration to path. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force && artifact.Exists(path) {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := artifact.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// CAOptions returns the certificate authority settings.
func (c *Config) CAOptions() ca.Options {
	return ca.Options{
		Dir:           c.caDir(),
		KeyFile:       c.CA.KeyFile,
		CertFile:      c.CA.CertFile,
		CommonName:    c.CA.CommonName,
		KeyBits:       c.CA.KeyBits,
		ValidityYears: c.CA.ValidityYears,
	}
}

func (c *Config) caDir() string {
	if filepath.IsAbs(c.CA.Dir) || c.CA.Root == "" {
		return c.CA.Dir
	}
	return filepath.Join(c.CA.Root, c.CA.Dir)
}

// CaptureOptions returns the capture session settings.
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{
		RemoteDir:      c.Capture.RemoteDir,
		LocalDir:       c.Capture.LocalDir,
		Tool:           c.Capture.Tool,
		InstallCommand: c.Capture.InstallCommand,
		ExcludePort:    c.Capture.ExcludePort,
		GracePeriod:    c.Capture.GracePeriod,
		FallbackName:   c.Capture.FallbackName,
	}
}

// LogLevel returns the parsed logging level.
func (c *Config) LogLevel() logging.LogLevel {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.LogLevelInfo
	}
	return level
}
