package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/proxyja4/internal/artifact"
	"github.com/tturner/proxyja4/internal/config"
	"github.com/tturner/proxyja4/internal/errors"
	"github.com/tturner/proxyja4/internal/logging"
)

type globalFlags struct {
	configPath string
	logDir     string
	verbose    bool
	debug      bool
	quiet      bool
}

// loadConfig reads the config file. An explicitly named file must exist; the
// default file is optional.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = config.DefaultPath
	} else if !artifact.Exists(path) {
		return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if g.logDir != "" {
		cfg.Logging.Dir = g.logDir
	}
	return cfg, nil
}

func (g *globalFlags) level(cfg *config.Config) logging.LogLevel {
	switch {
	case g.debug:
		return logging.LogLevelDebug
	case g.verbose:
		return logging.LogLevelVerbose
	case g.quiet:
		return logging.LogLevelError
	}
	return cfg.LogLevel()
}

// logger returns the logger for one component, writing <component>.log.
func (g *globalFlags) logger(cmd *cobra.Command, cfg *config.Config, component string) *logging.Logger {
	l := logging.ForComponent(cfg.Logging.Dir, component, g.level(cfg))
	l.SetConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
	return l
}

func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if strings.EqualFold(args[0], "help") {
		_ = cmd.Help()
		return true
	}
	return false
}

func noActionError(cmd *cobra.Command, actions string) error {
	_ = cmd.Help()
	return fmt.Errorf("no action specified, use one of: %s", actions)
}
