package main

// Packet capture control on the capture agent

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/proxyja4/internal/capture"
	"github.com/tturner/proxyja4/internal/config"
	"github.com/tturner/proxyja4/internal/errors"
	"github.com/tturner/proxyja4/internal/netdetect"
	"github.com/tturner/proxyja4/internal/transport"
)

type captureFlags struct {
	agent     string
	iface     string
	output    string
	localDir  string
	remoteDir string
}

func newCaptureCmd(g *globalFlags) *cobra.Command {
	flags := &captureFlags{}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Start, stop and retrieve packet captures on the capture agent",
		Long: `Control a tcpdump capture running on the capture agent.

The agent is a container reached through its runtime CLI (docker://NAME,
podman://NAME), a host reached over SSH (ssh://user@host:port), or local.
The name of the running capture is recorded in <captures>/.current_capture so
a later "capture stop" can find it.`,
		Example: `  # Start a timestamped capture on eth0
  proxyja4 capture start --output auto

  # Stop it and copy the pcap to ./captures
  proxyja4 capture stop

  # Capture through a remote sensor
  proxyja4 capture start --agent ssh://root@10.0.0.5 --interface any`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) > 0 {
				_ = cmd.Help()
				return fmt.Errorf("unknown capture action %q", args[0])
			}
			return noActionError(cmd, "start, stop, retrieve, interfaces, summary")
		},
	}

	cmd.PersistentFlags().StringVar(&flags.agent, "agent", "", "Capture agent (default from config: docker://capture_poc)")
	cmd.PersistentFlags().StringVar(&flags.localDir, "captures-dir", "", "Local captures directory (default from config: captures)")
	cmd.PersistentFlags().StringVar(&flags.remoteDir, "remote-dir", "", "Captures directory on the agent (default from config: /captures)")

	start := &cobra.Command{
		Use:   "start",
		Short: "Start a capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, flags, func(s *capture.Session, cfg *config.Config) error {
				iface := firstNonEmpty(flags.iface, cfg.Capture.Interface)
				output := firstNonEmpty(flags.output, cfg.Capture.Output)
				if transport.IsLocal(flags.agentSpec(cfg)) {
					local, err := netdetect.ListInterfaces()
					if err != nil {
						return err
					}
					if err := netdetect.Validate(local, iface); err != nil {
						return err
					}
				}
				s.Interfaces(cmd.Context())
				if !s.Start(cmd.Context(), iface, output) {
					return fmt.Errorf("failed to start packet capture")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", s.Name())
				return nil
			})
		},
	}
	start.Flags().StringVar(&flags.iface, "interface", "", "Interface to capture on (default from config: eth0)")
	start.Flags().StringVar(&flags.output, "output", "", "Output pcap file name, or \"auto\" for capture_YYYYMMDD_HHMMSS.pcap")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running capture and retrieve its file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, flags, func(s *capture.Session, cfg *config.Config) error {
				if !s.Stop(cmd.Context()) {
					return fmt.Errorf("failed to stop packet capture or copy file")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", s.LocalPath(s.Name()))
				return nil
			})
		},
	}

	retrieve := &cobra.Command{
		Use:   "retrieve <name>",
		Short: "Copy a capture file from the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, flags, func(s *capture.Session, cfg *config.Config) error {
				if !s.Retrieve(cmd.Context(), args[0]) {
					return fmt.Errorf("failed to retrieve %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", s.LocalPath(args[0]))
				return nil
			})
		},
	}

	interfaces := &cobra.Command{
		Use:   "interfaces",
		Short: "List network interfaces on the agent",
		Long: `List network interfaces on the capture agent. A local agent is inspected
directly; other agents run "ip link".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, flags, func(s *capture.Session, cfg *config.Config) error {
				if transport.IsLocal(flags.agentSpec(cfg)) {
					local, err := netdetect.ListInterfaces()
					if err != nil {
						return err
					}
					for _, info := range local {
						fmt.Fprintln(cmd.OutOrStdout(), netdetect.Describe(info))
					}
					return nil
				}
				if _, ok := s.Interfaces(cmd.Context()); !ok {
					return fmt.Errorf("could not list interfaces")
				}
				return nil
			})
		},
	}

	summary := &cobra.Command{
		Use:   "summary <file.pcap>",
		Short: "Count packets in a local capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := capture.Summarize(args[0])
			if err != nil {
				return fmt.Errorf("summarize %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], sum)
			return nil
		},
	}

	cmd.AddCommand(start, stop, retrieve, interfaces, summary)
	return cmd
}

// withSession builds the agent transport and a session from config and flags.
func withSession(cmd *cobra.Command, g *globalFlags, flags *captureFlags, fn func(*capture.Session, *config.Config) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if flags.localDir != "" {
		cfg.Capture.LocalDir = flags.localDir
	}
	if flags.remoteDir != "" {
		cfg.Capture.RemoteDir = flags.remoteDir
	}

	log := g.logger(cmd, cfg, "capture")
	defer log.Close()

	agentSpec := flags.agentSpec(cfg)
	agent, err := transport.ParseWithOptions(agentSpec, transport.Options{Timeout: cfg.Capture.CommandTimeout})
	if err != nil {
		return errors.WrapAgentError(err, agentSpec)
	}
	defer agent.Close()

	return fn(capture.NewSession(agent, cfg.CaptureOptions(), log), cfg)
}

func (f *captureFlags) agentSpec(cfg *config.Config) string {
	return firstNonEmpty(f.agent, cfg.Capture.Agent)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
