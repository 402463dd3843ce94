package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tturner/proxyja4/internal/config"
)

type configFlags struct {
	output string
	force  bool
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or show the configuration",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return noActionError(cmd, "init, show")
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(flags.output, flags.force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flags.output)
			return nil
		},
	}
	initCmd.Flags().StringVar(&flags.output, "output", config.DefaultPath, "Path to write")
	initCmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
