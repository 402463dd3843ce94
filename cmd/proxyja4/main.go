package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "proxyja4",
		Short: "JA4 fingerprint test harness for TLS-intercepting proxies",
		Long: `proxyja4 mints the shared root CA for the proxy stack, captures traffic on
the capture container, and drives the same requests directly and through each
intercepting proxy so the JA4 fingerprints can be compared offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default \"proxyja4.yaml\" if present)")
	rootCmd.PersistentFlags().StringVar(&g.logDir, "log-dir", "", "Directory for component log files (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&g.verbose, "verbose", false, "Verbose logging")
	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&g.quiet, "quiet", false, "Only log errors")

	// Add subcommands
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCACmd(g))
	rootCmd.AddCommand(newCaptureCmd(g))
	rootCmd.AddCommand(newTestCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))

	// Custom help command
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			if cmd.Long != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", cmd.Long)
			}
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
		fmt.Fprintf(out, "Available Commands:\n")
		for _, subCmd := range cmd.Commands() {
			if !subCmd.Hidden && subCmd.Name() != "completion" && subCmd.Name() != "help" {
				fmt.Fprintf(out, "  %-15s %s\n", subCmd.Name(), subCmd.Short)
			}
		}
		fmt.Fprintf(out, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
	})

	return rootCmd
}
