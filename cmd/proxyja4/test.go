package main

// Proxy test matrix

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/proxyja4/internal/artifact"
	"github.com/tturner/proxyja4/internal/capture"
	"github.com/tturner/proxyja4/internal/matrix"
	"github.com/tturner/proxyja4/internal/progress"
	"github.com/tturner/proxyja4/internal/report"
)

type testFlags struct {
	reportPath string
	profiles   []string
	noHealth   bool
	noSummary  bool
	progress   bool
}

func newTestCmd(g *globalFlags) *cobra.Command {
	flags := &testFlags{}

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the request matrix directly and through every proxy",
		Long: `Request every target URL directly and through each configured proxy, in
order, and write a JSON report of the outcomes.

Each request runs curl with the profile's proxy environment applied. A failed
request is recorded and the run continues. The command exits 1 if any request
failed.

The report carries a fresh run ID and the name of the capture recorded in
.current_capture, so it can be matched to the pcap taken during the run.`,
		Example: `  # Run the default matrix
  proxyja4 test

  # Only the squid profile, custom report path
  proxyja4 test --profile squid --report /tmp/squid.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, g, flags)
		},
	}

	cmd.Flags().StringVar(&flags.reportPath, "report", "", "Report path (default from config: captures/comprehensive_test_results.json)")
	cmd.Flags().StringSliceVar(&flags.profiles, "profile", nil, "Only run these profiles (repeatable)")
	cmd.Flags().BoolVar(&flags.noHealth, "no-health", false, "Skip proxy health checks")
	cmd.Flags().BoolVar(&flags.noSummary, "no-summary", false, "Do not print the summary table")
	cmd.Flags().BoolVar(&flags.progress, "progress", false, "Show a progress bar on stderr")

	return cmd
}

func runTest(cmd *cobra.Command, g *globalFlags, flags *testFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	log := g.logger(cmd, cfg, "matrix")
	defer log.Close()

	profiles, err := selectProfiles(cfg.Matrix.Profiles, flags.profiles)
	if err != nil {
		return err
	}

	runner := matrix.NewRunner(
		matrix.NewCurlRequester(cfg.Matrix.ClientBinary, cfg.Matrix.RequestTimeout, nil),
		log,
	)
	runner.RunID = artifact.NewRunID()
	runner.HealthTimeout = cfg.Matrix.HealthTimeout
	if !cfg.Matrix.HealthChecks || flags.noHealth {
		runner.HealthCheck = nil
	}
	if name, err := capture.CurrentCapture(cfg.Capture.LocalDir); err == nil && name != "" {
		runner.CaptureFile = name
	}
	log.Info("Run %s", runner.RunID)

	var bar *progress.Bar
	if flags.progress && !g.quiet {
		bar = progress.NewBar(cmd.ErrOrStderr(), len(profiles)*len(cfg.Matrix.Targets), "Testing")
		runner.OnResult = func(res report.Result) { bar.Record(res.Success) }
	}

	rep := runner.Run(cmd.Context(), profiles, cfg.Matrix.Targets)
	if bar != nil {
		bar.Finish()
	}

	reportPath := firstNonEmpty(flags.reportPath, cfg.Matrix.ReportPath)
	if err := report.WriteJSONFile(reportPath, rep); err != nil {
		return err
	}
	log.Info("Detailed results saved to: %s", reportPath)

	if !flags.noSummary {
		if err := report.RenderSummary(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	}

	if code := matrix.ExitCode(rep); code != 0 {
		return fmt.Errorf("%d of %d tests failed", rep.Failed(), rep.TestRun.TotalTests)
	}
	return nil
}

// selectProfiles keeps the named profiles in config order so reports from
// different runs line up.
func selectProfiles(all []matrix.Profile, names []string) ([]matrix.Profile, error) {
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}
	out := make([]matrix.Profile, 0, len(names))
	for _, p := range all {
		if want[p.Name] {
			out = append(out, p)
			delete(want, p.Name)
		}
	}
	for _, name := range names {
		if want[name] {
			return nil, fmt.Errorf("unknown profile %q", name)
		}
	}
	return out, nil
}
