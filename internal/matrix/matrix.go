// Package matrix sends the same requests through each proxy profile and
// aggregates the outcomes into a test report.
package matrix

import (
	"context"
	"time"

	"github.com/tturner/proxyja4/internal/logging"
	"github.com/tturner/proxyja4/internal/readiness"
	"github.com/tturner/proxyja4/internal/report"
)

// HealthChecker probes a proxy's listening address.
type HealthChecker func(ctx context.Context, addr string, timeout time.Duration) error

// Runner drives the request matrix. Profiles and targets run sequentially in
// declaration order, and a failed request never stops the run.
type Runner struct {
	Requester     Requester
	HealthCheck   HealthChecker // nil disables health checks
	HealthTimeout time.Duration
	RunID         string
	CaptureFile   string
	OnResult      func(report.Result) // called after each request

	log *logging.Logger
	now func() time.Time
}

// NewRunner returns a Runner using TCP health checks.
func NewRunner(req Requester, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		Requester:     req,
		HealthCheck:   readiness.CheckTCP,
		HealthTimeout: 5 * time.Second,
		log:           logger,
		now:           time.Now,
	}
}

// Run requests every target through every profile.
func (r *Runner) Run(ctx context.Context, profiles []Profile, targets []string) *report.TestReport {
	rep := &report.TestReport{
		TestRun: report.TestRun{
			RunID:        r.RunID,
			TotalProxies: len(profiles),
			CaptureFile:  r.CaptureFile,
			PerProxy:     []report.ProxyTotals{},
		},
		ProxyConfigs: make([]report.ProxyConfig, 0, len(profiles)),
		TestHosts:    append([]string{}, targets...),
		Results:      []report.Result{},
	}

	r.log.Info("Starting proxy test matrix")
	r.log.Info("Testing %d proxy configurations", len(profiles))
	r.log.Info("Testing %d hosts per proxy", len(targets))

	for _, p := range profiles {
		rep.ProxyConfigs = append(rep.ProxyConfigs, report.ProxyConfig{
			Name:        p.Name,
			Env:         p.Env,
			Description: p.Description,
		})
		r.runProfile(ctx, rep, p, targets)
	}

	rep.TestRun.Timestamp = report.FormatTime(r.now())
	for _, t := range rep.TestRun.PerProxy {
		r.log.Info("%-12s: %2d/%d tests passed", t.Proxy, t.Successful, t.Total)
	}
	if failed := rep.Failed(); failed > 0 {
		r.log.Error("%d tests failed", failed)
	} else {
		r.log.Info("All tests passed successfully")
	}
	return rep
}

func (r *Runner) runProfile(ctx context.Context, rep *report.TestReport, p Profile, targets []string) {
	r.log.Info("Testing %s: %s", p.Name, p.Description)
	totals := report.ProxyTotals{Proxy: p.Name}

	if p.HealthAddr != "" && r.HealthCheck != nil {
		healthy := true
		if err := r.HealthCheck(ctx, p.HealthAddr, r.HealthTimeout); err != nil {
			// Advisory only: the requests still run and record their own failures.
			r.log.Error("%s health check failed, continuing with test: %v", p.Name, err)
			healthy = false
		}
		totals.Healthy = &healthy
	}
	rep.TestRun.PerProxy = append(rep.TestRun.PerProxy, totals)

	for _, url := range targets {
		r.log.Verbose("  Testing %s through %s", url, p.Name)
		res := r.request(ctx, p, url)
		rep.Add(res)
		if r.OnResult != nil {
			r.OnResult(res)
		}
	}

	if t, ok := rep.Totals(p.Name); ok {
		r.log.Info("Proxy %s: %d/%d tests passed", p.Name, t.Successful, t.Total)
	}
}

func (r *Runner) request(ctx context.Context, p Profile, url string) report.Result {
	res := report.Result{Proxy: p.Name, URL: url}

	var env map[string]string
	if !p.Direct() {
		env = p.Env
	}

	out, err := r.Requester.Request(ctx, url, env)
	res.Timestamp = report.FormatTime(r.now())
	switch {
	case err != nil:
		res.ReturnCode = -1
		res.Error = err.Error()
	case out.ExitCode == 0:
		res.Success = true
	default:
		res.ReturnCode = out.ExitCode
		res.Stderr = out.Stderr
	}

	r.log.LogRequest(p.Name, url, res.Success, res.ReturnCode, err)
	return res
}

// ExitCode returns 0 when every result succeeded and 1 otherwise.
func ExitCode(rep *report.TestReport) int {
	if rep == nil || !rep.Passed() {
		return 1
	}
	return 0
}
