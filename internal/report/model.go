package report

// TestReport is the JSON document written after a matrix run. Each run
// overwrites the previous document.
type TestReport struct {
	TestRun      TestRun       `json:"test_run"`
	ProxyConfigs []ProxyConfig `json:"proxy_configs"`
	TestHosts    []string      `json:"test_hosts"`
	Results      []Result      `json:"results"`
}

// TestRun holds the run-level aggregates.
type TestRun struct {
	Timestamp       string        `json:"timestamp"`
	RunID           string        `json:"run_id"`
	TotalProxies    int           `json:"total_proxies"`
	TotalTests      int           `json:"total_tests"`
	SuccessfulTests int           `json:"successful_tests"`
	CaptureFile     string        `json:"capture_file,omitempty"`
	PerProxy        []ProxyTotals `json:"per_proxy"`
}

// ProxyTotals is the pass count for one proxy profile.
type ProxyTotals struct {
	Proxy      string `json:"proxy"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Healthy    *bool  `json:"healthy,omitempty"` // nil when no health check ran
}

// ProxyConfig describes a profile as it was run. Env is null for a direct
// connection.
type ProxyConfig struct {
	Name        string            `json:"name"`
	Env         map[string]string `json:"env"`
	Description string            `json:"description"`
}

// Result is the outcome of one request through one proxy.
type Result struct {
	Proxy      string `json:"proxy"`
	URL        string `json:"url"`
	Success    bool   `json:"success"`
	ReturnCode int    `json:"return_code"` // -1 when the client could not be run
	Stderr     string `json:"stderr,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Failed returns the number of unsuccessful results.
func (r *TestReport) Failed() int {
	return r.TestRun.TotalTests - r.TestRun.SuccessfulTests
}

// Passed reports whether every result succeeded.
func (r *TestReport) Passed() bool {
	return r.Failed() == 0
}

// Add appends a result and updates the aggregates.
func (r *TestReport) Add(res Result) {
	r.Results = append(r.Results, res)
	r.TestRun.TotalTests++
	if res.Success {
		r.TestRun.SuccessfulTests++
	}

	for i := range r.TestRun.PerProxy {
		if r.TestRun.PerProxy[i].Proxy == res.Proxy {
			r.TestRun.PerProxy[i].Total++
			if res.Success {
				r.TestRun.PerProxy[i].Successful++
			}
			return
		}
	}
	totals := ProxyTotals{Proxy: res.Proxy, Total: 1}
	if res.Success {
		totals.Successful = 1
	}
	r.TestRun.PerProxy = append(r.TestRun.PerProxy, totals)
}

// Totals returns the aggregate for proxy, or false if no result was recorded.
func (r *TestReport) Totals(proxy string) (ProxyTotals, bool) {
	for _, t := range r.TestRun.PerProxy {
		if t.Proxy == proxy {
			return t, true
		}
	}
	return ProxyTotals{}, false
}
