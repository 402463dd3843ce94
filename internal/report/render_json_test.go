package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleReport() *TestReport {
	r := &TestReport{
		TestRun: TestRun{
			Timestamp:    "2025-01-15T10:00:00.000Z",
			RunID:        "4f0c7a52-8a0e-4b8e-9d8b-1f6f2d3c4b5a",
			TotalProxies: 2,
			CaptureFile:  "capture_20250115_095959.pcap",
		},
		ProxyConfigs: []ProxyConfig{
			{Name: "direct", Description: "Direct connection (no proxy)"},
			{Name: "squid", Env: map[string]string{"http_proxy": "http://squid_poc:3128"}, Description: "Squid proxy with SSL bump"},
		},
		TestHosts: []string{"http://example.com", "https://example.com"},
	}
	r.Add(Result{Proxy: "direct", URL: "http://example.com", Success: true})
	r.Add(Result{Proxy: "direct", URL: "https://example.com", Success: true})
	r.Add(Result{Proxy: "squid", URL: "http://example.com", Success: true})
	r.Add(Result{Proxy: "squid", URL: "https://example.com", ReturnCode: 35, Stderr: "curl: (35) SSL connect error"})
	return r
}

func TestAddAggregates(t *testing.T) {
	r := sampleReport()

	if r.TestRun.TotalTests != 4 || r.TestRun.SuccessfulTests != 3 {
		t.Errorf("totals = %d/%d, want 3/4", r.TestRun.SuccessfulTests, r.TestRun.TotalTests)
	}
	if r.Failed() != 1 || r.Passed() {
		t.Errorf("Failed = %d, Passed = %v", r.Failed(), r.Passed())
	}
	if len(r.TestRun.PerProxy) != 2 || r.TestRun.PerProxy[0].Proxy != "direct" {
		t.Fatalf("per proxy = %+v", r.TestRun.PerProxy)
	}
	squid, ok := r.Totals("squid")
	if !ok || squid.Total != 2 || squid.Successful != 1 {
		t.Errorf("squid totals = %+v", squid)
	}
	if _, ok := r.Totals("mitmproxy"); ok {
		t.Error("totals for a proxy with no results")
	}
}

func TestWriteJSON(t *testing.T) {
	report := sampleReport()

	var buf bytes.Buffer
	err := WriteJSON(&buf, report)
	if err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	// Verify output is valid JSON
	var decoded TestReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if decoded.TestRun.RunID != report.TestRun.RunID {
		t.Errorf("RunID mismatch: got %q, want %q", decoded.TestRun.RunID, report.TestRun.RunID)
	}
	if len(decoded.Results) != 4 {
		t.Errorf("Expected 4 results, got %d", len(decoded.Results))
	}
}

func TestWriteJSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"test_run", "proxy_configs", "test_hosts", "results"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing top-level key %q", key)
		}
	}

	run := raw["test_run"].(map[string]any)
	for _, key := range []string{"timestamp", "run_id", "total_proxies", "total_tests", "successful_tests", "capture_file", "per_proxy"} {
		if _, ok := run[key]; !ok {
			t.Errorf("missing test_run key %q", key)
		}
	}

	configs := raw["proxy_configs"].([]any)
	if env := configs[0].(map[string]any)["env"]; env != nil {
		t.Errorf("direct env = %v, want null", env)
	}

	results := raw["results"].([]any)
	ok := results[0].(map[string]any)
	if _, has := ok["stderr"]; has {
		t.Error("successful result carries stderr")
	}
	failed := results[3].(map[string]any)
	if failed["stderr"] != "curl: (35) SSL connect error" || failed["return_code"] != float64(35) {
		t.Errorf("failed result = %v", failed)
	}
}

func TestWriteJSONOmitsEmptyCaptureFile(t *testing.T) {
	r := sampleReport()
	r.TestRun.CaptureFile = ""

	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "capture_file") {
		t.Error("empty capture_file was written")
	}
}

func TestWriteJSONFile(t *testing.T) {
	report := sampleReport()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "captures", "comprehensive_test_results.json")

	if err := WriteJSONFile(path, report); err != nil {
		t.Fatalf("WriteJSONFile failed: %v", err)
	}

	decoded, err := ReadJSONFile(path)
	if err != nil {
		t.Fatalf("ReadJSONFile failed: %v", err)
	}
	if decoded.TestRun.SuccessfulTests != 3 {
		t.Errorf("SuccessfulTests = %d, want 3", decoded.TestRun.SuccessfulTests)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the report in the directory, found %d entries", len(entries))
	}
}

func TestWriteJSONFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	first := sampleReport()
	if err := WriteJSONFile(path, first); err != nil {
		t.Fatal(err)
	}
	second := &TestReport{TestRun: TestRun{RunID: "second"}}
	if err := WriteJSONFile(path, second); err != nil {
		t.Fatal(err)
	}

	decoded, err := ReadJSONFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.TestRun.RunID != "second" || len(decoded.Results) != 0 {
		t.Errorf("report not replaced: %+v", decoded.TestRun)
	}
}

func TestWriteJSONFilePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "perms_test.json")

	if err := WriteJSONFile(path, sampleReport()); err != nil {
		t.Fatalf("WriteJSONFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0644 {
		t.Errorf("mode = %o, want 644", mode)
	}
}

func TestReadJSONFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0644)

	if _, err := ReadJSONFile(bad); err == nil {
		t.Error("expected parse error")
	}
	if _, err := ReadJSONFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected read error")
	}
}

func TestFormatTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got := FormatTime(time.Date(2025, 1, 15, 12, 0, 0, 123456789, loc))
	if got != "2025-01-15T10:00:00.123Z" {
		t.Errorf("FormatTime = %q", got)
	}
	if _, err := time.Parse(time.RFC3339, FormatTimestamp()); err != nil {
		t.Errorf("FormatTimestamp is not RFC3339: %v", err)
	}
}
