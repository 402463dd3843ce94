package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tturner/proxyja4/internal/artifact"
)

// WriteJSONFile marshals a report structure to JSON and replaces path with
// it atomically.
func WriteJSONFile(path string, report any) error {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, report); err != nil {
		return err
	}
	if err := artifact.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteJSON writes a report as JSON to an io.Writer.
func WriteJSON(w io.Writer, report any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// ReadJSONFile loads a test report written by WriteJSONFile.
func ReadJSONFile(path string) (*TestReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r TestReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}
