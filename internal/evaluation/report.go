package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Report is the result file of one evaluation run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Model       string    `json:"model"`
	Total       int       `json:"total"`
	Matched     int       `json:"matched"`
	Accuracy    float64   `json:"accuracy"`
	Outcomes    []Outcome `json:"outcomes"`
}

// NewReport summarises outcomes.
func NewReport(model string, outcomes []Outcome) Report {
	r := Report{
		GeneratedAt: time.Now().UTC(),
		Model:       model,
		Total:       len(outcomes),
		Outcomes:    outcomes,
	}
	for _, o := range outcomes {
		if o.Matched {
			r.Matched++
		}
	}
	if r.Total > 0 {
		r.Accuracy = float64(r.Matched) / float64(r.Total)
	}
	return r
}

// WriteResults writes report as indented JSON, replacing path atomically.
func WriteResults(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing results: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming results: %w", err)
	}
	return nil
}

// ReadResults loads a report written by WriteResults.
func ReadResults(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("reading results: %w", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parsing results: %w", err)
	}
	return r, nil
}
