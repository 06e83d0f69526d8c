package chaos

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PhaseResult records the outcome of one experiment phase.
type PhaseResult struct {
	Name       string         `json:"name"`
	Passed     bool           `json:"passed"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Report aggregates a full harness run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Phases     []PhaseResult `json:"phases"`
}

// NewReport starts an empty report stamped with the current time.
func NewReport() *Report {
	return &Report{
		StartedAt: time.Now().UTC(),
	}
}

// Add appends one phase outcome.
func (r *Report) Add(name string, duration time.Duration, details map[string]any, err error) {
	result := PhaseResult{
		Name:       name,
		Passed:     err == nil,
		DurationMS: duration.Milliseconds(),
		Details:    details,
	}
	if err != nil {
		result.Error = err.Error()
	}
	r.Phases = append(r.Phases, result)
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Passed reports whether every phase passed.
func (r *Report) Passed() bool {
	for _, p := range r.Phases {
		if !p.Passed {
			return false
		}
	}
	return len(r.Phases) > 0
}

// Write emits the JSON and Markdown renderings of the report into dir,
// named by the run's start timestamp. Returns the JSON path.
func (r *Report) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	stamp := r.StartedAt.Format("20060102-150405")

	jsonPath := filepath.Join(dir, fmt.Sprintf("chaos-report-%s.json", stamp))
	encoded, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(jsonPath, encoded, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	mdPath := filepath.Join(dir, fmt.Sprintf("chaos-report-%s.md", stamp))
	if err := os.WriteFile(mdPath, []byte(r.Markdown()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write markdown report: %w", err)
	}

	return jsonPath, nil
}

// Markdown renders the human-readable report.
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# Resilience Report\n\n")
	fmt.Fprintf(&b, "Run: %s to %s\n\n",
		r.StartedAt.Format(time.RFC3339),
		r.FinishedAt.Format(time.RFC3339),
	)

	if r.Passed() {
		b.WriteString("Overall: PASS\n\n")
	} else {
		b.WriteString("Overall: FAIL\n\n")
	}

	b.WriteString("| Phase | Outcome | Duration |\n")
	b.WriteString("|-------|---------|----------|\n")
	for _, p := range r.Phases {
		outcome := "pass"
		if !p.Passed {
			outcome = "fail"
		}
		fmt.Fprintf(&b, "| %s | %s | %dms |\n", p.Name, outcome, p.DurationMS)
	}
	b.WriteString("\n")

	for _, p := range r.Phases {
		fmt.Fprintf(&b, "## %s\n\n", p.Name)
		if p.Error != "" {
			fmt.Fprintf(&b, "Error: %s\n\n", p.Error)
		}
		if len(p.Details) > 0 {
			keys := make([]string, 0, len(p.Details))
			for k := range p.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- %s: %v\n", k, p.Details[k])
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
