// Package history implements the durable per-project test-run log and the
// analyzers that read it: flakiness detection over a trailing run window and
// per-test trend statistics over a day window.
package history

import (
	"strings"
	"time"
)

// Outcome values as stored. Anything else a harness reports is kept verbatim
// but treated as "other" by the analyzers.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// TestResult is one test's result within a single run.
type TestResult struct {
	Outcome  string  `json:"outcome"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error,omitempty"`
}

// Summary aggregates one run. The store does not enforce
// Total == Passed+Failed+Skipped; it records what the harness reported.
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Duration float64 `json:"duration"`
}

// RunRecord is one test-suite execution event. Never mutated after append.
type RunRecord struct {
	RunID     string                `json:"run_id"`
	Timestamp time.Time             `json:"timestamp"`
	Summary   Summary               `json:"summary"`
	Tests     map[string]TestResult `json:"tests"`
}

// RawTest is the duck-typed per-test shape harnesses emit. pytest-style
// reporters use nodeid/outcome, others use name/status; both are accepted
// here and normalized away at this boundary.
type RawTest struct {
	NodeID   string  `json:"nodeid,omitempty"`
	Name     string  `json:"name,omitempty"`
	Outcome  string  `json:"outcome,omitempty"`
	Status   string  `json:"status,omitempty"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error,omitempty"`
}

// RawRunResults is the ingestion shape for one run. Missing numeric fields
// default to zero.
type RawRunResults struct {
	Total    int       `json:"total"`
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Duration float64   `json:"duration"`
	Tests    []RawTest `json:"tests,omitempty"`
}

// normalize builds the canonical record from a raw harness payload.
func (r RawRunResults) normalize(runID string, now time.Time) RunRecord {
	rec := RunRecord{
		RunID:     runID,
		Timestamp: now,
		Summary: Summary{
			Total:    r.Total,
			Passed:   r.Passed,
			Failed:   r.Failed,
			Skipped:  r.Skipped,
			Duration: r.Duration,
		},
		Tests: make(map[string]TestResult, len(r.Tests)),
	}

	for _, t := range r.Tests {
		name := t.NodeID
		if name == "" {
			name = t.Name
		}
		if name == "" {
			continue
		}
		outcome := t.Outcome
		if outcome == "" {
			outcome = t.Status
		}
		if outcome == "" {
			outcome = OutcomeSkipped
		}
		dur := t.Duration
		if dur < 0 {
			dur = 0
		}
		rec.Tests[name] = TestResult{
			Outcome:  strings.ToLower(outcome),
			Duration: dur,
			Error:    t.Error,
		}
	}

	return rec
}
