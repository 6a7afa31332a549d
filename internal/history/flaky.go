package history

import (
	"math"
	"time"
)

const (
	// flakyWindow is the trailing run window examined per recomputation.
	flakyWindow = 20

	// minFlakyRuns is the minimum run count before flakiness is computed at
	// all, and the minimum observation count for a test to qualify.
	minFlakyRuns = 3

	// patternLen caps the recent-outcome pattern string.
	patternLen = 10
)

// FlakyTest is one test's flakiness summary within the trailing window.
type FlakyTest struct {
	// FlakinessScore is 1 - |passed - failed| / total: maximal (1.0) when
	// pass and fail counts balance exactly.
	FlakinessScore float64 `json:"flakiness_score"`
	PassRate       float64 `json:"pass_rate"`
	FailRate       float64 `json:"fail_rate"`
	TotalRuns      int     `json:"total_runs"`
	// RecentPattern maps the last outcomes to P/F/S characters, oldest first.
	RecentPattern string    `json:"recent_pattern"`
	LastOutcome   string    `json:"last_outcome"`
	DetectedAt    time.Time `json:"detected_at"`
}

// FlakyReport is a project's full flaky-test map. Each recomputation
// replaces the previous report wholesale; a test that stops being flaky
// simply disappears.
type FlakyReport struct {
	UpdatedAt time.Time            `json:"updated_at"`
	Tests     map[string]FlakyTest `json:"tests"`
}

// computeFlaky derives a flaky report from the project's records. Returns
// ok=false when fewer than minFlakyRuns runs exist, in which case the caller
// must leave any prior report untouched.
func computeFlaky(records []RunRecord, now time.Time) (FlakyReport, bool) {
	if len(records) < minFlakyRuns {
		return FlakyReport{}, false
	}

	window := records
	if len(window) > flakyWindow {
		window = window[len(window)-flakyWindow:]
	}

	// Ordered outcome sequence per test name. A run that lacks the test
	// contributes nothing to that test's sequence.
	outcomes := make(map[string][]string)
	for _, rec := range window {
		for name, res := range rec.Tests {
			outcomes[name] = append(outcomes[name], res.Outcome)
		}
	}

	report := FlakyReport{
		UpdatedAt: now,
		Tests:     make(map[string]FlakyTest),
	}

	for name, seq := range outcomes {
		if len(seq) < minFlakyRuns {
			continue
		}
		var passed, failed int
		for _, o := range seq {
			switch o {
			case OutcomePassed:
				passed++
			case OutcomeFailed:
				failed++
			}
		}
		// Flaky means genuinely mixed: at least one pass and one fail.
		// Homogeneous sequences and skip-only noise do not qualify.
		if passed == 0 || failed == 0 {
			continue
		}

		total := len(seq)
		score := 1.0 - math.Abs(float64(passed-failed))/float64(total)

		report.Tests[name] = FlakyTest{
			FlakinessScore: round3(score),
			PassRate:       round1(float64(passed) / float64(total) * 100),
			FailRate:       round1(float64(failed) / float64(total) * 100),
			TotalRuns:      total,
			RecentPattern:  patternOf(seq),
			LastOutcome:    seq[len(seq)-1],
			DetectedAt:     now,
		}
	}

	return report, true
}

// patternOf renders the last patternLen outcomes as P/F/S, oldest first.
func patternOf(seq []string) string {
	if len(seq) > patternLen {
		seq = seq[len(seq)-patternLen:]
	}
	buf := make([]byte, len(seq))
	for i, o := range seq {
		switch o {
		case OutcomePassed:
			buf[i] = 'P'
		case OutcomeFailed:
			buf[i] = 'F'
		default:
			buf[i] = 'S'
		}
	}
	return string(buf)
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
