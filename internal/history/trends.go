package history

import (
	"errors"
	"math"
	"sort"
	"time"
)

// Sentinel errors for expected no-data conditions. Callers branch with
// errors.Is instead of parsing messages.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNoData          = errors.New("no data for this test in the specified period")
)

const recentRunsCap = 10

// RunObservation is one observed execution of a test within a run.
type RunObservation struct {
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`
	Duration  float64   `json:"duration"`
}

// DurationStats summarizes positive-duration observations. StdDev is the
// population standard deviation and stays 0 below two samples.
type DurationStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// TestTrend summarizes one test's behavior over a day window. Response
// object only; never persisted.
type TestTrend struct {
	Project  string `json:"project"`
	TestName string `json:"test_name"`
	Days     int    `json:"days"`

	TotalRuns   int     `json:"total_runs"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`

	Duration   DurationStats    `json:"duration"`
	RecentRuns []RunObservation `json:"recent_runs"`

	// PerformanceRegression is set when the mean of the last five durations
	// exceeds the configured ratio of the lifetime mean. A two-window ratio
	// test, not a change-point detector.
	PerformanceRegression bool    `json:"performance_regression,omitempty"`
	RegressionFactor      float64 `json:"regression_factor,omitempty"`
}

// Trends computes a single test's statistics over the day window.
// ErrProjectNotFound for unknown projects; ErrNoData when no run in the
// window contains the test.
func (s *Store) Trends(project, testName string, days int) (*TestTrend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.history[project]
	if !ok {
		return nil, ErrProjectNotFound
	}

	cutoff := s.now().AddDate(0, 0, -days)
	var obs []RunObservation
	for _, rec := range records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		res, found := rec.Tests[testName]
		if !found {
			continue
		}
		obs = append(obs, RunObservation{
			Timestamp: rec.Timestamp,
			Outcome:   res.Outcome,
			Duration:  res.Duration,
		})
	}
	if len(obs) == 0 {
		return nil, ErrNoData
	}

	trend := &TestTrend{
		Project:   project,
		TestName:  testName,
		Days:      days,
		TotalRuns: len(obs),
	}
	var durations []float64
	for _, o := range obs {
		switch o.Outcome {
		case OutcomePassed:
			trend.Passed++
		case OutcomeFailed:
			trend.Failed++
		case OutcomeSkipped:
			trend.Skipped++
		}
		if o.Duration > 0 {
			durations = append(durations, o.Duration)
		}
	}
	trend.SuccessRate = float64(trend.Passed) / float64(len(obs)) * 100

	trend.Duration = durationStats(durations)

	recent := obs
	if len(recent) > recentRunsCap {
		recent = recent[len(recent)-recentRunsCap:]
	}
	trend.RecentRuns = recent

	// Regression check only makes sense with enough recent samples to
	// average over.
	if len(durations) >= 5 {
		recentMean := mean(durations[len(durations)-5:])
		overallMean := mean(durations)
		if overallMean > 0 && recentMean > s.cfg.Thresholds.RegressionRatio*overallMean {
			trend.PerformanceRegression = true
			trend.RegressionFactor = recentMean / overallMean
		}
	}

	return trend, nil
}

func durationStats(durations []float64) DurationStats {
	if len(durations) == 0 {
		return DurationStats{}
	}

	stats := DurationStats{
		Mean: mean(durations),
		Min:  durations[0],
		Max:  durations[0],
	}
	for _, d := range durations {
		if d < stats.Min {
			stats.Min = d
		}
		if d > stats.Max {
			stats.Max = d
		}
	}

	sorted := append([]float64(nil), durations...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		stats.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		stats.Median = sorted[mid]
	}

	if len(durations) >= 2 {
		var sum float64
		for _, d := range durations {
			diff := d - stats.Mean
			sum += diff * diff
		}
		stats.StdDev = math.Sqrt(sum / float64(len(durations)))
	}

	return stats
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
