package history

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendDurations(t *testing.T, store *Store, project, test string, durations []float64) {
	t.Helper()
	for i, d := range durations {
		results := RawRunResults{
			Total: 1, Passed: 1, Duration: d,
			Tests: []RawTest{{NodeID: test, Outcome: OutcomePassed, Duration: d}},
		}
		require.NoError(t, store.Append(project, results, fmt.Sprintf("run-%d", i)))
	}
}

func TestTrendsUnknownProject(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Trends("ghost", "t1", 7)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestTrendsNoDataForTest(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Append("P", rawRun(OutcomePassed, 1), ""))

	_, err := store.Trends("P", "never_ran", 7)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestTrendsOutcomeTalliesAndSuccessRate(t *testing.T) {
	store := newTestStore(t)
	for _, o := range []string{OutcomePassed, OutcomePassed, OutcomeFailed, OutcomeSkipped} {
		require.NoError(t, store.Append("P", rawRun(o, 1), ""))
	}

	trend, err := store.Trends("P", "t1", 7)
	require.NoError(t, err)

	assert.Equal(t, 4, trend.TotalRuns)
	assert.Equal(t, 2, trend.Passed)
	assert.Equal(t, 1, trend.Failed)
	assert.Equal(t, 1, trend.Skipped)
	assert.Equal(t, 50.0, trend.SuccessRate)
}

func TestTrendsDurationStats(t *testing.T) {
	store := newTestStore(t)
	appendDurations(t, store, "P", "t1", []float64{1, 2, 3, 4})

	trend, err := store.Trends("P", "t1", 7)
	require.NoError(t, err)

	assert.Equal(t, 2.5, trend.Duration.Mean)
	assert.Equal(t, 2.5, trend.Duration.Median)
	assert.Equal(t, 1.0, trend.Duration.Min)
	assert.Equal(t, 4.0, trend.Duration.Max)
	assert.InDelta(t, math.Sqrt(1.25), trend.Duration.StdDev, 1e-9)
}

func TestTrendsStdDevZeroBelowTwoSamples(t *testing.T) {
	store := newTestStore(t)
	appendDurations(t, store, "P", "t1", []float64{2.5})

	trend, err := store.Trends("P", "t1", 7)
	require.NoError(t, err)
	assert.Equal(t, 0.0, trend.Duration.StdDev)
	assert.Equal(t, 2.5, trend.Duration.Mean)
}

func TestTrendsIgnoresZeroDurations(t *testing.T) {
	store := newTestStore(t)
	appendDurations(t, store, "P", "t1", []float64{0, 0, 3})

	trend, err := store.Trends("P", "t1", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, trend.TotalRuns)
	assert.Equal(t, 3.0, trend.Duration.Mean, "zero durations are excluded from duration stats")
	assert.Equal(t, 3.0, trend.Duration.Min)
}

func TestTrendsRecentRunsCappedAtTen(t *testing.T) {
	store := newTestStore(t)
	appendDurations(t, store, "P", "t1", make([]float64, 15))

	trend, err := store.Trends("P", "t1", 7)
	require.NoError(t, err)
	assert.Equal(t, 15, trend.TotalRuns)
	assert.Len(t, trend.RecentRuns, 10)
}

func TestTrendsRegressionDetected(t *testing.T) {
	store := newTestStore(t)
	// Lifetime mean 0.55s, recent-5 mean 1.0s: 1.0 > 1.5 * 0.55.
	appendDurations(t, store, "P", "t1", []float64{0.1, 0.1, 0.1, 0.1, 0.1, 1, 1, 1, 1, 1})

	trend, err := store.Trends("P", "t1", 7)
	require.NoError(t, err)

	require.True(t, trend.PerformanceRegression)
	assert.InDelta(t, 1.0/0.55, trend.RegressionFactor, 1e-9)
	assert.GreaterOrEqual(t, trend.RegressionFactor, 1.5)
}

func TestTrendsFlatSeriesHasNoRegression(t *testing.T) {
	store := newTestStore(t)
	appendDurations(t, store, "P", "t1", []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})

	trend, err := store.Trends("P", "t1", 7)
	require.NoError(t, err)
	assert.False(t, trend.PerformanceRegression)
	assert.Zero(t, trend.RegressionFactor)
}

func TestTrendsRegressionNeedsFiveSamples(t *testing.T) {
	store := newTestStore(t)
	// A big jump, but only 4 positive-duration samples.
	appendDurations(t, store, "P", "t1", []float64{0.1, 0.1, 5, 5})

	trend, err := store.Trends("P", "t1", 7)
	require.NoError(t, err)
	assert.False(t, trend.PerformanceRegression)
}
