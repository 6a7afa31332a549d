package verify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flakewatch/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	// Envelope matching the canonical scenarios: expected 1-5 seconds.
	cfg.Categories["slow_query"] = config.DurationRange{Min: 1.0, Max: 5.0}
	return cfg
}

func richOutput() map[string]any {
	return map[string]any{
		"completed_at": "2026-08-31T10:42:17Z",
		"rows":         42,
		"details":      map[string]any{"table": "events"},
	}
}

func genuineExecution() Execution {
	return Execution{
		Name:     "TestQueryEvents",
		Category: "slow_query",
		Outcome:  "passed",
		Duration: 2.5,
		Output:   richOutput(),
	}
}

func TestScoreGenuineExecution(t *testing.T) {
	sc := NewScorer(testConfig(), nil)
	v := sc.Score(genuineExecution())

	assert.Equal(t, 1.0, v.Confidence)
	assert.Empty(t, v.Suspicions)
	assert.Equal(t, LikelyGenuine, v.Label)
}

func TestScorePassingHoneypotIsAlwaysFake(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	// Everything else about the execution is perfectly plausible; the
	// passing honeypot alone must force the verdict.
	exec := genuineExecution()
	exec.Name = "TestHoneypotNeverPasses"
	exec.Outcome = "passed"

	v := sc.Score(exec)
	assert.Equal(t, FakeImplementation, v.Label)
	require.True(t, v.Critical())
	assert.Contains(t, strings.Join(v.Suspicions, "\n"), "CRITICAL")
}

func TestScoreHoneypotSuffixConvention(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	exec := genuineExecution()
	exec.Name = "TestAlwaysFails.H"
	exec.Outcome = "passed"
	assert.Equal(t, FakeImplementation, sc.Score(exec).Label)

	// A failing honeypot is behaving as designed.
	exec.Outcome = "failed"
	exec.Error = "assertion failed: expected impossible state"
	v := sc.Score(exec)
	assert.NotEqual(t, FakeImplementation, v.Label)
	assert.False(t, v.Critical())
}

func TestScoreSuspiciouslyFast(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	exec := genuineExecution()
	exec.Duration = 0.0005

	v := sc.Score(exec)
	require.NotEmpty(t, v.Suspicions)
	assert.Contains(t, v.Suspicions[0], "suspiciously fast")
	assert.Less(t, v.Confidence, 1.0, "duration sub-score must drag confidence below 1")
}

func TestScoreSlowExecutionPenalized(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	exec := genuineExecution()
	exec.Duration = 10.0 // double the 5s expected maximum

	v := sc.Score(exec)
	// Duration sub-score is 5/10 = 0.5; no suspicion, being slow is not
	// evidence of faking.
	assert.InDelta(t, (0.5+1+1+1)/4, v.Confidence, 1e-9)
	assert.Empty(t, v.Suspicions)
}

func TestScoreEmptyOutput(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	exec := genuineExecution()
	exec.Output = nil

	v := sc.Score(exec)
	require.NotEmpty(t, v.Suspicions)
	assert.Contains(t, v.Suspicions[0], "no structured output")
	assert.InDelta(t, (1+1+0+1)/4.0, v.Confidence, 1e-9)
}

func TestOutputScoreThirds(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	cases := []struct {
		name   string
		output map[string]any
		want   float64
	}{
		{"timestamp only", map[string]any{"at": "2026-08-31 10:42"}, 1.0 / 3},
		{"number only", map[string]any{"count": 7}, 1.0 / 3},
		{"nested only", map[string]any{"items": []any{"a", "b"}}, 1.0 / 3},
		{"all three", richOutput(), 1.0},
		{"none", map[string]any{"msg": "ok"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var suspicions []string
			got := sc.outputScore(Execution{Output: tc.output}, &suspicions)
			assert.InDelta(t, tc.want, got, 1e-9)
			assert.Empty(t, suspicions, "non-empty output raises no suspicion even when weak")
		})
	}
}

func TestOutputScoreFindsSignalsInNestedValues(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	var suspicions []string
	output := map[string]any{
		"result": map[string]any{
			"finished": "2026-08-31T09:00:00Z",
			"rows":     float64(12),
		},
	}
	got := sc.outputScore(Execution{Output: output}, &suspicions)
	assert.InDelta(t, 1.0, got, 1e-9, "nested map plus inner timestamp and number")
}

func TestErrorScore(t *testing.T) {
	assert.Equal(t, 1.0, errorScore(""))
	assert.Equal(t, 0.3, errorScore("Error"))
	assert.Equal(t, 0.3, errorScore("boom"))
	assert.Equal(t, 0.8, errorScore("dial tcp 10.0.0.3:5432: connection refused"))
}

func TestVerdictLadder(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	cases := []struct {
		confidence float64
		want       Label
	}{
		{0.2, HighlySuspicious},
		{0.49, HighlySuspicious},
		{0.5, Suspicious},
		{0.69, Suspicious},
		{0.7, Questionable},
		{0.84, Questionable},
		{0.85, LikelyGenuine},
		{1.0, LikelyGenuine},
	}
	for _, tc := range cases {
		got := sc.label(Verdict{Confidence: tc.confidence})
		assert.Equal(t, tc.want, got, "confidence %.2f", tc.confidence)
	}

	critical := Verdict{Confidence: 0.99, Suspicions: []string{"CRITICAL: honeypot passed"}}
	assert.Equal(t, FakeImplementation, sc.label(critical))
}

func TestScoreUnknownCategoryUsesDefaultRange(t *testing.T) {
	sc := NewScorer(testConfig(), nil)

	exec := genuineExecution()
	exec.Category = "never-configured"
	exec.Duration = 0.5 // implausible for slow_query, fine for the default envelope

	v := sc.Score(exec)
	assert.Empty(t, v.Suspicions)
	assert.Equal(t, 1.0, v.Confidence)
}
