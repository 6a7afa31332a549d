// Package verify implements skeptical authenticity scoring for observed test
// executions: plausibility heuristics over duration, output structure, and
// error quality, plus the bounded verification loop that decides whether a
// whole pass needs repeating or escalating.
package verify

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"flakewatch/internal/config"
)

// Execution is one observed test execution as reported by the harness.
type Execution struct {
	Name     string         `json:"name"`
	Category string         `json:"category"`
	Outcome  string         `json:"outcome"`
	Duration float64        `json:"duration"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Label is the discrete verdict for one execution.
type Label string

const (
	FakeImplementation Label = "FAKE_IMPLEMENTATION"
	HighlySuspicious   Label = "HIGHLY_SUSPICIOUS"
	Suspicious         Label = "SUSPICIOUS"
	Questionable       Label = "QUESTIONABLE"
	LikelyGenuine      Label = "LIKELY_GENUINE"
)

const criticalTag = "CRITICAL"

// Verdict is the per-execution scoring result. Ephemeral; consumed by the
// calling loop.
type Verdict struct {
	Confidence float64  `json:"confidence"`
	Suspicions []string `json:"suspicions,omitempty"`
	Label      Label    `json:"verdict"`
}

// Critical reports whether any suspicion carries the CRITICAL tag.
func (v Verdict) Critical() bool {
	for _, s := range v.Suspicions {
		if strings.HasPrefix(s, criticalTag) {
			return true
		}
	}
	return false
}

// Scorer computes authenticity verdicts against configured duration
// envelopes and thresholds.
type Scorer struct {
	cfg *config.Config
	log *zap.Logger
}

// NewScorer builds a scorer. A nil logger is replaced by a no-op.
func NewScorer(cfg *config.Config, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{cfg: cfg, log: logger}
}

// Score computes the four sub-scores and folds them into a verdict. The
// confidence is their unweighted mean; a passing honeypot overrides
// everything with FAKE_IMPLEMENTATION.
func (sc *Scorer) Score(exec Execution) Verdict {
	var suspicions []string

	dur := sc.durationScore(exec, &suspicions)
	hp := sc.honeypotScore(exec, &suspicions)
	out := sc.outputScore(exec, &suspicions)
	errQ := errorScore(exec.Error)

	verdict := Verdict{
		Confidence: (dur + hp + out + errQ) / 4,
		Suspicions: suspicions,
	}
	verdict.Label = sc.label(verdict)

	sc.log.Debug("execution scored",
		zap.String("test", exec.Name),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("verdict", string(verdict.Label)),
		zap.Strings("suspicions", suspicions))

	return verdict
}

func (sc *Scorer) label(v Verdict) Label {
	switch {
	case v.Critical():
		return FakeImplementation
	case v.Confidence < 0.5:
		return HighlySuspicious
	case v.Confidence < 0.7:
		return Suspicious
	case v.Confidence < 0.85:
		return Questionable
	default:
		return LikelyGenuine
	}
}

// durationScore checks the observed duration against the category envelope.
// Inside the range scores 1.0; outside, the violated side's ratio, clamped
// to non-negative.
func (sc *Scorer) durationScore(exec Execution, suspicions *[]string) float64 {
	r := sc.cfg.Range(exec.Category)

	if exec.Duration < sc.cfg.Thresholds.FastRatio*r.Min {
		*suspicions = append(*suspicions, fmt.Sprintf(
			"suspiciously fast: %.4fs observed, expected at least %.2fs for %s",
			exec.Duration, r.Min, exec.Category))
	}

	switch {
	case exec.Duration >= r.Min && exec.Duration <= r.Max:
		return 1.0
	case exec.Duration < r.Min:
		if r.Min <= 0 {
			return 1.0
		}
		return clamp01(exec.Duration / r.Min)
	default:
		if exec.Duration <= 0 {
			return 0
		}
		return clamp01(r.Max / exec.Duration)
	}
}

// honeypotScore enforces the always-fail contract of honeypot tests. A
// honeypot that reports success proves the harness is not exercising real
// logic, which forces the overall verdict regardless of other sub-scores.
// Non-honeypot tests pass this check neutrally.
func (sc *Scorer) honeypotScore(exec Execution, suspicions *[]string) float64 {
	if !sc.isHoneypot(exec.Name) {
		return 1.0
	}
	if exec.Outcome == "failed" {
		return 1.0
	}
	*suspicions = append(*suspicions, fmt.Sprintf(
		"%s: honeypot test %q reported %q; honeypots must always fail",
		criticalTag, exec.Name, exec.Outcome))
	return 0.0
}

func (sc *Scorer) isHoneypot(name string) bool {
	if strings.Contains(strings.ToLower(name), "honeypot") {
		return true
	}
	suffix := sc.cfg.Thresholds.HoneypotSuffix
	return suffix != "" && strings.HasSuffix(name, suffix)
}

var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]?\d{0,2}:?\d{0,2}`)

// outputScore looks for structural evidence of real work in the output
// payload: a timestamp-looking string, a numeric value, and a nested
// collection, each worth a third.
func (sc *Scorer) outputScore(exec Execution, suspicions *[]string) float64 {
	if len(exec.Output) == 0 {
		*suspicions = append(*suspicions, "no structured output captured")
		return 0
	}

	var hasTimestamp, hasNumber, hasNested bool
	for _, v := range exec.Output {
		inspectValue(v, &hasTimestamp, &hasNumber, &hasNested)
	}

	score := 0.0
	if hasTimestamp {
		score += 1.0 / 3
	}
	if hasNumber {
		score += 1.0 / 3
	}
	if hasNested {
		score += 1.0 / 3
	}
	return score
}

// inspectValue walks one output value, descending into nested collections.
func inspectValue(v any, hasTimestamp, hasNumber, hasNested *bool) {
	switch val := v.(type) {
	case string:
		if timestampPattern.MatchString(val) {
			*hasTimestamp = true
		}
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		*hasNumber = true
	case map[string]any:
		*hasNested = true
		for _, inner := range val {
			inspectValue(inner, hasTimestamp, hasNumber, hasNested)
		}
	case []any:
		*hasNested = true
		for _, inner := range val {
			inspectValue(inner, hasTimestamp, hasNumber, hasNested)
		}
	}
}

// errorScore rates error-message quality. Absence of an error is
// neutral-positive; a message too short or too generic to be real is
// penalized harder than a substantive one.
func errorScore(msg string) float64 {
	if msg == "" {
		return 1.0
	}
	if len(msg) < 10 || msg == "Error" {
		return 0.3
	}
	return 0.8
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
