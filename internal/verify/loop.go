package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"flakewatch/internal/config"
)

// ErrEscalated is returned when a verification pass exhausts its loops
// without reaching the confidence gate. Manual review is required.
var ErrEscalated = errors.New("verification escalated: manual review required")

// Fixer runs between loops after a failed verification. It is an external
// collaborator hook; what it does to improve the next loop is its business.
type Fixer interface {
	Fix(ctx context.Context, last LoopResult) error
}

// FixerFunc adapts a function to the Fixer interface.
type FixerFunc func(ctx context.Context, last LoopResult) error

// Fix implements Fixer.
func (f FixerFunc) Fix(ctx context.Context, last LoopResult) error { return f(ctx, last) }

// ExecutionVerdict pairs an execution name with its verdict.
type ExecutionVerdict struct {
	Name    string  `json:"name"`
	Verdict Verdict `json:"verdict"`
}

// LoopResult is one loop's outcome within a pass.
type LoopResult struct {
	Loop       int                `json:"loop"`
	Total      int                `json:"total"`
	Real       int                `json:"real"`
	Fake       int                `json:"fake"`
	Confidence float64            `json:"confidence"`
	Verdicts   []ExecutionVerdict `json:"verdicts"`
}

// PassReport is the full verification pass outcome.
type PassReport struct {
	Passed          bool         `json:"passed"`
	Loops           []LoopResult `json:"loops"`
	FinalConfidence float64      `json:"final_confidence"`
}

// PassRecorder persists completed passes. *archive.Archive satisfies this.
type PassRecorder interface {
	StorePass(passed bool, loops int, confidence float64, report []byte) error
}

// Loop runs the bounded verification pass policy.
type Loop struct {
	scorer   *Scorer
	cfg      *config.Config
	log      *zap.Logger
	fixer    Fixer
	recorder PassRecorder
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithFixer installs the between-loop corrective hook.
func WithFixer(f Fixer) LoopOption {
	return func(l *Loop) { l.fixer = f }
}

// WithRecorder persists pass reports after each run.
func WithRecorder(r PassRecorder) LoopOption {
	return func(l *Loop) { l.recorder = r }
}

// NewLoop builds a verification loop around a scorer.
func NewLoop(scorer *Scorer, cfg *config.Config, logger *zap.Logger, opts ...LoopOption) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{scorer: scorer, cfg: cfg, log: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes up to MaxLoops verification loops, fetching and scoring the
// current executions each time. The pass stops early once loop confidence
// reaches the gate; otherwise the fixer (if any) runs and the loop repeats.
// Exhausting the loops returns the report alongside ErrEscalated.
func (l *Loop) Run(ctx context.Context, fetch func(context.Context) ([]Execution, error)) (*PassReport, error) {
	maxLoops := l.cfg.Thresholds.MaxLoops
	gate := l.cfg.Thresholds.ConfidenceGate

	report := &PassReport{}
	for loop := 1; loop <= maxLoops; loop++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		execs, err := fetch(ctx)
		if err != nil {
			return report, fmt.Errorf("failed to fetch executions for loop %d: %w", loop, err)
		}

		result := l.scoreLoop(loop, execs)
		report.Loops = append(report.Loops, result)
		report.FinalConfidence = result.Confidence

		l.log.Info("verification loop complete",
			zap.Int("loop", loop),
			zap.Int("total", result.Total),
			zap.Int("real", result.Real),
			zap.Int("fake", result.Fake),
			zap.Float64("confidence", result.Confidence))

		if result.Confidence >= gate {
			report.Passed = true
			l.record(report)
			return report, nil
		}
		if loop == maxLoops {
			break
		}
		if l.fixer != nil {
			if err := l.fixer.Fix(ctx, result); err != nil {
				return report, fmt.Errorf("fixer failed after loop %d: %w", loop, err)
			}
		}
	}

	l.record(report)
	return report, ErrEscalated
}

// scoreLoop scores every execution and computes the loop-level confidence:
// 100 * real/total - 20 * fake/total, clamped to [0, 100]. An execution is
// real when no sub-score raised a suspicion, fake when its duration sits
// below the fake cutoff.
func (l *Loop) scoreLoop(loop int, execs []Execution) LoopResult {
	result := LoopResult{
		Loop:  loop,
		Total: len(execs),
	}

	for _, exec := range execs {
		verdict := l.scorer.Score(exec)
		result.Verdicts = append(result.Verdicts, ExecutionVerdict{Name: exec.Name, Verdict: verdict})

		if len(verdict.Suspicions) == 0 {
			result.Real++
		}
		if exec.Duration < l.cfg.Thresholds.FakeCutoff {
			result.Fake++
		}
	}

	if result.Total > 0 {
		n := float64(result.Total)
		conf := 100*float64(result.Real)/n - 20*float64(result.Fake)/n
		result.Confidence = clampConfidence(conf)
	}
	return result
}

func (l *Loop) record(report *PassReport) {
	if l.recorder == nil {
		return
	}
	payload, err := marshalReport(report)
	if err != nil {
		l.log.Warn("failed to marshal pass report", zap.Error(err))
		return
	}
	if err := l.recorder.StorePass(report.Passed, len(report.Loops), report.FinalConfidence, payload); err != nil {
		l.log.Warn("failed to persist pass report", zap.Error(err))
	}
}

func marshalReport(report *PassReport) ([]byte, error) {
	return json.Marshal(report)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
