package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flakewatch/internal/config"
)

const (
	historyFile = "test_history.json"
	flakyFile   = "flaky_tests.json"

	// maxRecords bounds per-project retention. The oldest records fall off
	// first; with an archive attached they are archived instead of lost.
	maxRecords = 100
)

// RunArchiver receives records evicted from the bounded live window.
// *archive.Archive satisfies this.
type RunArchiver interface {
	ArchiveRun(project, runID string, recordedAt time.Time, payload []byte) error
}

// Store is the durable append-only per-project run log. Whole files are
// rewritten on every mutation; concurrent writers from multiple processes
// are not supported (last writer wins).
type Store struct {
	mu      sync.Mutex
	baseDir string
	cfg     *config.Config
	log     *zap.Logger
	arch    RunArchiver

	history map[string][]RunRecord
	flaky   map[string]FlakyReport

	// now is swappable for deterministic tests.
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithArchive routes evicted records into a cold archive.
func WithArchive(a RunArchiver) Option {
	return func(s *Store) { s.arch = a }
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens the store rooted at baseDir, loading any existing state.
func NewStore(baseDir string, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &Store{
		baseDir: baseDir,
		cfg:     cfg,
		log:     logger,
		history: make(map[string][]RunRecord),
		flaky:   make(map[string]FlakyReport),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := loadJSON(filepath.Join(baseDir, historyFile), &s.history); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(baseDir, flakyFile), &s.flaky); err != nil {
		return nil, err
	}

	return s, nil
}

// Append records one run for a project, persists the history, and recomputes
// the project's flaky-test report. An empty runID gets a generated one.
// I/O failures propagate: silent loss on a history store is worse than a
// visible error.
func (s *Store) Append(project string, results RawRunResults, runID string) error {
	if project == "" {
		return fmt.Errorf("project name is required")
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := results.normalize(runID, now)
	records := append(s.history[project], rec)

	if len(records) > maxRecords {
		evicted := records[:len(records)-maxRecords]
		records = records[len(records)-maxRecords:]
		s.archiveEvicted(project, evicted)
	}
	s.history[project] = records

	if err := s.saveHistory(); err != nil {
		return err
	}

	s.log.Debug("run appended",
		zap.String("project", project),
		zap.String("run_id", runID),
		zap.Int("tests", len(rec.Tests)),
		zap.Int("retained", len(records)))

	return s.recomputeFlaky(project, now)
}

// History returns the project's records whose timestamp falls within the
// trailing day window, oldest first. Unknown projects yield an empty slice.
func (s *Store) History(project string, days int) []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().AddDate(0, 0, -days)
	var out []RunRecord
	for _, rec := range s.history[project] {
		if !rec.Timestamp.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// Projects lists known project names, sorted.
func (s *Store) Projects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.history))
	for name := range s.history {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FlakyReport returns the last computed flaky report for a project.
func (s *Store) FlakyReport(project string) (FlakyReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep, ok := s.flaky[project]
	return rep, ok
}

func (s *Store) archiveEvicted(project string, evicted []RunRecord) {
	if s.arch == nil {
		return
	}
	for _, rec := range evicted {
		payload, err := json.Marshal(rec)
		if err != nil {
			s.log.Warn("failed to marshal evicted record",
				zap.String("project", project), zap.String("run_id", rec.RunID), zap.Error(err))
			continue
		}
		if err := s.arch.ArchiveRun(project, rec.RunID, rec.Timestamp, payload); err != nil {
			s.log.Warn("failed to archive evicted record",
				zap.String("project", project), zap.String("run_id", rec.RunID), zap.Error(err))
		}
	}
}

// recomputeFlaky replaces the project's flaky report wholesale. With fewer
// than minFlakyRuns runs it is a no-op and any prior report stands untouched.
func (s *Store) recomputeFlaky(project string, now time.Time) error {
	records := s.history[project]
	report, ok := computeFlaky(records, now)
	if !ok {
		return nil
	}

	s.flaky[project] = report
	if err := s.saveFlaky(); err != nil {
		return err
	}

	s.log.Debug("flaky report recomputed",
		zap.String("project", project),
		zap.Int("flaky_tests", len(report.Tests)))
	return nil
}

func (s *Store) saveHistory() error {
	return saveJSON(filepath.Join(s.baseDir, historyFile), s.history)
}

func (s *Store) saveFlaky() error {
	return saveJSON(filepath.Join(s.baseDir, flakyFile), s.flaky)
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
