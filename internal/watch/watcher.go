// Package watch ingests test-run result files dropped into a directory.
// Harnesses that cannot link flakewatch directly just write their results
// JSON into the drop directory; the watcher picks them up.
package watch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"flakewatch/internal/history"
)

// Ingestor receives parsed run results. *history.Store satisfies this.
type Ingestor interface {
	Append(project string, results history.RawRunResults, runID string) error
}

// Stats tracks watcher activity for tests and debugging.
type Stats struct {
	FilesSeen int
	Ingested  int
	Errors    int
	LastFile  string
}

// Watcher observes a drop directory for result JSON files and appends each
// one to the store exactly once, debouncing the rapid write events editors
// and harnesses produce while a file is still being flushed.
type Watcher struct {
	mu             sync.Mutex
	fsw            *fsnotify.Watcher
	store          Ingestor
	log            *zap.Logger
	dir            string
	defaultProject string
	debounceDur    time.Duration
	lastHandled    map[string]time.Time
	stopCh         chan struct{}
	doneCh         chan struct{}
	running        bool
	stats          Stats
}

// New creates a watcher for the given drop directory. The directory is
// created if absent. defaultProject names runs whose filename carries no
// project prefix.
func New(dir, defaultProject string, store Ingestor, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsw:            fsw,
		store:          store,
		log:            logger,
		dir:            dir,
		defaultProject: defaultProject,
		debounceDur:    500 * time.Millisecond,
		lastHandled:    make(map[string]time.Time),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}

	go w.loop(ctx)
	w.log.Info("results watcher started", zap.String("dir", w.dir))
	return nil
}

// Stop terminates the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.fsw.Close()
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			w.handle(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// handle ingests one result file, skipping paths handled within the
// debounce window so a create-then-write burst counts once.
func (w *Watcher) handle(path string) {
	now := time.Now()

	w.mu.Lock()
	if last, ok := w.lastHandled[path]; ok && now.Sub(last) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.lastHandled[path] = now
	w.stats.FilesSeen++
	w.stats.LastFile = path
	w.mu.Unlock()

	if err := w.ingest(path); err != nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		w.log.Warn("failed to ingest results file", zap.String("path", path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.stats.Ingested++
	w.mu.Unlock()
}

func (w *Watcher) ingest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var results history.RawRunResults
	if err := json.Unmarshal(data, &results); err != nil {
		return err
	}

	project := w.projectFor(path)
	if err := w.store.Append(project, results, ""); err != nil {
		return err
	}

	w.log.Info("results file ingested",
		zap.String("path", path),
		zap.String("project", project),
		zap.Int("tests", len(results.Tests)))
	return nil
}

// projectFor derives the project from the filename: "proj--run42.json"
// belongs to "proj"; anything else falls back to the default project, or
// the file stem when no default is configured.
func (w *Watcher) projectFor(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), ".json")
	if idx := strings.Index(stem, "--"); idx > 0 {
		return stem[:idx]
	}
	if w.defaultProject != "" {
		return w.defaultProject
	}
	return stem
}
