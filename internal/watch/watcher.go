// Package watch monitors a project directory for source changes and drives
// regeneration: an edited interface file triggers test generation, an
// edited test file triggers implementation generation.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/digitalex/codeless/internal/logging"
	"github.com/digitalex/codeless/internal/project"
)

// Handler reacts to settled file changes. Errors are logged per event; the
// watcher keeps running.
type Handler interface {
	InterfaceChanged(ctx context.Context, path string) error
	TestsChanged(ctx context.Context, path string) error
}

// Stats tracks watcher activity for debugging.
type Stats struct {
	InterfaceEvents int
	TestEvents      int
	Suppressed      int
	Errors          int
	LastEventTime   time.Time
	LastEventPath   string
}

// Watcher watches a directory tree for source file changes. Generated
// files written through MarkSelfWrite do not re-trigger generation.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	handler     Handler
	debounceMap map[string]time.Time
	debounceDur time.Duration
	selfWrites  map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// How long after MarkSelfWrite the resulting events stay suppressed. Long
// enough to outlive editor-style double events, short enough that a real
// manual edit shortly after generation still gets through.
const selfWriteWindow = 2 * time.Second

// New creates a Watcher over dir. debounce bounds how long a file must be
// quiet before its change is processed.
func New(dir string, debounce time.Duration, handler Handler) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{
		watcher:     watcher,
		dir:         dir,
		handler:     handler,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		selfWrites:  make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Get(logging.CategoryWatch).Info("watching directory: %s", w.dir)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
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

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.Get(logging.CategoryWatch).Info("watcher stopped")
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats returns a snapshot of watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// MarkSelfWrite suppresses events for a path the generation pipeline is
// about to write, so generated output does not feed back into the loop.
func (w *Watcher) MarkSelfWrite(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	w.mu.Lock()
	w.selfWrites[abs] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	log := logging.Get(logging.CategoryWatch)
	for {
		select {
		case <-ctx.Done():
			log.Debug("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watch error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

// handleEvent records a single filesystem event for debounced processing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	kind := project.KindOf(event.Name)
	if kind != project.KindInterface && kind != project.KindTest {
		return
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		abs = event.Name
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if at, ok := w.selfWrites[abs]; ok && time.Since(at) < selfWriteWindow {
		w.stats.Suppressed++
		logging.Get(logging.CategoryWatch).Debug("suppressing self-write: %s", event.Name)
		return
	}

	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.debounceMap[abs] = time.Now()
}

// processDebouncedEvents dispatches events that have settled past the
// debounce window.
func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var toProcess []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			toProcess = append(toProcess, path)
			delete(w.debounceMap, path)
		}
	}
	for path, at := range w.selfWrites {
		if now.Sub(at) >= selfWriteWindow {
			delete(w.selfWrites, path)
		}
	}
	w.mu.Unlock()

	log := logging.Get(logging.CategoryWatch)
	for _, path := range toProcess {
		switch project.KindOf(path) {
		case project.KindInterface:
			log.Info("interface changed: %s", path)
			w.mu.Lock()
			w.stats.InterfaceEvents++
			w.mu.Unlock()
			if err := w.handler.InterfaceChanged(ctx, path); err != nil {
				log.Error("interface handler failed for %s: %v", path, err)
				w.mu.Lock()
				w.stats.Errors++
				w.mu.Unlock()
			}

		case project.KindTest:
			log.Info("tests changed: %s", path)
			w.mu.Lock()
			w.stats.TestEvents++
			w.mu.Unlock()
			if err := w.handler.TestsChanged(ctx, path); err != nil {
				log.Error("test handler failed for %s: %v", path, err)
				w.mu.Lock()
				w.stats.Errors++
				w.mu.Unlock()
			}
		}
	}
}
