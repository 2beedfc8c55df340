package oracle

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"polytrope/internal/logging"
)

// TableWatcher watches a steam-table CSV for changes and hot-reloads the
// Table. Editors save in bursts, so reloads are debounced.
type TableWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	table       *Table
	path        string
	debounceDue time.Time
	pending     bool
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats TableWatcherStats
}

// TableWatcherStats tracks watcher activity for debugging.
type TableWatcherStats struct {
	Events        int
	Reloads       int
	ReloadErrors  int
	LastEventTime time.Time
	LastEventPath string
}

// NewTableWatcher creates a watcher for the table's backing file. The table
// must have been loaded from a file.
func NewTableWatcher(table *Table) (*TableWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &TableWatcher{
		watcher:     watcher,
		table:       table,
		path:        table.path,
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watcher runs in a goroutine until
// Stop or context cancellation.
func (tw *TableWatcher) Start(ctx context.Context) error {
	tw.mu.Lock()
	if tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.running = true
	tw.mu.Unlock()

	// Watch the directory: editors replace files on save, which drops the
	// watch when the file itself is watched.
	if err := tw.watcher.Add(filepath.Dir(tw.path)); err != nil {
		return err
	}
	logging.Oracle("TableWatcher: watching %s", tw.path)

	go tw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (tw *TableWatcher) Stop() {
	tw.mu.Lock()
	if !tw.running {
		tw.mu.Unlock()
		return
	}
	tw.running = false
	tw.mu.Unlock()

	close(tw.stopCh)
	<-tw.doneCh

	if err := tw.watcher.Close(); err != nil {
		logging.OracleError("TableWatcher: error closing watcher: %v", err)
	}
	logging.Oracle("TableWatcher: stopped")
}

// Stats returns a copy of the watcher statistics.
func (tw *TableWatcher) Stats() TableWatcherStats {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.stats
}

func (tw *TableWatcher) run(ctx context.Context) {
	defer close(tw.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tw.stopCh:
			return

		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			tw.handleEvent(event)

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			logging.OracleError("TableWatcher error: %v", err)

		case <-ticker.C:
			tw.maybeReload()
		}
	}
}

func (tw *TableWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(tw.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	logging.OracleDebug("TableWatcher: %s changed (%s)", event.Name, event.Op)

	tw.mu.Lock()
	tw.stats.Events++
	tw.stats.LastEventTime = time.Now()
	tw.stats.LastEventPath = event.Name
	tw.pending = true
	tw.debounceDue = time.Now().Add(tw.debounceDur)
	tw.mu.Unlock()
}

func (tw *TableWatcher) maybeReload() {
	tw.mu.Lock()
	due := tw.pending && time.Now().After(tw.debounceDue)
	if due {
		tw.pending = false
	}
	tw.mu.Unlock()
	if !due {
		return
	}

	if err := tw.table.Reload(); err != nil {
		logging.OracleError("TableWatcher: reload failed: %v", err)
		tw.mu.Lock()
		tw.stats.ReloadErrors++
		tw.mu.Unlock()
		return
	}
	tw.mu.Lock()
	tw.stats.Reloads++
	tw.mu.Unlock()
}
