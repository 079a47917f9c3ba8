package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"drasimcp/pkg/logging"
)

// DriftWatcher monitors the configuration tree for changes after
// startup. The reaction reads configuration exactly once, so a change
// on disk only means the running process has drifted from it; the
// watcher logs a warning that a restart is required and changes
// nothing else.
type DriftWatcher struct {
	mu sync.Mutex

	// paths are the directories to watch (config dir, query dir).
	paths []string

	// fsWatcher is the fsnotify watcher (nil when inactive)
	fsWatcher *fsnotify.Watcher

	// stopCh signals the watcher to stop
	stopCh chan struct{}

	// running indicates if the watcher is active
	running bool

	// debounceTimer collapses bursts of file events into one warning
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	// lastEvent remembers the path that triggered the pending warning
	lastEvent string
}

// driftDebounceInterval is the quiet period after the last file change
// before the drift warning is logged.
const driftDebounceInterval = 500 * time.Millisecond

// NewDriftWatcher creates a watcher for the given directories.
// Non-existent paths are skipped at Start.
func NewDriftWatcher(paths ...string) *DriftWatcher {
	return &DriftWatcher{paths: paths}
}

// Start begins watching. Drift detection is best-effort: if fsnotify
// is unavailable or no path can be watched, Start logs and returns nil
// with the watcher inactive.
func (w *DriftWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("ConfigWatcher", "fsnotify not available, config drift detection disabled: %v", err)
		return nil
	}

	watched := 0
	for _, path := range w.paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := watcher.Add(path); err != nil {
			logging.Warn("ConfigWatcher", "Failed to watch %s: %v", path, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		logging.Debug("ConfigWatcher", "No configuration directories to watch")
		watcher.Close()
		return nil
	}

	w.fsWatcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	// Capture channels before releasing lock to avoid race conditions
	eventsCh := w.fsWatcher.Events
	errorsCh := w.fsWatcher.Errors

	go w.processEvents(eventsCh, errorsCh)

	logging.Info("ConfigWatcher", "Watching %d configuration directories for drift", watched)
	return nil
}

// processEvents handles fsnotify events.
// The channels are passed as parameters to avoid race conditions with Stop().
func (w *DriftWatcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *DriftWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	w.lastEvent = event.Name
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(driftDebounceInterval, func() {
		w.debounceMu.Lock()
		path := w.lastEvent
		w.debounceMu.Unlock()

		w.mu.Lock()
		running := w.running
		w.mu.Unlock()

		if running {
			logging.Warn("ConfigWatcher",
				"Configuration changed on disk (%s); the reaction reads configuration only at startup, restart to apply", path)
		}
	})
}

// Stop gracefully stops the watcher.
func (w *DriftWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("ConfigWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	logging.Debug("ConfigWatcher", "Stopped configuration drift watcher")
	return nil
}

// IsRunning returns whether the watcher is currently active.
func (w *DriftWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
