package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"seqthink/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk.
// It watches the parent directory so editors that replace the file
// (write to temp + rename) are still seen.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	onChange    func(*Config)
	debounceDur time.Duration
	pending     bool
	lastEvent   time.Time
	reloads     int
	doneCh      chan struct{}
}

// NewWatcher creates a watcher for path. onChange receives each successfully
// loaded and validated config; invalid files are logged and skipped.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		watcher:     fw,
		path:        abs,
		onChange:    onChange,
		debounceDur: 200 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}, nil
}

// Run blocks until ctx is cancelled, reloading on debounced changes.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.doneCh)
	defer w.watcher.Close()

	log := logging.Get(logging.CategoryConfig)
	log.Info("Watching config file %s", w.path)

	ticker := time.NewTicker(w.debounceDur / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.lastEvent = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Config watcher error: %v", err)

		case <-ticker.C:
			w.mu.Lock()
			due := w.pending && time.Since(w.lastEvent) >= w.debounceDur
			if due {
				w.pending = false
			}
			w.mu.Unlock()
			if due {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	log := logging.Get(logging.CategoryConfig)

	cfg, err := Load(w.path)
	if err != nil {
		log.Warn("Ignoring config change: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warn("Ignoring invalid config change: %v", err)
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	log.Info("Config reloaded from %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Reloads returns how many times the config was applied.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}
