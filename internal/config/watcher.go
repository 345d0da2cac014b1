package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Store when its file changes on disk, e.g. when the
// tray app or an editor rewrites config.json while the REPL is running.
type Watcher struct {
	store    *Store
	logger   *slog.Logger
	onChange func(Config)
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewWatcher prepares a watcher; call Start to begin.
func NewWatcher(store *Store, logger *slog.Logger, onChange func(Config)) *Watcher {
	return &Watcher{
		store:    store,
		logger:   logger.With("component", "config"),
		onChange: onChange,
		debounce: 250 * time.Millisecond,
	}
}

// Start watches the config directory (editors often replace the file by
// rename, which a watch on the file itself would miss).
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.store.Dir()); err != nil {
		_ = fw.Close()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	w.watcher = fw
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, fw, w.done)
	return nil
}

// Stop ends the watch loop and waits for it.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw, cancel, done := w.watcher, w.cancel, w.done
	w.watcher, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()
	if fw == nil {
		return
	}
	cancel()
	<-done
	_ = fw.Close()
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	target := filepath.Base(w.store.Path())
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		case <-fire:
			fire = nil
			changed, err := w.store.Reload()
			if err != nil {
				w.logger.Warn("config reload failed, keeping previous values", "error", err)
				continue
			}
			if changed {
				w.logger.Info("config reloaded", "path", w.store.Path())
				if w.onChange != nil {
					w.onChange(w.store.Snapshot())
				}
			}
		}
	}
}
