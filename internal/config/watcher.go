package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 1500 * time.Millisecond

// Watcher reloads a config file when it changes on disk and hands the
// freshly loaded value to its handlers. The parent directory is watched so
// editors that save through a rename keep triggering reloads. A save that
// leaves the loaded value unchanged is not reported, and a file that fails
// to load leaves the previous value in place.
type Watcher[T any] struct {
	path     string
	load     func(path string) (T, error)
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	handlers []func(T)
	current  T
	loaded   bool

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets how long the file must stay quiet before it is
// reloaded. Default is 1500ms.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// NewConfigWatcher creates a watcher for path. load is called on every
// reload, e.g. ReadLoggingConfig.
func NewConfigWatcher[T any](path string, load func(path string) (T, error), logger *slog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		load:     load,
		logger:   logger,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers a handler for changed values. Handlers run on the
// watcher goroutine in registration order.
func (w *Watcher[T]) OnReload(handler func(T)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start loads the current file as the baseline and begins watching.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if cfg, err := w.load(w.path); err == nil {
		w.mu.Lock()
		w.current, w.loaded = cfg, true
		w.mu.Unlock()
	} else {
		w.logger.Warn("Config file not loadable yet, waiting for changes", "path", w.path, "error", err)
	}

	w.fsw = fsw
	go w.run(fsw)
	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *Watcher[T]) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			err = w.fsw.Close()
		}
	})
	return err
}

func (w *Watcher[T]) run(fsw *fsnotify.Watcher) {
	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-w.done:
			w.logger.Debug("Config watcher stopped")
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.touches(ev) {
				w.logger.Debug("Config file change detected", "op", ev.Op.String())
				quiet.Reset(w.debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		case <-quiet.C:
			w.reload()
		}
	}
}

// touches reports whether ev may have changed the file's content. Write is
// an in-place save; Create and Rename come from atomic replaces.
func (w *Watcher[T]) touches(ev fsnotify.Event) bool {
	return filepath.Clean(ev.Name) == w.path &&
		ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher[T]) reload() {
	cfg, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous settings", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	if w.loaded && reflect.DeepEqual(w.current, cfg) {
		w.mu.Unlock()
		w.logger.Debug("Config file saved without changes", "path", w.path)
		return
	}
	w.current, w.loaded = cfg, true
	handlers := slices.Clone(w.handlers)
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path)
	for _, h := range handlers {
		h(cfg)
	}
}
