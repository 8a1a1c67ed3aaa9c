package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches a config file and delivers every reload that passes
// Validate. The parent directory is watched so files replaced by rename keep
// being followed.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	changes  chan *Config
	errs     chan error
	logger   logger.ILogger

	mu   sync.Mutex
	last *Config
}

// WatcherOption configures a ConfigWatcher.
type WatcherOption func(*ConfigWatcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *ConfigWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(path string, log logger.ILogger, opts ...WatcherOption) *ConfigWatcher {
	w := &ConfigWatcher{
		path:     filepath.Clean(path),
		debounce: 100 * time.Millisecond,
		changes:  make(chan *Config, 1),
		errs:     make(chan error, 1),
		logger:   log.SubLogger("ConfigWatcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Changes delivers validated configs. Only the newest pending config is kept.
func (w *ConfigWatcher) Changes() <-chan *Config {
	return w.changes
}

// Errors delivers load, validation and watch errors.
func (w *ConfigWatcher) Errors() <-chan error {
	return w.errs
}

// Start begins watching until ctx is done. The file must exist.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	if _, err := Load(w.path); err != nil {
		return fmt.Errorf("loading %s: %w", w.path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	w.logger.Debugf("started watching config file: %s", w.path)
	go w.run(ctx, fsw)
	return nil
}

func (w *ConfigWatcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()

	settle := time.NewTimer(w.debounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("config watcher stopped")
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debugf("config file change detected: op=%s", event.Op)
			settle.Reset(w.debounce)

		case <-settle.C:
			w.reload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("fsnotify error: %v", err)
			w.report(err)
		}
	}
}

// relevant reports whether event touches the watched file in a way that can
// change its content.
func (w *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// reload loads and validates the file. An invalid file is reported and the
// running config kept.
func (w *ConfigWatcher) reload() {
	cfg, err := Load(w.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.logger.Errorf("failed to reload config: %v", err)
		w.report(err)
		return
	}

	w.mu.Lock()
	w.last = cfg
	w.mu.Unlock()

	w.logger.Infof("config reloaded: path=%s", w.path)

	// Replace a pending config nobody has read yet
	select {
	case <-w.changes:
		w.logger.Debug("superseding unread config")
	default:
	}
	w.changes <- cfg
}

func (w *ConfigWatcher) report(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// LastConfig returns the last config delivered on Changes.
func (w *ConfigWatcher) LastConfig() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
