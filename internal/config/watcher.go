package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/metrics"
)

// DefaultDebounce coalesces the burst of filesystem events an editor
// emits on save into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk. A
// reload that fails to parse or validate is logged and discarded; the
// previous configuration stays in effect.
type Watcher struct {
	path     string
	onReload func(*Config)
	debounce time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewWatcher creates a watcher for the given config file. onReload is
// called with each successfully loaded configuration.
func NewWatcher(path string, onReload func(*Config), logger zerolog.Logger) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("config watcher requires a reload callback")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	return &Watcher{
		path:     absPath,
		onReload: onReload,
		debounce: DefaultDebounce,
		log:      logger.With().Str("component", "config").Logger(),
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Run watches until the context is cancelled or Stop is called. It
// watches the parent directory rather than the file itself so that
// editors that replace the file on save keep being tracked.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}
	w.log.Info().Str("path", w.path).Msg("watching config file")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		case <-timer.C:
			w.reload()
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("error").Inc()
		w.log.Warn().Err(err).Msg("config reload failed, keeping previous configuration")
		return
	}
	metrics.ConfigReloadsTotal.WithLabelValues("ok").Inc()
	w.log.Info().Str("path", w.path).Msg("configuration reloaded")
	w.onReload(cfg)
}
