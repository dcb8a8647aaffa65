package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ChangeFunc is called with the diff against the previous config and the
// config now in effect.
type ChangeFunc func(d ConfigDiff, cfg *Config)

type snapshot struct {
	cfg   *Config
	mtime time.Time
}

// Watcher polls a config file. A changed mtime triggers a reload; the
// callback fires only when the reloaded config differs semantically, so a
// touch or a comment edit is silent. A file that fails to load or validate is
// logged and the previous config stays in effect.
type Watcher struct {
	path     string
	every    time.Duration
	onChange ChangeFunc
	log      *slog.Logger

	mu  sync.Mutex
	cur snapshot

	cancel context.CancelFunc
	exited chan struct{}
}

type WatcherOption func(*Watcher)

// WithInterval sets the poll period (default 5s). Non-positive values are
// ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.every = d
		}
	}
}

// WithLogger replaces slog.Default for reload messages.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path once, failing if that load fails, then polls in the
// background until Stop. onChange may be nil.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, every: 5 * time.Second, onChange: onChange, log: slog.Default(), exited: make(chan struct{})}
	for _, o := range opts {
		o(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.cur = snap

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur.cfg
}

// Stop blocks until the poll loop has exited. Repeated calls return at once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.exited
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.exited)
	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config reload: stat failed", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	seen := info.ModTime().Equal(w.cur.mtime)
	w.mu.Unlock()
	if seen {
		return
	}

	next, err := w.read()
	if err != nil {
		w.log.Warn("config reload: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	d := Diff(w.cur.cfg, next.cfg)
	if d.Empty() {
		w.cur.mtime = next.mtime
		w.mu.Unlock()
		return
	}
	w.cur = next
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"enrichment_changed", d.EnrichmentChanged,
		"restart_required", d.RestartRequired)
	if w.onChange != nil {
		w.onChange(d, next.cfg)
	}
}

// read stats before loading so a write racing the load is picked up by the
// next poll. ${VAR} references are expanded again on every read.
func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := Load(w.path)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, mtime: info.ModTime()}, nil
}
