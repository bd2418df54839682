package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultReloadDelay is how long the watcher waits for a rebuild's renames to settle.
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher reloads an index into a Handle when a rebuild replaces it on disk.
type Watcher struct {
	cfg    Config
	exp    Expectations
	handle *Handle
	logger *zap.Logger
	delay  time.Duration

	watcher *fsnotify.Watcher
	path    string
}

// NewWatcher watches the parent directory of cfg.Path.
func NewWatcher(cfg Config, exp Expectations, handle *Handle, logger *zap.Logger) (*Watcher, error) {
	if handle == nil {
		return nil, fmt.Errorf("%w: handle is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := fw.Add(parent); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, parent, err)
	}

	return &Watcher{
		cfg:     cfg,
		exp:     exp,
		handle:  handle,
		logger:  logger.Named("index-watcher"),
		delay:   DefaultReloadDelay,
		watcher: fw,
		path:    path,
	}, nil
}

// Run processes filesystem events until ctx is done. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.delay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	w.logger.Info("watching index for rebuilds", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// A rebuild renames twice in quick succession; reload once it settles.
			timer.Reset(w.delay)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("index watcher error", zap.Error(err))
		}
	}
}

// reload opens the index on disk and swaps it in when its build id changed.
// A failed reload leaves the current index serving.
func (w *Watcher) reload() {
	m, err := ReadManifest(w.path)
	if err != nil {
		// Mid-swap or removed; a later event retries.
		w.logger.Debug("index not readable yet", zap.Error(err))
		return
	}
	if cur := w.handle.Load(); cur != nil && cur.manifest.BuildID == m.BuildID {
		return
	}

	ix, err := Open(w.cfg, w.exp, w.logger)
	if err != nil {
		IndexReloadsTotal.WithLabelValues("error").Inc()
		w.logger.Error("index reload failed; keeping current index", zap.Error(err))
		return
	}

	prev := w.handle.Swap(ix)
	IndexReloadsTotal.WithLabelValues("success").Inc()

	fields := []zap.Field{zap.String("build_id", ix.manifest.BuildID), zap.Int("chunks", ix.Count())}
	if prev != nil {
		fields = append(fields, zap.String("previous_build_id", prev.manifest.BuildID))
	}
	w.logger.Info("index reloaded", fields...)
}
