package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce collapses the burst of events produced by one Save.
const DefaultDebounce = 250 * time.Millisecond

// Watcher calls a reload function whenever a new index is published to a
// directory, either by Save (which renames a fresh directory into place)
// or by a manifest rewritten in place.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	reload   func(context.Context) error
	logger   *logging.Logger
	debounce time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	reloads  chan struct{}
}

// NewWatcher watches dir. reload runs on its own goroutine, never concurrently
// with itself.
func NewWatcher(dir string, reload func(context.Context) error, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		dir:      filepath.Clean(dir),
		watcher:  fw,
		reload:   reload,
		logger:   logger.Named("index.watcher"),
		debounce: DefaultDebounce,
		stop:     make(chan struct{}),
		reloads:  make(chan struct{}, 16),
	}, nil
}

// Reloads signals after each completed reload attempt. Intended for tests.
func (w *Watcher) Reloads() <-chan struct{} {
	return w.reloads
}

// Start begins watching. Call Stop to release resources.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.dir)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.dir), err)
	}
	// Best effort: the index directory may not exist yet.
	_ = w.watcher.Add(w.dir)

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if filepath.Clean(event.Name) == w.dir && event.Op.Has(fsnotify.Create) {
				_ = w.watcher.Add(w.dir)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.reload(ctx); err != nil {
				w.logger.Warn(ctx, "index reload failed", zap.Error(err))
			} else {
				w.logger.Info(ctx, "index reloaded", zap.String("dir", w.dir))
			}
			select {
			case w.reloads <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "index watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	name := filepath.Clean(event.Name)
	switch {
	case name == w.dir:
		return event.Op.Has(fsnotify.Create)
	case name == filepath.Join(w.dir, ManifestFile):
		return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)
	default:
		return false
	}
}
