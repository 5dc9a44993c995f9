package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/conjunction/internal/adapters/mq/queue"
	"github.com/okian/conjunction/pkg/logger"
)

const (
	defaultDebounce = 250 * time.Millisecond
	// WatchReason labels refresh requests raised by file changes.
	WatchReason = "watch"
)

// Submitter accepts refresh requests.
type Submitter interface {
	Submit(ctx context.Context, r queue.Request) error
}

// Watcher submits a refresh request whenever the report file changes.
// The parent directory is watched so that editors replacing the file by
// rename are still seen.
type Watcher struct {
	path     string
	queue    Submitter
	debounce time.Duration
	logger   logger.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a Watcher for path.
func NewWatcher(path string, q Submitter, opts ...WatcherOption) *Watcher {
	w := &Watcher{path: filepath.Clean(path), queue: q, debounce: defaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("source.watch")
	}
	return w
}

// Start begins watching and returns once the watch is registered. The
// watch ends when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				w.stopTimer()
				return
			case evt, ok := <-fw.Events:
				if !ok {
					return
				}
				if w.relevant(evt) {
					w.schedule(ctx)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Error(ctx, "watcher error", logger.Error(err))
			}
		}
	}()
	w.logger.Info(ctx, "watching report file", logger.String("path", w.path))
	return nil
}

func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != w.path {
		return false
	}
	return evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.submit(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) submit(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	req := queue.NewRequest(WatchReason)
	if err := w.queue.Submit(ctx, req); err != nil {
		w.logger.Warn(ctx, "refresh request dropped", logger.String("request_id", req.ID), logger.Error(err))
		return
	}
	w.logger.Debug(ctx, "refresh requested", logger.String("request_id", req.ID), logger.String("path", w.path))
}
