package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/logging"
)

const (
	DefaultDebounce = 200 * time.Millisecond
	DefaultGrace    = time.Second
)

// Config describes which descriptor file to follow and where reloads go
type Config struct {
	Path     string
	Debounce time.Duration

	// OnChange receives every successfully reloaded set that differs from the current one
	OnChange func(*descriptor.Set)

	// OnError receives reload failures; the current set stays in effect
	OnError func(error)
}

// Watcher reloads a descriptor file when it changes on disk. The directory is
// watched rather than the file so editors that replace the file by rename
// are followed.
type Watcher struct {
	config Config
	logger logging.Logger

	mu      sync.Mutex
	current *descriptor.Set

	// reloadMutex serializes reloads with Stop; stopped is set under it
	reloadMutex sync.Mutex
	debouncer   *time.Timer
	stopped     bool

	sctx    *stopper.Context
	watcher *fsnotify.Watcher
}

// New loads the descriptor file once. A file that does not load is an error,
// there is no previous set to fall back to.
func New(config Config, logger logging.Logger) (*Watcher, error) {
	if config.Path == "" {
		return nil, errors.NewValidationError("descriptor path is required", nil)
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	set, err := descriptor.LoadFile(config.Path)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		config:  config,
		logger:  logger,
		current: set,
	}, nil
}

// Current returns the last set that loaded successfully
func (w *Watcher) Current() *descriptor.Set {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins watching. It returns once the watch is registered.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sctx != nil {
		return errors.NewValidationError("watcher already started", nil)
	}

	dir := filepath.Dir(w.config.Path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewIOError("failed to create file watcher", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return errors.NewIOError("failed to watch descriptor directory", err).WithContext("path", dir)
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
	})

	w.sctx = sctx
	w.watcher = watcher

	w.logger.Infof("Watching descriptor file, path: %s", w.config.Path)

	sctx.Go(w.loop)
	return nil
}

// Stop ends the watch, waiting up to grace for the loop to finish. A reload
// in flight completes first; OnChange is never called after Stop returns.
func (w *Watcher) Stop(grace time.Duration) error {
	w.mu.Lock()
	sctx := w.sctx
	w.mu.Unlock()

	if sctx == nil {
		return nil
	}
	if grace <= 0 {
		grace = DefaultGrace
	}

	sctx.Stop(grace)
	err := sctx.Wait()

	w.reloadMutex.Lock()
	w.stopped = true
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	w.reloadMutex.Unlock()
	return err
}

func (w *Watcher) loop(sctx *stopper.Context) error {
	sctx.Defer(func() {
		w.reloadMutex.Lock()
		if w.debouncer != nil {
			w.debouncer.Stop()
		}
		w.reloadMutex.Unlock()
	})

	base := filepath.Base(w.config.Path)
	for !sctx.IsStopping() {
		select {
		case <-sctx.Stopping():
			return nil

		case <-sctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base || event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debugf("Descriptor file event, path: %s, op: %s", event.Name, event.Op)
			w.schedule(sctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil && !sctx.IsStopping() {
				w.fail(errors.NewIOError("file watcher failed", err).WithContext("path", w.config.Path))
			}
		}
	}
	return nil
}

func (w *Watcher) schedule(sctx *stopper.Context) {
	w.reloadMutex.Lock()
	defer w.reloadMutex.Unlock()

	if w.stopped {
		return
	}
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	w.debouncer = time.AfterFunc(w.config.Debounce, func() {
		w.reloadMutex.Lock()
		defer w.reloadMutex.Unlock()
		if w.stopped || sctx.IsStopping() {
			return
		}
		w.reload()
	})
}

// reload replaces the current set only when the new file loads completely.
// Callers hold reloadMutex.
func (w *Watcher) reload() {
	set, err := descriptor.LoadFile(w.config.Path)
	if err != nil {
		w.logger.Warnf("Descriptor reload failed, keeping previous set, path: %s, error: %v", w.config.Path, err)
		w.fail(err)
		return
	}

	w.mu.Lock()
	unchanged := set.Equivalent(w.current)
	if !unchanged {
		w.current = set
	}
	w.mu.Unlock()

	if unchanged {
		w.logger.Debugf("Descriptor file unchanged, path: %s", w.config.Path)
		return
	}

	w.logger.Infof("Descriptor reloaded, path: %s, processes: %d", w.config.Path, set.Len())
	if w.config.OnChange != nil {
		w.config.OnChange(set)
	}
}

func (w *Watcher) fail(err error) {
	if w.config.OnError != nil {
		w.config.OnError(err)
	}
}
