// Package watcher reports changes to configured files on disk.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey            = "watcher"
	_configKeyWatchPath = "daemon.watchPaths"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ChangeFunc is called with the absolute path of a changed file.
type ChangeFunc func(ctx context.Context, path string)

// Watcher notifies subscribers when a watched path is written or created.
type Watcher interface {
	Subscribe(fn ChangeFunc)
}

// Params are inbound parameters to initialize a new Watcher.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
}

type watcher struct {
	logger *zap.SugaredLogger
	stats  tally.Scope

	paths []string
	// Individual files are watched through their parent directory, so editors that replace files on save are still seen.
	files map[string]struct{}
	dirs  map[string]struct{}

	mu          sync.RWMutex
	subscribers []ChangeFunc

	fsWatcher *fsnotify.Watcher
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Watcher for the paths under daemon.watchPaths.
func New(p Params) (Watcher, error) {
	w := &watcher{
		logger: p.Logger.With("plugin", _nameKey),
		stats:  p.Stats.SubScope(_nameKey),
		files:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
	}

	if v := p.Config.Get(_configKeyWatchPath); v.HasValue() {
		if err := v.Populate(&w.paths); err != nil {
			return nil, fmt.Errorf("getting config field %q: %w", _configKeyWatchPath, err)
		}
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: w.OnStart,
		OnStop:  w.OnStop,
	})
	return w, nil
}

func (w *watcher) Subscribe(fn ChangeFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// OnStart begins watching. Nothing is started when no paths are configured.
func (w *watcher) OnStart(ctx context.Context) error {
	if len(w.paths) == 0 {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file system watcher: %w", err)
	}

	for _, p := range w.paths {
		if err := w.add(fsWatcher, p); err != nil {
			fsWatcher.Close()
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	w.fsWatcher = fsWatcher
	w.cancel = cancel
	w.wg.Add(1)
	go w.watch(loopCtx)
	return nil
}

// OnStop stops watching and waits for running callbacks.
func (w *watcher) OnStop(ctx context.Context) error {
	if w.fsWatcher == nil {
		return nil
	}
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *watcher) add(fsWatcher *fsnotify.Watcher, p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("resolving watch path %q: %w", p, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch path %q: %w", p, err)
	}

	dir := abs
	if info.IsDir() {
		w.dirs[abs] = struct{}{}
	} else {
		w.files[abs] = struct{}{}
		dir = filepath.Dir(abs)
	}

	if err := fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	w.logger.Infow("watching for changes", "path", abs)
	return nil
}

func (w *watcher) watch(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.consume(ctx, event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("file watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (w *watcher) consume(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !w.matches(event.Name) {
		return
	}

	w.stats.Counter("changes").Inc(1)
	w.logger.Infow("watched file changed", "path", event.Name, "op", event.Op.String())

	w.mu.RLock()
	subscribers := append([]ChangeFunc(nil), w.subscribers...)
	w.mu.RUnlock()

	for _, fn := range subscribers {
		fn(ctx, event.Name)
	}
}

func (w *watcher) matches(name string) bool {
	if _, ok := w.files[name]; ok {
		return true
	}
	_, ok := w.dirs[filepath.Dir(name)]
	return ok
}
