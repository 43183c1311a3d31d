package compiler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
)

// watcher turns file system events below a set of directories into
// debounced recompile triggers.
type watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	include  []string
	exclude  []string
	debounce time.Duration

	// trigger has capacity one: any number of changes while a compile is
	// running collapse into a single follow-up.
	trigger chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
	closeCh chan struct{}
	done    chan struct{}
}

func newWatcher(ctx context.Context, root string, dirs, include, exclude []string, debounce time.Duration) (*watcher, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid watch pattern %q", p)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &watcher{
		fsw:      fsw,
		root:     root,
		include:  include,
		exclude:  exclude,
		debounce: debounce,
		trigger:  make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, dir := range dirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		if err := w.addRecursive(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	logger.Debug(ctx, "Watching for changes", tag.Dir(root), tag.Count(len(fsw.WatchList())))

	go w.loop(ctx)
	return w, nil
}

func (w *watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories may vanish between the event and the walk.
			if errors.Is(err, fs.ErrNotExist) && path != dir {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.excluded(path, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *watcher) excluded(path string, isDir bool) bool {
	rel := w.rel(path)
	for _, p := range w.exclude {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
		// "dir/**" should prune the directory itself.
		if isDir && doublestar.MatchUnvalidated(p, rel+"/_") {
			return true
		}
	}
	return false
}

func (w *watcher) relevant(path string) bool {
	if w.excluded(path, false) {
		return false
	}
	if len(w.include) == 0 {
		return true
	}
	rel := w.rel(path)
	for _, p := range w.include {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}

func (w *watcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "File watcher error", tag.Error(err))
		}
	}
}

func (w *watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.excluded(ev.Name, true) {
				return
			}
			if err := w.addRecursive(ev.Name); err != nil {
				logger.Warn(ctx, "Failed to watch new directory", tag.Dir(ev.Name), tag.Error(err))
			}
			// Files may have landed before the watch was added.
			w.schedule()
			return
		}
	}

	if !w.relevant(ev.Name) {
		return
	}
	logger.Debug(ctx, "File changed", tag.File(w.rel(ev.Name)), tag.String("op", ev.Op.String()))
	w.schedule()
}

func (w *watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.fire)
		return
	}
	w.timer.Reset(w.debounce)
}

func (w *watcher) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *watcher) close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.done
	return err
}
