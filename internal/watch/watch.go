// Package watch reloads an instrument when one of the files it was built
// from changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc rebuilds the instrument and returns the files it now depends on.
type ReloadFunc func() ([]string, error)

// Watcher coalesces change events on a set of files into reload calls.
// Directories are watched rather than the files themselves so that editors
// that save by rename are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	reload   ReloadFunc
	log      *slog.Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

func New(files []string, debounce time.Duration, reload ReloadFunc, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := &Watcher{
		fs:       fs,
		debounce: debounce,
		reload:   reload,
		log:      log,
		dirs:     make(map[string]bool),
	}
	if err := w.track(files); err != nil {
		fs.Close()
		return nil, err
	}
	return w, nil
}

// Files returns the watched files, as absolute paths.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

func (w *Watcher) track(files []string) error {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		set[abs] = true
		dir := filepath.Dir(abs)
		w.mu.Lock()
		known := w.dirs[dir]
		w.mu.Unlock()
		if known {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.mu.Lock()
		w.dirs[dir] = true
		w.mu.Unlock()
	}
	w.mu.Lock()
	w.files = set
	w.mu.Unlock()
	return nil
}

func (w *Watcher) watched(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// Run delivers reloads until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !w.watched(event.Name) {
				continue
			}
			w.log.Debug("instrument file changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", "error", err)
		case <-timer.C:
			files, err := w.reload()
			if err != nil {
				w.log.Warn("reload failed, keeping previous instrument", "error", err)
				continue
			}
			if err := w.track(files); err != nil {
				w.log.Warn("could not watch reloaded files", "error", err)
			}
		}
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}
