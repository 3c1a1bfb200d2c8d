package macros

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sambeau/roll/pkg/roll/roll"
)

// Debounce is how long the watcher waits for writes to settle before it
// reloads.
const Debounce = 100 * time.Millisecond

// LoadFunc builds the complete macro table
type LoadFunc func() (roll.Macros, error)

// Watcher reloads a Set when one of its macro files changes
type Watcher struct {
	watcher *fsnotify.Watcher
	set     *Set
	load    LoadFunc
	files   map[string]bool
	stdout  io.Writer
	stderr  io.Writer

	mu      sync.Mutex
	timer   *time.Timer
	reloads uint64
}

// NewWatcher creates a watcher for files. load is called on every change
// and its result replaces the contents of set.
func NewWatcher(set *Set, files []string, load LoadFunc, stdout, stderr io.Writer) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		watcher: fsWatcher,
		set:     set,
		load:    load,
		files:   make(map[string]bool),
		stdout:  stdout,
		stderr:  stderr,
	}

	for _, file := range files {
		w.files[absPath(file)] = true
	}

	return w, nil
}

// Start watches the directories holding the macro files. Editors often
// replace a file instead of writing it, so the directory is watched rather
// than the file.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := make(map[string]bool)
	for file := range w.files {
		dirs[filepath.Dir(file)] = true
	}

	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.logInfo("watching macros: %s", dir)
	}

	go w.eventLoop(ctx)

	return nil
}

// eventLoop processes file system events
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.files[absPath(event.Name)] {
				continue
			}

			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logError("watcher error: %v", err)
		}
	}
}

// schedule reloads once no event has arrived for Debounce
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(Debounce, func() {
		w.logInfo("macros changed: %s", path)
		if err := w.Reload(); err != nil {
			w.logError("reload failed, keeping previous macros: %v", err)
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Reload loads the macros now. On error the set is left unchanged.
func (w *Watcher) Reload() error {
	macros, err := w.load()
	if err != nil {
		return err
	}

	w.set.Replace(macros)

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.logInfo("loaded %d macros", len(macros))
	return nil
}

// Reloads returns how many successful reloads have happened
func (w *Watcher) Reloads() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops the watcher
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}

func (w *Watcher) logInfo(format string, args ...any) {
	fmt.Fprintf(w.stdout, "[WATCH] "+format+"\n", args...)
}

func (w *Watcher) logError(format string, args ...any) {
	fmt.Fprintf(w.stderr, "[WATCH ERROR] "+format+"\n", args...)
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(path)
}
