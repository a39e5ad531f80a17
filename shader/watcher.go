package shader

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watcher records files touched on disk so that the next change check
// recompiles their dependents even when modification times are unchanged.
type watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}

	mu    sync.Mutex
	dirs  map[string]bool
	dirty map[string]bool
}

func newWatcher() (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fs:    fw,
		done:  make(chan struct{}),
		dirs:  make(map[string]bool),
		dirty: make(map[string]bool),
	}
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				w.mu.Lock()
				w.dirty[filepath.Clean(ev.Name)] = true
				w.mu.Unlock()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slogger().Warn("shader watcher error", "err", err)
		}
	}
}

// watch adds the directories of files. Editors often replace files, so
// directories are watched rather than the files themselves.
func (w *watcher) watch(files []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range files {
		dir := filepath.Dir(f)
		if w.dirs[dir] {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			slogger().Warn("shader watcher: cannot watch directory", "dir", dir, "err", err)
			continue
		}
		w.dirs[dir] = true
	}
}

// take returns and clears the set of dirty paths.
func (w *watcher) take() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := w.dirty
	w.dirty = make(map[string]bool)
	return d
}

func (w *watcher) close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
