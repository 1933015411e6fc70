package local

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	fslog "github.com/multistore/multistore/fs/log"
	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/storepath"
)

// fsWatch is one active watch session, grounded on the teacher's
// backend/local changenotify_other.go goroutine shape, adapted to fire
// per-event (the spec has no polling-interval concept to accumulate
// against) and to tolerate BaseDir not existing yet.
type fsWatch struct {
	baseDir string
	cb      store.WatchFunc
	matcher interface{ Match(string) bool }

	watcher *fsnotify.Watcher
	done    chan struct{}
	closeMu sync.Once
}

// Watch starts a recursive filesystem watch rooted at BaseDir. The initial
// directory walk that establishes per-subdirectory watches never emits
// events for the pre-existing tree ("initial snapshot events are
// suppressed") — only changes observed after the watch is live are
// reported. If BaseDir does not yet exist, the watch is scheduled to start
// once it appears.
func (f *Fs) Watch(cb store.WatchFunc) (store.Unwatch, error) {
	w := &fsWatch{
		baseDir: f.opt.BaseDir,
		cb:      cb,
		matcher: f.matcher,
		done:    make(chan struct{}),
	}

	f.watchMu.Lock()
	f.watchers = append(f.watchers, w)
	f.watchMu.Unlock()

	go w.run()

	return func() { w.close() }, nil
}

func (w *fsWatch) run() {
	for {
		if _, err := os.Stat(w.baseDir); err == nil {
			break
		}
		select {
		case <-w.done:
			return
		case <-time.After(500 * time.Millisecond):
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fslog.Errorf(nil, "local: failed to create watcher: %v", err)
		return
	}
	w.watcher = watcher
	defer watcher.Close()

	_ = filepath.WalkDir(w.baseDir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d == nil || !d.IsDir() {
			return nil
		}
		if err := watcher.Add(p); err != nil {
			fslog.Errorf(nil, "local: failed to watch %s: %v", p, err)
		}
		return nil
	})

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handle(event, watcher)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fslog.Errorf(nil, "local: watch error: %v", err)
		}
	}
}

func (w *fsWatch) handle(event fsnotify.Event, watcher *fsnotify.Watcher) {
	// The temp siblings writeAtomic creates and renames are not keys.
	if name := filepath.Base(event.Name); strings.HasPrefix(name, ".multistore-") && strings.HasSuffix(name, ".tmp") {
		return
	}
	rel, err := filepath.Rel(w.baseDir, event.Name)
	if err != nil {
		return
	}
	slashRel := strings.ReplaceAll(filepath.ToSlash(rel), `\`, "/")
	if w.matcher.Match(slashRel) {
		return
	}
	key := storepath.FromSlashes(slashRel)
	if storepath.IsMeta(key) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			_ = watcher.Add(event.Name)
			return
		}
		w.cb(store.EventUpdate, key)
	case event.Has(fsnotify.Write):
		w.cb(store.EventUpdate, key)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cb(store.EventRemove, key)
	}
}

func (w *fsWatch) close() {
	w.closeMu.Do(func() {
		close(w.done)
	})
}
