// Package watch delivers debounced file-change batches from the
// repository tree: events coalesce in a 500 ms leading-edge window per
// file and arrive batched over a bounded queue, which the indexer
// drains under the writer lock: message-passing instead of shared
// mutation from multiple producers.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op classifies one coalesced change.
type Op string

const (
	OpModify Op = "modify"
	OpRemove Op = "remove"
)

// Event is one coalesced per-file change.
type Event struct {
	Path string // repo-relative
	Op   Op
}

// Watcher watches a repository tree recursively and emits batches of
// coalesced events. All channel state is owned by the run goroutine;
// Close waits for it to finish before returning.
type Watcher struct {
	root     string
	debounce time.Duration
	accept   func(rel string) bool

	fs      *fsnotify.Watcher
	batches chan []Event

	done     chan struct{}
	finished chan struct{}
}

// New starts watching root (and all subdirectories accept allows).
// debounce ≤ 0 falls back to the 500 ms default.
func New(root string, debounce time.Duration, accept func(rel string) bool) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if accept == nil {
		accept = func(string) bool { return true }
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		debounce: debounce,
		accept:   accept,
		fs:       fsw,
		batches:  make(chan []Event, 16),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	if err := w.addDirs(root); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

// Batches is the bounded queue of coalesced event batches. It closes
// when the watcher shuts down.
func (w *Watcher) Batches() <-chan []Event { return w.batches }

// Close stops the watcher, waits for the run goroutine to exit, and
// closes the batch channel.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	<-w.finished
	return err
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && !w.accept(rel+"/") {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// run owns the pending map, the debounce timer, and the batch channel.
func (w *Watcher) run() {
	defer close(w.finished)
	defer close(w.batches)

	pending := make(map[string]Op)
	var flushAt <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			flushAt = nil
			return
		}
		batch := make([]Event, 0, len(pending))
		for path, op := range pending {
			batch = append(batch, Event{Path: path, Op: op})
		}
		pending = make(map[string]Op)
		flushAt = nil
		select {
		case w.batches <- batch:
		case <-w.done:
		}
	}

	for {
		select {
		case <-w.done:
			return
		case <-flushAt:
			flush()
		case ev, ok := <-w.fs.Events:
			if !ok {
				flush()
				return
			}
			if rel, op, accepted := w.coalesce(ev); accepted {
				// Leading edge: the first event opens the flush
				// window; later events within it just coalesce.
				if prior, seen := pending[rel]; !seen || prior != OpRemove {
					pending[rel] = op
				}
				if flushAt == nil {
					flushAt = time.After(w.debounce)
				}
			}
		case _, ok := <-w.fs.Errors:
			if !ok {
				flush()
				return
			}
		}
	}
}

func (w *Watcher) coalesce(ev fsnotify.Event) (rel string, op Op, accepted bool) {
	r, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return "", "", false
	}
	rel = filepath.ToSlash(r)

	// New directories need watches of their own.
	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			_ = w.addDirs(ev.Name)
			return "", "", false
		}
	}
	if !w.accept(rel) {
		return "", "", false
	}
	op = OpModify
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		op = OpRemove
	}
	return rel, op, true
}
