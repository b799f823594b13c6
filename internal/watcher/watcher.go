package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"comfypilot/internal/logging"
)

// Watcher monitors a directory tree and reports debounced batches of changes.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	root       string
	debounce   time.Duration
	maxWatches int
	onChange   ChangeHandler
	pending    map[string]Operation
	lastEvent  time.Time
	mu         sync.Mutex
	done       chan struct{}
	running    bool
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// New creates a watcher for root. Nothing is watched until Start.
func New(root string, cfg Config) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.MaxWatches <= 0 {
		cfg.MaxWatches = DefaultConfig().MaxWatches
	}
	return &Watcher{
		fsWatcher:  fsWatcher,
		root:       root,
		debounce:   cfg.Debounce,
		maxWatches: cfg.MaxWatches,
		pending:    make(map[string]Operation),
		done:       make(chan struct{}),
	}, nil
}

// SetHandler sets the callback for change batches.
func (w *Watcher) SetHandler(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = handler
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectories(); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processDebounce()
	return nil
}

// Stop stops watching and waits for the event loops to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	if wasRunning {
		w.wg.Wait()
	}
	return err
}

func (w *Watcher) addDirectories() error {
	count := 0
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if count >= w.maxWatches {
			return filepath.SkipDir
		}
		if path != w.root && skipName(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			logging.Debug("watch failed", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
}

func skipName(name string) bool {
	return len(name) > 0 && (name[0] == '.' || name[0] == '#' || name[len(name)-1] == '~')
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("watcher error", "root", w.root, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if skipName(filepath.Base(path)) {
		return
	}

	op := OpModify
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.mu.Lock()
			if len(w.fsWatcher.WatchList()) < w.maxWatches {
				_ = w.fsWatcher.Add(path)
			}
			w.mu.Unlock()
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	case event.Op&fsnotify.Chmod != 0 && event.Op&fsnotify.Write == 0:
		return
	}

	w.mu.Lock()
	if prev, ok := w.pending[path]; ok && prev == OpCreate && op == OpModify {
		op = OpCreate
	}
	w.pending[path] = op
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounce() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending delivers the batch once no event arrived for a full debounce window.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	handler := w.onChange
	if handler == nil || len(w.pending) == 0 || time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]Operation)
	w.mu.Unlock()

	handler(batch)
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WatchedPaths returns the number of watched directories.
func (w *Watcher) WatchedPaths() int {
	return len(w.fsWatcher.WatchList())
}
