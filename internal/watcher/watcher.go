// Package watcher monitors config directories and broadcasts change events via callbacks.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CageChen/ttbox/internal/config"
	"github.com/fsnotify/fsnotify"
)

// EventType represents the type of file system event
type EventType int

// File system event types.
const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

// String returns the name sent to clients for the event type
func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "update"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event represents a file system change event
type Event struct {
	Type EventType
	Path string
}

// Callback is a function called when file changes occur
type Callback func(Event)

// Watcher monitors file system changes in watched directories
type Watcher struct {
	watcher   *fsnotify.Watcher
	cfg       *config.Config
	callbacks []Callback
	// roots maps each added directory to the subdirectories watched for it
	roots map[string][]string
	mu    sync.RWMutex
	done  chan struct{}
}

// New creates a new file system watcher
func New(cfg *config.Config) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher: w,
		cfg:     cfg,
		roots:   make(map[string][]string),
		done:    make(chan struct{}),
	}, nil
}

// OnChange registers a callback for file change events
func (w *Watcher) OnChange(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start watches the configured directories and begins delivering events
func (w *Watcher) Start() error {
	for _, dir := range w.cfg.WatchDirs {
		if err := w.Add(dir); err != nil {
			log.Printf("Warning: failed to watch %s: %v", dir, err)
		}
	}

	go w.eventLoop()
	return nil
}

// Add watches dir and all of its non-excluded subdirectories
func (w *Watcher) Add(dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	var watched []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && w.cfg.IsExcluded(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: cannot watch %s: %v", path, err)
			return nil
		}
		watched = append(watched, path)
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.roots[root] = append(w.roots[root], watched...)
	return nil
}

// Remove stops watching a directory previously passed to Add
func (w *Watcher) Remove(dir string) {
	root, err := filepath.Abs(dir)
	if err != nil {
		root = dir
	}

	w.mu.Lock()
	watched := w.roots[root]
	delete(w.roots, root)
	w.mu.Unlock()

	for _, path := range watched {
		_ = w.watcher.Remove(path)
	}
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Skip excluded paths
	if w.cfg.IsExcluded(event.Name) {
		return
	}

	dir := isDir(event.Name)

	// Only process config files
	if !dir && !w.cfg.IsConfigFile(event.Name) {
		return
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventCreate
		// If a new directory is created, watch it
		if dir {
			w.addCreatedDir(event.Name)
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventWrite
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventRemove
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventRename
	default:
		return
	}

	w.emit(Event{
		Type: eventType,
		Path: event.Name,
	})
}

func (w *Watcher) addCreatedDir(path string) {
	if err := w.watcher.Add(path); err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for root := range w.roots {
		if strings.HasPrefix(path, root+string(filepath.Separator)) {
			w.roots[root] = append(w.roots[root], path)
			return
		}
	}
}

func (w *Watcher) emit(e Event) {
	w.mu.RLock()
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb(e)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
