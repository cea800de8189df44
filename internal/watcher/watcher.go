// Package watcher follows the sandbox directory on disk and reports how many
// project files it holds.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"boltforge/internal/protocol"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceInterval = 300 * time.Millisecond
	DefaultTreeDepth = 4
)

// excludedDirs are directories excluded from file counting and tree generation.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".vite":        true,
	"dist":         true,
}

// UpdateCallback is called when the file count of a watched directory changes.
type UpdateCallback func(dir string, fileCount int)

// Watcher monitors directories for file changes.
type Watcher struct {
	mu       sync.RWMutex
	watchers map[string]*dirWatcher // dir → watcher
	debounce time.Duration
	callback UpdateCallback
}

type dirWatcher struct {
	dir       string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}

	mu        sync.Mutex
	lastCount int
}

// New creates a new file system watcher.
func New(callback UpdateCallback) *Watcher {
	return &Watcher{
		watchers: make(map[string]*dirWatcher),
		debounce: debounceInterval,
		callback: callback,
	}
}

// Watch starts watching dir and its subdirectories. Watching a directory that
// is already watched is a no-op.
func (w *Watcher) Watch(dir string) error {
	w.mu.RLock()
	_, exists := w.watchers[dir]
	w.mu.RUnlock()
	if exists {
		return nil
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dw := &dirWatcher{
		dir:       dir,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
		lastCount: -1, // Force initial update.
	}

	if err := addDirsRecursive(fsW, dir); err != nil {
		fsW.Close()
		return err
	}

	w.mu.Lock()
	w.watchers[dir] = dw
	w.mu.Unlock()

	go w.watchLoop(dw)
	go w.recount(dw)

	return nil
}

// Unwatch stops watching dir.
func (w *Watcher) Unwatch(dir string) {
	w.mu.Lock()
	dw, ok := w.watchers[dir]
	if ok {
		delete(w.watchers, dir)
	}
	w.mu.Unlock()

	if ok {
		close(dw.cancel)
		dw.fsWatcher.Close()
	}
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(dw *dirWatcher) {
	var timer *time.Timer

	for {
		select {
		case <-dw.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-dw.fsWatcher.Events:
			if !ok {
				return
			}

			// Newly mounted folders are watched too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !excludedDirs[filepath.Base(event.Name)] {
						addDirsRecursive(dw.fsWatcher, event.Name)
					}
				}
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.recount(dw)
			})

		case err, ok := <-dw.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error for %s: %v", dw.dir, err)
		}
	}
}

// recount recalculates the file count and notifies if it changed.
func (w *Watcher) recount(dw *dirWatcher) {
	count := CountFiles(dw.dir)

	dw.mu.Lock()
	changed := count != dw.lastCount
	dw.lastCount = count
	dw.mu.Unlock()

	if changed && w.callback != nil {
		w.callback(dw.dir, count)
	}
}

// CountFiles counts all non-excluded files in a directory.
func CountFiles(dir string) int {
	count := 0
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip inaccessible paths.
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		count++
		return nil
	})
	return count
}

// BuildFileTree lists dir up to maxDepth levels, directories first. Paths are
// slash-separated and relative to dir.
func BuildFileTree(dir string, maxDepth int) []protocol.DiskNode {
	return buildTreeRecursive(dir, dir, 0, maxDepth)
}

func buildTreeRecursive(rootDir, currentDir string, depth, maxDepth int) []protocol.DiskNode {
	if depth >= maxDepth {
		return nil
	}

	entries, err := os.ReadDir(currentDir)
	if err != nil {
		return nil
	}

	var dirs, files []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			if !excludedDirs[entry.Name()] {
				dirs = append(dirs, entry)
			}
			continue
		}
		files = append(files, entry)
	}

	nodes := make([]protocol.DiskNode, 0, len(dirs)+len(files))

	for _, d := range dirs {
		fullPath := filepath.Join(currentDir, d.Name())
		relPath, _ := filepath.Rel(rootDir, fullPath)
		nodes = append(nodes, protocol.DiskNode{
			Name:     d.Name(),
			Path:     filepath.ToSlash(relPath),
			IsDir:    true,
			Children: buildTreeRecursive(rootDir, fullPath, depth+1, maxDepth),
		})
	}

	for _, f := range files {
		fullPath := filepath.Join(currentDir, f.Name())
		relPath, _ := filepath.Rel(rootDir, fullPath)
		var size int64
		if info, err := f.Info(); err == nil {
			size = info.Size()
		}
		nodes = append(nodes, protocol.DiskNode{
			Name: f.Name(),
			Path: filepath.ToSlash(relPath),
			Size: size,
		})
	}

	return nodes
}

// Shutdown stops all watchers.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	dirs := make([]string, 0, len(w.watchers))
	for dir := range w.watchers {
		dirs = append(dirs, dir)
	}
	w.mu.Unlock()

	for _, dir := range dirs {
		w.Unwatch(dir)
	}
}

// addDirsRecursive adds a directory and its subdirectories to an fsnotify watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if excludedDirs[d.Name()] && path != dir {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
