// Package models tracks the neural model files the editor can use. The
// registry scans a directory and watches it so dropping a model file in
// while the editor runs makes it available without a restart.
package models

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/cwbudde/algo-vocal/internal/logging"
)

// Well-known model file names.
const (
	FileFCPE      = "fcpe.onnx"
	FileRMVPE     = "rmvpe.onnx"
	FileVocoder   = "pc_nsf_hifigan.onnx"
	FileSegmenter = "note_seg.onnx"
)

// Registry reflects the model files currently present in the model
// directory. Safe for concurrent use.
type Registry struct {
	dir string

	mu      sync.RWMutex
	present map[string]bool
	onsets  []func(name string, available bool)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry scans dir and starts watching it. A missing directory is not
// an error; models become available once the directory appears and files
// are dropped in.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{
		dir:     dir,
		present: make(map[string]bool),
		done:    make(chan struct{}),
	}
	r.rescan()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	r.watcher = w
	if err := w.Add(dir); err != nil {
		logging.Warn("model directory not watchable", zap.String("dir", dir), zap.Error(err))
	}
	go r.loop()
	return r, nil
}

func (r *Registry) loop() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
				r.refresh(filepath.Base(ev.Name))
			}
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		case <-r.done:
			return
		}
	}
}

// rescan reads the directory contents into the presence map.
func (r *Registry) rescan() {
	entries, err := os.ReadDir(r.dir)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.present = make(map[string]bool)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			r.present[e.Name()] = true
		}
	}
}

// refresh re-checks a single file and fires callbacks on change.
func (r *Registry) refresh(name string) {
	_, err := os.Stat(filepath.Join(r.dir, name))
	available := err == nil

	r.mu.Lock()
	was := r.present[name]
	r.present[name] = available
	callbacks := append([]func(string, bool){}, r.onsets...)
	r.mu.Unlock()

	if was == available {
		return
	}
	for _, cb := range callbacks {
		cb(name, available)
	}
}

// Available reports whether the named model file exists.
func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.present[name]
}

// Path returns the full path for a model file name.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.dir, name)
}

// OnChange registers a callback fired when a model file appears or
// disappears. Callbacks run on the watcher goroutine.
func (r *Registry) OnChange(cb func(name string, available bool)) {
	r.mu.Lock()
	r.onsets = append(r.onsets, cb)
	r.mu.Unlock()
}

// Close stops the watcher.
func (r *Registry) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
