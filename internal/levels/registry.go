package levels

import (
	"fmt"
	"path/filepath"
	"sync"

	"levelbot/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// Registry serves the active level set and watches the file for rewrites.
// A rewrite never changes the running session: the new set is staged and
// promoted by Roll() when the controller starts the next trading day.
type Registry struct {
	path    string
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	active *DayFile
	staged *DayFile
}

// NewRegistry loads the file at path and begins watching it.
func NewRegistry(path string) (*Registry, error) {
	df, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path, active: df}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("levels watcher failed: %w", err)
	}
	// Watch the directory: editors replace files, which drops a file watch.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching levels dir failed: %w", err)
	}
	r.watcher = w
	go r.watch()
	return r, nil
}

func (r *Registry) watch() {
	for {
		select {
		case evt, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(r.path) {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			df, err := ParseFile(r.path)
			if err != nil {
				logger.Errorf("levels reload failed: %v", err)
				continue
			}
			r.mu.Lock()
			r.staged = df
			r.mu.Unlock()
			logger.Infof("levels file updated (date=%s, %d levels); staged for next session", df.Date, len(df.Levels))
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("levels watcher error: %v", err)
		}
	}
}

// Active returns the level set of the running session.
func (r *Registry) Active() []Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Level, len(r.active.Levels))
	copy(out, r.active.Levels)
	return out
}

// Roll promotes a staged level set, if any. Called at session start.
func (r *Registry) Roll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staged != nil {
		r.active = r.staged
		r.staged = nil
		logger.Infof("levels rolled: date=%s, %d levels", r.active.Date, len(r.active.Levels))
	}
}

// Close stops the watcher.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
