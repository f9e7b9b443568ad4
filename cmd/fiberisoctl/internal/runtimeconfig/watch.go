package runtimeconfig

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// Watcher reloads a Config from disk whenever its file changes, debouncing
// the rapid-fire rename+write sequence most editors produce into a single
// reload. Grounded on cmd/vango/dev.go's fsnotify watch loop, generalized
// from "rebuild on any source change" to "reload config on config-file
// change".
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	dir     string
	log     hclog.Logger
}

// NewWatcher starts watching the directory containing path for changes.
func NewWatcher(path string, log hclog.Logger) (*Watcher, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("runtimeconfig: new watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("runtimeconfig: watch %s: %w", dir, err)
	}
	return &Watcher{watcher: fw, path: path, dir: dir, log: log}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Watch blocks, invoking onReload with the freshly-loaded Config every time
// the watched file changes, debounced by debounce, until stop is closed or
// the watcher errors out. It returns the terminating error, or nil if stop
// fired first.
func (w *Watcher) Watch(stop <-chan struct{}, debounce time.Duration, onReload func(*Config)) error {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	var timer *time.Timer
	reload := func() {
		cfg, err := Load(w.dir, w.path)
		if err != nil {
			w.log.Warn("runtimeconfig: reload failed", "error", err)
			return
		}
		onReload(cfg)
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, reload)
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("runtimeconfig: watch error: %w", err)
		}
	}
}
