package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/foxai-labs/oceep/internal/logging"
)

// Watcher reloads the config file when it changes on disk and hands
// the fresh config to a callback. Reload failures keep the previous
// config; the watcher never propagates a broken file.
type Watcher struct {
	fw   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching path. The containing directory is watched
// because editors typically replace the file rather than write it.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}

	w := &Watcher{fw: fw, done: make(chan struct{})}
	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logging.Get(logging.CategoryConfig).Warn("config reload failed, keeping previous: %v", err)
					continue
				}
				logging.Get(logging.CategoryConfig).Info("config reloaded from %s", path)
				onChange(cfg)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logging.Get(logging.CategoryConfig).Warn("config watcher error: %v", err)
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
