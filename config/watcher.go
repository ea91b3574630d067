package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// FileReloader implements ConfigReloader by watching a set of files with
// fsnotify and invoking its callback on every write, matching
// EngineConfig's hot-reload contract: only non-structural fields are
// ever applied this way, so structural changes like ring length still
// require a restart — that distinction is the caller's responsibility,
// not the watcher's.
type FileReloader struct {
	paths    []string
	watcher  *fsnotify.Watcher
	watching bool
	cancel   context.CancelFunc
}

// NewFileReloader creates a reloader that watches paths for writes.
func NewFileReloader(paths ...string) *FileReloader {
	return &FileReloader{paths: paths}
}

// StartWatch begins watching the configured paths, invoking callback on
// every write event detected for any of them.
func (r *FileReloader) StartWatch(ctx context.Context, callback ReloadCallback) error {
	if r.watching {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting config file watch: %w", err)
	}
	for _, path := range r.paths {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	r.watcher = watcher
	r.cancel = cancel
	r.watching = true

	go r.loop(watchCtx, callback)
	return nil
}

func (r *FileReloader) loop(ctx context.Context, callback ReloadCallback) {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			changes := []*ConfigChange{{FieldPath: event.Name, Source: "fsnotify"}}
			_ = callback(ctx, changes)
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// StopWatch stops watching configuration sources.
func (r *FileReloader) StopWatch(ctx context.Context) error {
	if !r.watching {
		return nil
	}
	r.watching = false
	r.cancel()
	return r.watcher.Close()
}

// IsWatching returns true if currently watching for configuration changes.
func (r *FileReloader) IsWatching() bool {
	return r.watching
}
