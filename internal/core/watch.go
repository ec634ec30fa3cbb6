package core

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"drinksync/util"
)

// fileWatcher signals whenever path may have changed.  It watches the
// parent directory, which keeps working when the file is replaced
// through a rename, and polls size and mtime as a fallback.
type fileWatcher struct {
	path   string
	poll   time.Duration
	logger *util.Logger
}

type fileStamp struct {
	size int64
	mod  int64
}

func stampOf(path string) fileStamp {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{size: -1}
	}
	return fileStamp{size: fi.Size(), mod: fi.ModTime().UnixNano()}
}

// run blocks until ctx is done.  Signals are coalesced: changed holds
// at most one pending notification.
func (w *fileWatcher) run(ctx context.Context, changed chan<- struct{}) error {
	var (
		fsEvents <-chan fsnotify.Event
		fsErrors <-chan error
	)
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err = watcher.Add(filepath.Dir(w.path)); err == nil {
			fsEvents, fsErrors = watcher.Events, watcher.Errors
		}
	}
	if err != nil {
		w.logger.Warn("watching %s: %v; polling every %s", w.path, err, w.poll)
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	target := filepath.Clean(w.path)
	last := stampOf(w.path)
	signal := func() {
		last = stampOf(w.path)
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.logger.Debug("watch: %s", ev)
				signal()
			}

		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			w.logger.Warn("watching %s: %v", w.path, err)

		case <-ticker.C:
			if stampOf(w.path) != last {
				signal()
			}
		}
	}
}
