// cmd/watch.go
package cmd

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// watchDebounce coalesces a burst of writes from an editor's
// save-then-rename sequence into one re-run, grounded on the debounced
// fsnotify watcher idiom (pendingEvent + a single-shot timer rather than
// reacting to every individual fsnotify.Event).
const watchDebounce = 150 * time.Millisecond

// watchAndRerun runs fn once immediately, then re-runs it every time any
// of the given files changes on disk, debounced. It blocks forever;
// Ctrl-C terminates the process.
func watchAndRerun(paths []string, fn func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.Fatalf("starting file watcher: %v", err)
	}
	defer w.Close()

	dirs := make(map[string]bool)
	for _, p := range paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			logrus.Fatalf("watching %s: %v", dir, err)
		}
	}

	watched := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		watched[abs] = true
	}

	runSafely(fn)

	var timer *time.Timer
	reset := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			logrus.Info("input changed, re-running simulation")
			runSafely(fn)
		})
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				abs = ev.Name
			}
			if !watched[abs] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reset()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logrus.Errorf("file watcher error: %v", err)
		}
	}
}

// runSafely recovers a panicking run so one malformed edit doesn't kill
// the watch loop; the failure is logged and the watcher keeps waiting
// for the next change.
func runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("run failed: %v", r)
		}
	}()
	fn()
}
