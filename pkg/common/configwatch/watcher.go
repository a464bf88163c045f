/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package configwatch notifies about changes to files on disk.
package configwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
)

// DefaultDebounce is how long events must settle before the callback runs.
const DefaultDebounce = 250 * time.Millisecond

// kubeDataDir is the symlink swapped atomically when a mounted ConfigMap or Secret is updated.
const kubeDataDir = "..data"

// Watcher calls a function after a watched path changed. Bursts of events are coalesced.
type Watcher struct {
	path     string
	onChange func(ctx context.Context)
	debounce time.Duration
}

// New returns a Watcher for path, which may be a file or a directory. Any change inside a watched directory counts.
// onChange runs on its own goroutine, never concurrently with itself.
func New(path string, onChange func(ctx context.Context)) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: DefaultDebounce,
	}
}

// WithDebounce sets the settle delay.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Start watches until ctx is done. It returns an error only if the watch cannot be established. A file is watched
// through its parent directory so the watch survives editors and kubelet replacing the file.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if info, err := os.Stat(w.path); err == nil && info.IsDir() {
		dir = w.path
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	logger := log.FromContext(ctx).WithName("config-watcher").WithValues("path", w.path)
	traceLogger := logger.V(logutil.TRACE)

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	logger.V(logutil.DEFAULT).Info("Watching for changes")

	var (
		mu            sync.Mutex // serializes onChange
		debounceTimer *time.Timer
	)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			traceLogger.Info("File event", "event", ev)
			if !w.relevant(ev) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				traceLogger.Info("Change settled, notifying")
				w.onChange(ctx)
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error(err, "File watcher failed")
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(ev.Name)
	return name == w.path || filepath.Base(name) == kubeDataDir || filepath.Dir(name) == w.path
}
