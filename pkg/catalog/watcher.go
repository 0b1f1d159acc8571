// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// Debounce delays the reload until changes settle (default 500ms).
	Debounce time.Duration

	// OnReload is called after every reload attempt with its error, if any.
	OnReload func(err error)
}

// Watcher reloads a Library when its YAML files change.
type Watcher struct {
	lib      *Library
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(error)

	timerMu sync.Mutex
	timer   *time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Watch starts watching the library's tables/ and rules/ directories. The
// watcher stops when ctx is cancelled or Stop is called.
func (lib *Library) Watch(ctx context.Context, opts WatchOptions) (*Watcher, error) {
	if lib.dir == "" {
		return nil, fmt.Errorf("watch requires a catalog directory")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	watched := 0
	for _, sub := range []string{"tables", "rules"} {
		dir := filepath.Join(lib.dir, sub)
		if err := fw.Add(dir); err != nil {
			zap.L().Warn("catalog directory not watched", zap.String("path", dir), zap.Error(err))
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = fw.Close()
		return nil, fmt.Errorf("no catalog directories to watch under %s", lib.dir)
	}

	w := &Watcher{
		lib:      lib,
		watcher:  fw,
		debounce: opts.Debounce,
		onReload: opts.OnReload,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.loop(ctx)

	zap.L().Info("watching catalog", zap.String("dir", lib.dir), zap.Duration("debounce", opts.Debounce))
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isCatalogFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("catalog watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// schedule collapses bursts of events (editor saves touch several files)
// into one reload.
func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	err := w.lib.Load()
	if err != nil {
		zap.L().Error("catalog reload failed, keeping previous version", zap.Error(err))
	} else {
		zap.L().Info("catalog reloaded", zap.String("dir", w.lib.dir))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Stop stops watching and waits for the event loop to exit. It is safe to
// call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		<-w.doneCh

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
	})
	return err
}
