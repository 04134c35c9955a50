// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Donghh0221/afk/internal/afklog"
)

const reloadDebounce = 300 * time.Millisecond

// Watcher watches a loaded config file for edits and re-applies
// defaults/env overrides without a restart. Only soft, already-running
// fields are meaningful to change this way — AutoApproveTools is the one
// this supervisor actually reapplies live; the rest (ports, base paths,
// CostRates) take effect on the next restart at most, like the teacher's
// own service config does.
type Watcher struct {
	loader *Loader
	path   string
	onLoad func(*Config)
	log    *afklog.Logger

	fsWatcher *fsnotify.Watcher

	mu        sync.Mutex
	timer     *time.Timer
	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher watches path and calls onLoad with the freshly reloaded
// config each time the file settles after an edit.
func NewWatcher(loader *Loader, path string, onLoad func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	return &Watcher{
		loader:    loader,
		path:      path,
		onLoad:    onLoad,
		log:       afklog.New("config-watch"),
		fsWatcher: fsWatcher,
		done:      make(chan struct{}),
	}, nil
}

// Start runs the watch loop until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.debounceReload()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("config watcher: %v", err)
		}
	}
}

func (w *Watcher) debounceReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.loader.LoadWithDefaults(context.Background(), w.path)
	if err != nil {
		w.log.Warnf("reload %s: %v", w.path, err)
		return
	}
	w.log.Printf("reloaded config from %s", w.path)
	w.onLoad(cfg)
}

// Stop closes the underlying fsnotify watcher and waits for the run loop
// to exit.
func (w *Watcher) Stop() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsWatcher.Close()
		<-w.done
	})
	return err
}
