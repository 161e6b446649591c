// Copyright 2026 The Manifold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded configuration after the watched file
// changes and validates. Long-running servers use it to hot-apply the
// synthesis weights without a restart.
type ReloadFunc func(cfg *Config)

// Watcher monitors a config file and triggers debounced reloads. Editors
// often produce several write events per save, so changes are coalesced
// before reloading.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	onReload  ReloadFunc
	logger    *slog.Logger
	debounce  time.Duration

	mu      sync.Mutex
	pending *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherConfig configures a config file watcher.
type WatcherConfig struct {
	// Path is the config file to watch.
	Path string

	// OnReload is invoked with each successfully loaded config.
	OnReload ReloadFunc

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// DebounceDelay coalesces rapid write events (defaults to 200ms).
	DebounceDelay time.Duration
}

// NewWatcher creates and starts a config file watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if cfg.OnReload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory rather than the file: many editors replace the
	// file on save, which drops a direct file watch.
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to resolve path %s: %w", cfg.Path, err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	debounce := cfg.DebounceDelay
	if debounce == 0 {
		debounce = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      absPath,
		onReload:  cfg.OnReload,
		logger:    logger,
		debounce:  debounce,
		ctx:       ctx,
		cancel:    cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		// Keep running with the previous config; a bad edit should not take
		// the server down.
		w.logger.Error("config reload failed, keeping previous config",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	w.onReload(cfg)
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}
