// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// Holder publishes the active AppConfig and swaps it on reload.
// A running session keeps the settings it was started with.
type Holder struct {
	loader *Loader
	path   string
	logger zerolog.Logger

	mu        sync.RWMutex
	current   AppConfig
	listeners []chan<- AppConfig

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
}

// NewHolder wraps initial. path is the YAML file to watch; empty means
// the configuration is environment-only.
func NewHolder(initial AppConfig, loader *Loader, path string) *Holder {
	return &Holder{
		loader:  loader,
		path:    path,
		current: initial,
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns a copy of the active configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// RegisterListener adds ch to the reload fan-out. Delivery never blocks;
// a listener that is not ready skips that reload.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
}

// Reload re-reads and validates the configuration. On error the active
// configuration is left untouched.
func (h *Holder) Reload(_ context.Context) error {
	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).
			Str(xglog.FieldEvent, "config.reload.rejected").
			Msg("config reload rejected, keeping active configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	listeners := append([]chan<- AppConfig(nil), h.listeners...)
	h.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- next:
		default:
			h.logger.Warn().Str(xglog.FieldEvent, "config.reload.listener_busy").Msg("reload listener busy, update skipped")
		}
	}
	h.logDiff(prev, next)
	h.logger.Info().Str(xglog.FieldEvent, "config.reload.applied").Msg("configuration reloaded")
	return nil
}

// StartWatcher reloads on changes to the config file until ctx ends or
// Stop is called. The parent directory is watched so atomic rename-swaps
// are seen as well as in-place writes.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.path == "" {
		h.logger.Info().Msg("no config file, watcher not started")
		return nil
	}
	target := filepath.Clean(h.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(target), err)
	}

	h.watchMu.Lock()
	h.watcher = w
	h.watchMu.Unlock()

	h.logger.Info().Str("path", target).Msg("watching config file")
	go h.watch(ctx, w, target)
	return nil
}

func (h *Holder) watch(ctx context.Context, w *fsnotify.Watcher, target string) {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
		_ = w.Close()
	}()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || ev.Op&relevant == 0 {
				continue
			}
			h.logger.Debug().Str("op", ev.Op.String()).Msg("config file changed")
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, func() {
				_ = h.Reload(ctx)
			})
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Stop closes the watcher; safe to call when none is running.
func (h *Holder) Stop() {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	if h.watcher != nil {
		_ = h.watcher.Close()
		h.watcher = nil
	}
}

func (h *Holder) logDiff(prev, next AppConfig) {
	if prev.LogLevel != next.LogLevel {
		h.logger.Info().Str("from", prev.LogLevel).Str("to", next.LogLevel).Msg("log level changed")
	}
	if prev.FFmpeg != next.FFmpeg {
		h.logger.Info().Msg("ffmpeg settings changed, next session picks them up")
	}
	if prev.Relay != next.Relay {
		h.logger.Info().
			Dur("stop_kill_timeout", next.Relay.StopKillTimeout).
			Dur("replace_timeout", next.Relay.ReplaceTimeout).
			Msg("relay settings changed, next session picks them up")
	}
	if prev.API.ListenAddr != next.API.ListenAddr {
		h.logger.Warn().Str("from", prev.API.ListenAddr).Str("to", next.API.ListenAddr).
			Msg("listen address change needs a restart")
	}
}
