package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
)

// ReloadFunc is notified after a successful reload with the config that was
// replaced and its replacement.
type ReloadFunc func(prev, next *Config)

// Reloader re-reads .env and the config file on demand and swaps the result in
// atomically. Readers never block on a reload in progress.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]
	reloads    atomic.Uint64

	mu        sync.Mutex // serializes Reload and guards listeners
	listeners []ReloadFunc
}

func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{
		configPath: configPath,
		dotenvPath: dotenvPath,
	}
	r.current.Store(initial)
	return r
}

// Current returns the active config.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// Reloads returns how many reloads have succeeded.
func (r *Reloader) Reloads() uint64 {
	return r.reloads.Load()
}

// OnReload registers fn. Listeners run in registration order on the
// goroutine that called Reload.
func (r *Reloader) OnReload(fn ReloadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-reads .env and the config. On error the active config is kept
// and no listener runs.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}

	next, err := Load(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	prev := r.current.Swap(next)
	r.reloads.Add(1)
	slog.Info("config reloaded",
		"path", r.configPath,
		"tasks_changed", TasksChanged(prev, next),
	)

	for _, fn := range r.listeners {
		fn(prev, next)
	}
	return nil
}

// Watch calls Reload for every value received on trigger until ctx is done
// or trigger is closed. Failures are logged and the loop continues.
func (r *Reloader) Watch(ctx context.Context, trigger <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-trigger:
			if !ok {
				return
			}
			slog.Debug("reload requested", "signal", sig)
			if err := r.Reload(); err != nil {
				slog.Error("reload failed", "error", err)
			}
		}
	}
}

// TasksChanged reports whether the task catalog settings differ.
func TasksChanged(prev, next *Config) bool {
	if prev == nil || next == nil {
		return prev != next
	}
	return !reflect.DeepEqual(prev.Tasks, next.Tasks)
}
