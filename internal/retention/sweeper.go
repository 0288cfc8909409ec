// Package retention evicts idle checkpoints on a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/dohr-michael/pokus/internal/events"
	"github.com/dohr-michael/pokus/internal/sessions"
)

const (
	DefaultSchedule = "@daily"
	DefaultMaxIdle  = 30 * 24 * time.Hour
)

// Journal drops per-session event history. *storage.EventLogger implements it.
type Journal interface {
	Remove(sessionID string) error
}

// Config holds dependencies for the sweeper.
type Config struct {
	Store    sessions.Store
	Locker   *sessions.Locker // nil = evict without taking the session lock
	Bus      *events.Bus
	Journal  Journal // optional
	Schedule string
	MaxIdle  time.Duration
	Now      func() time.Time
}

// Sweeper deletes checkpoints whose last update is older than MaxIdle.
type Sweeper struct {
	store    sessions.Store
	locker   *sessions.Locker
	bus      *events.Bus
	journal  Journal
	schedule string
	maxIdle  time.Duration
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New validates the schedule and creates a Sweeper.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, errors.New("retention: store is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		store:    cfg.Store,
		locker:   cfg.Locker,
		bus:      cfg.Bus,
		journal:  cfg.Journal,
		schedule: cfg.Schedule,
		maxIdle:  cfg.MaxIdle,
		now:      cfg.Now,
	}, nil
}

// Start runs Sweep on the configured schedule until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		n, err := s.Sweep(ctx)
		if err != nil {
			slog.Error("retention sweep", "error", err)
			return
		}
		slog.Info("retention sweep done", "evicted", n)
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c

	slog.Info("retention sweeper started", "schedule", s.schedule, "max_idle", s.maxIdle)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Sweep evicts every idle checkpoint once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}

	now := s.now()
	evicted := 0
	for _, sum := range list {
		if now.Sub(sum.UpdatedAt) <= s.maxIdle {
			continue
		}
		ok, err := s.evict(ctx, sum.ID, now)
		if err != nil {
			if ctx.Err() != nil {
				return evicted, ctx.Err()
			}
			slog.Warn("evict checkpoint", "session_id", sum.ID, "error", err)
			continue
		}
		if ok {
			evicted++
		}
	}
	return evicted, nil
}

// evict removes one checkpoint under its session lock. A session that saw a
// turn since List is left alone.
func (s *Sweeper) evict(ctx context.Context, id string, now time.Time) (bool, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, id)
		if err != nil {
			return false, err
		}
		defer unlock()
	}

	cp, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	idle := now.Sub(cp.Session.UpdatedAt)
	if idle <= s.maxIdle {
		return false, nil
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete checkpoint: %w", err)
	}
	if s.journal != nil {
		if err := s.journal.Remove(id); err != nil {
			slog.Warn("remove journal", "session_id", id, "error", err)
		}
	}

	slog.Debug("checkpoint evicted", "session_id", id, "idle", idle)
	if s.bus != nil {
		s.bus.Publish(events.NewTypedEventWithSession(events.SourceRetention,
			events.CheckpointEvictedPayload{IdleFor: idle}, id))
	}
	return true, nil
}
