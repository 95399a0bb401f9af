// Package sched drives the periodic tasks of every fund: strategy polls,
// queue drains, and maintenance sweeps. Each task runs on its own ticker so
// one fund's slow tick never blocks another fund's.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// TaskFunc is one tick of a periodic task. The handler must return promptly
// relative to the tick period; overruns cause subsequent ticks to be skipped.
type TaskFunc func(ctx context.Context, now time.Time) error

// Task is a registered periodic task with its skip accounting.
type Task struct {
	Name  string
	Every time.Duration
	Fn    TaskFunc

	running atomic.Bool
	missed  atomic.Int64
	errs    atomic.Int64
}

// MissedTicks returns how many ticks were skipped because the previous run
// had not finished.
func (t *Task) MissedTicks() int64 { return t.missed.Load() }

// ErrorCount returns how many ticks returned an error.
func (t *Task) ErrorCount() int64 { return t.errs.Load() }

// fire runs one tick unless the previous one is still executing, in which
// case the tick is skipped and counted. It reports whether the tick ran.
func (t *Task) fire(ctx context.Context, now time.Time, logger *slog.Logger) bool {
	if !t.running.CompareAndSwap(false, true) {
		t.missed.Add(1)
		logger.Warn("tick skipped, previous run still in progress",
			slog.String("task", t.Name),
			slog.Int64("missed_total", t.missed.Load()),
		)
		return false
	}
	defer t.running.Store(false)

	if err := t.Fn(ctx, now); err != nil {
		t.errs.Add(1)
		logger.Warn("tick failed",
			slog.String("task", t.Name),
			slog.String("error", err.Error()),
		)
	}
	return true
}

// SkewFunc is invoked when the wall clock is observed to move backwards by
// more than the tolerance. Strategies use it to reset their highwater marks.
type SkewFunc func(now time.Time)

// Scheduler owns all periodic tasks and a wall-clock skew watch. Tasks are
// registered before Run; Run blocks until the context is cancelled.
type Scheduler struct {
	clock  Clock
	logger *slog.Logger

	mu           sync.Mutex
	tasks        []*Task
	skewHandlers []SkewFunc

	skewTolerance time.Duration
	skewEvents    atomic.Int64
}

// New creates a Scheduler using the given clock.
func New(clock Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clock:         clock,
		logger:        logger.With(slog.String("component", "scheduler")),
		skewTolerance: time.Second,
	}
}

// Register adds a periodic task. Must be called before Run.
func (s *Scheduler) Register(name string, every time.Duration, fn TaskFunc) *Task {
	t := &Task{Name: name, Every: every, Fn: fn}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t
}

// OnClockSkew registers a handler invoked when backwards clock movement
// beyond the tolerance is detected.
func (s *Scheduler) OnClockSkew(fn SkewFunc) {
	s.mu.Lock()
	s.skewHandlers = append(s.skewHandlers, fn)
	s.mu.Unlock()
}

// SkewEvents returns the number of detected backwards clock jumps.
func (s *Scheduler) SkewEvents() int64 { return s.skewEvents.Load() }

// Tasks returns the registered tasks (for the status surface).
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Run starts one goroutine per task plus the skew watch and blocks until the
// context is cancelled. The single context is the only stop token; handlers
// observe it between iterations.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	tasks := make([]*Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	s.logger.Info("scheduler started", slog.Int("tasks", len(tasks)))
	defer s.logger.Info("scheduler stopped")

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			return s.runTask(gctx, t)
		})
	}
	g.Go(func() error {
		return s.watchSkew(gctx)
	})
	return g.Wait()
}

func (s *Scheduler) runTask(ctx context.Context, t *Task) error {
	ticker := time.NewTicker(t.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// No backlog: a tick either runs now or is dropped.
			go t.fire(ctx, s.clock.Now(), s.logger)
		}
	}
}

// watchSkew samples the wall clock once per second and fires the registered
// handlers if time moved backwards beyond the tolerance.
func (s *Scheduler) watchSkew(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := s.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := s.clock.Now()
			if last.Sub(now) > s.skewTolerance {
				s.skewEvents.Add(1)
				s.logger.Warn("wall clock moved backwards, resetting highwater marks",
					slog.Time("was", last),
					slog.Time("now", now),
				)
				s.mu.Lock()
				handlers := make([]SkewFunc, len(s.skewHandlers))
				copy(handlers, s.skewHandlers)
				s.mu.Unlock()
				for _, fn := range handlers {
					fn(now)
				}
			}
			last = now
		}
	}
}
