package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunHook observes every scheduled prune.
type RunHook func(deleted int64, err error)

// Scheduler runs a Pruner on the cron schedule of its config. A run that
// is still deleting when the next one fires causes that tick to be skipped.
type Scheduler struct {
	pruner *Pruner
	logger *slog.Logger
	hook   RunHook

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRunHook calls hook after every scheduled or manual run.
func WithRunHook(hook RunHook) SchedulerOption {
	return func(s *Scheduler) { s.hook = hook }
}

// WithSchedulerLogger sets the logger used by the scheduler and by cron.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler creates a scheduler for pruner.
func NewScheduler(pruner *Pruner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{pruner: pruner}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "evidence.scheduler")
	cl := cronLogger{s.logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	return s
}

// Start schedules pruning. An empty schedule is not an error; nothing is
// scheduled. The scheduler stops when ctx is done.
//
//	"0 3 * * *"    daily at 03:00
//	"0 */6 * * *"  every six hours
//	"@every 10m"   every ten minutes
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.pruner.config.PruneSchedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return errors.New("scheduler already running")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started",
		"schedule", schedule,
		"retention_days", s.pruner.config.RetentionDays,
		"max_records", s.pruner.config.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce prunes immediately and reports the result to the run hook.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := s.pruner.Prune(ctx)
	if s.hook != nil {
		s.hook(deleted, err)
	}
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return deleted, err
	}
	s.logger.Debug("scheduled pruning completed", "deleted_count", deleted)
	return deleted, nil
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether a schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled prune, nil when nothing is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
