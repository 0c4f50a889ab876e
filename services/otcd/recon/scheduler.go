package recon

import (
	"context"
	"log/slog"
	"time"
)

// SchedulerConfig configures the daily reconciliation scheduler.
type SchedulerConfig struct {
	Reconciler *Reconciler
	Window     time.Duration
	RunHour    int
	RunMinute  int
	Location   *time.Location
	Logger     *slog.Logger
}

// Scheduler executes reconciliation once a day at a fixed wall-clock time.
type Scheduler struct {
	reconciler *Reconciler
	window     time.Duration
	runHour    int
	runMinute  int
	location   *time.Location
	logger     *slog.Logger
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		reconciler: cfg.Reconciler,
		window:     window,
		runHour:    clamp(cfg.RunHour, 23),
		runMinute:  clamp(cfg.RunMinute, 59),
		location:   loc,
		logger:     logger,
	}
}

// Start blocks running reconciliations until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.reconciler == nil {
		return
	}
	for {
		now := time.Now().In(s.location)
		next := s.nextRun(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			opts := RunOptions{Start: next.Add(-s.window), End: next}
			if _, err := s.reconciler.Run(ctx, opts); err != nil {
				s.logger.Error("recon scheduler run failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) nextRun(after time.Time) time.Time {
	target := time.Date(after.Year(), after.Month(), after.Day(), s.runHour, s.runMinute, 0, 0, s.location)
	if !target.After(after) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
