package scheduler

import (
	"context"
	"log/slog"
	"time"

	"keyword_bot/internal/registry"
)

// HealthChecker runs one pass over all live rooms.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (registry.HealthReport, error)
}

// Scheduler periodically runs the registry health check.
type Scheduler struct {
	checker HealthChecker
	log     *slog.Logger
	tick    time.Duration
}

// New creates a Scheduler with a 6-hour interval.
func New(checker HealthChecker, log *slog.Logger) *Scheduler {
	return &Scheduler{
		checker: checker,
		log:     log,
		tick:    6 * time.Hour,
	}
}

// SetTickInterval overrides the default check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.check(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	start := time.Now()
	report, err := s.checker.HealthCheck(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("health check", "error", err)
		}
		return
	}
	if report.Removed > 0 || report.Migrated > 0 {
		s.log.Info("registry healed",
			"removed", report.Removed,
			"migrated", report.Migrated,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
}
