package services

import (
	"context"
	"log/slog"
	"time"
)

type AutoMatcher interface {
	MatchAutomatically(ctx context.Context, windowStart, windowEnd time.Time) (AutoMatchResult, error)
}

// Scheduler runs automatic matching over a trailing window on a fixed
// interval until its context is cancelled.
type Scheduler struct {
	matcher  AutoMatcher
	interval time.Duration
	lookback time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewScheduler(matcher AutoMatcher, interval, lookback time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		matcher:  matcher,
		interval: interval,
		lookback: lookback,
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks until ctx is done. A non-positive interval disables it.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("auto match scheduler disabled")
		return
	}
	s.logger.Info("auto match scheduler started", "interval", s.interval, "lookback", s.lookback)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auto match scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	end := s.now().UTC()
	start := end.Add(-s.lookback)
	if _, err := s.matcher.MatchAutomatically(ctx, start, end); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled auto match failed", "error", err)
	}
}
