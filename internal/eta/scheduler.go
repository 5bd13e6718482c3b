package eta

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval runs the overdue sweep once a day.
const DefaultSweepInterval = 24 * time.Hour

// Scheduler runs the sweep on a fixed interval until its context ends. A
// failed sweep is logged and retried on the next tick.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(sweeper *Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sweeper: sweeper, interval: interval, logger: logger}
}

// Run sweeps once immediately, then on every tick. It returns nil when ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.sweeper.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "overdue sweep failed", "error", err)
	}
}
