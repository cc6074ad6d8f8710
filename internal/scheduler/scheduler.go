// Package scheduler drives periodic syncs for watch mode. Each tick targets
// the current local reading date, so a watcher left running over midnight
// rolls to the new day on its own.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/timeutil"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context, trigger, date string) (*domain.RunStats, error)
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	date := time.Now().Local().Format(timeutil.DateLayout)
	stats, err := s.syncer.Sync(syncCtx, "scheduled", date)
	if err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
		return
	}
	if stats.AuthAborted {
		s.logger.Warn("scheduled sync aborted on authentication failure, re-login required")
	}
}
