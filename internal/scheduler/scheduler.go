package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tootkeeper/internal/collector"
)

// Runner is the interface for triggering a sync pass.
type Runner interface {
	RunFullSync(ctx context.Context) (collector.Counts, error)
}

// Scheduler periodically triggers a full sync against the remote account.
type Scheduler struct {
	runner Runner
	log    *slog.Logger
	tick   time.Duration
}

// New creates a Scheduler with the default 5-minute interval.
func New(runner Runner, log *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		log:    log,
		tick:   5 * time.Minute,
	}
}

// SetTickInterval overrides the default 5-minute sync interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled. A sync
// pass runs immediately on start and then once per tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.sync(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync(ctx)
		}
	}
}

func (s *Scheduler) sync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	counts, err := s.runner.RunFullSync(ctx)
	switch {
	case errors.Is(err, collector.ErrAlreadyRunning):
		s.log.Info("sync already in progress, skipping tick")
	case errors.Is(err, collector.ErrNotConfigured):
		s.log.Warn("sync skipped: no credentials configured")
	case err != nil:
		s.log.Error("sync pass failed", "error", err)
	default:
		s.log.Info("sync pass complete",
			"toots", counts.Toots,
			"notifications", counts.Notifications,
			"favorites", counts.Favorites,
			"bookmarks", counts.Bookmarks)
	}
}
