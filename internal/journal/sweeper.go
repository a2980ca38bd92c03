package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper defaults.
const (
	DefaultRetention = 72 * time.Hour
	DefaultSchedule  = "@every 1h"
)

// Sweeper prunes old entries on a cron schedule.
type Sweeper struct {
	store     Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
	logger    *slog.Logger
}

// NewSweeper validates schedule and builds a stopped sweeper.
func NewSweeper(log *slog.Logger, store Store, retention time.Duration, schedule string) (*Sweeper, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(cron.WithParser(parser)),
		now:       time.Now,
		logger:    log.With(slog.String("service", "journal_sweeper")),
	}, nil
}

// Start schedules the sweep job and starts the cron runner.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("journal sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("journal sweeper started", slog.String("schedule", s.schedule), slog.Duration("retention", s.retention))
	return nil
}

// Stop stops the runner and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepOnce deletes entries older than the retention window.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	removed, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("journal pruned", slog.Int64("removed", removed), slog.Time("before", cutoff))
	}
	return removed, nil
}
