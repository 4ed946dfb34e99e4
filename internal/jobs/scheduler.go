package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type Schedules struct {
	SessionCleanup string
	BalanceRefresh string
}

type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules Schedules
}

// NewScheduler wraps every job in cron.Recover so a panicking run is logged
// and the next tick still fires.
func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules Schedules) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the scheduler. An invalid schedule is an
// error so a typo in configuration is caught at boot.
func (s *Scheduler) Start() error {
	entries := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"registration session cleanup", s.schedules.SessionCleanup, s.jobs.ExpireRegistrationSessions},
		{"balance refresh", s.schedules.BalanceRefresh, s.jobs.RefreshBalances},
	}
	for _, entry := range entries {
		if entry.schedule == "" {
			s.logger.Info("job disabled", "job", entry.name)
			continue
		}
		if _, err := s.cron.AddFunc(entry.schedule, entry.run); err != nil {
			return fmt.Errorf("schedule %s job: %w", entry.name, err)
		}
		s.logger.Info("scheduled job", "job", entry.name, "schedule", entry.schedule)
	}
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
