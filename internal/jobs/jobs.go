package jobs

import (
	"context"
	"log/slog"
	"time"

	"blink/internal/services"
)

type SessionExpirer interface {
	ExpireSessions(ctx context.Context) (int64, error)
}

type BalanceRefresher interface {
	RefreshAll(ctx context.Context) (services.RefreshSummary, error)
}

// Jobs holds the housekeeping tasks run by the scheduler. Each run gets its own
// bounded context.
type Jobs struct {
	sessions SessionExpirer
	balances BalanceRefresher
	logger   *slog.Logger
	timeout  time.Duration
}

func NewJobs(sessions SessionExpirer, balances BalanceRefresher, logger *slog.Logger) *Jobs {
	return &Jobs{
		sessions: sessions,
		balances: balances,
		logger:   logger,
		timeout:  30 * time.Minute,
	}
}

func (j *Jobs) ExpireRegistrationSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	removed, err := j.sessions.ExpireSessions(ctx)
	if err != nil {
		j.logger.Error("failed to expire registration sessions", "error", err)
		return
	}
	j.logger.Info("registration session cleanup finished", "removed", removed)
}

func (j *Jobs) RefreshBalances() {
	j.logger.Info("starting balance refresh job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	summary, err := j.balances.RefreshAll(ctx)
	if err != nil {
		j.logger.Error("balance refresh job failed", "error", err,
			"users", summary.Users, "failed_users", summary.FailedUsers)
		return
	}
	j.logger.Info("balance refresh job finished",
		"users", summary.Users,
		"failed_users", summary.FailedUsers,
		"accounts", summary.Accounts,
		"failed_accounts", summary.FailedAccounts,
	)
}
