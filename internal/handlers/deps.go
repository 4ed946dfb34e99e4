package handlers

import (
	"context"
	"time"

	"blink/internal/aggregator"
	"blink/internal/models"
	"blink/internal/services"
	"blink/internal/store"
)

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type BankAccountStore interface {
	Upsert(ctx context.Context, account models.BankAccount) (models.BankAccount, error)
	ListByUser(ctx context.Context, userID string) ([]models.BankAccount, error)
}

type TransactionStore interface {
	ListByUserBetween(ctx context.Context, userID string, start, end time.Time) ([]models.Transaction, error)
	ListRecent(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
}

type AggregatorClient interface {
	CreateLinkToken(ctx context.Context, userID string) (aggregator.LinkToken, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (aggregator.Exchange, error)
	GetAccounts(ctx context.Context, accessToken string) (aggregator.AccountsResponse, error)
}

type RegistrationService interface {
	Start(ctx context.Context, email string) (time.Time, error)
	Resend(ctx context.Context, email string) (time.Time, error)
	Verify(ctx context.Context, email, code string) error
	Complete(ctx context.Context, req services.CompleteRegistration) (models.User, error)
}

type AdvanceService interface {
	Create(ctx context.Context, req services.CreateAdvanceRequest) (models.Advance, error)
	List(ctx context.Context, userID string) ([]models.Advance, error)
	Get(ctx context.Context, userID, advanceID string) (models.Advance, error)
	History(ctx context.Context, userID, advanceID string) ([]store.AuditEntry, error)
	UpdateStatus(ctx context.Context, userID, advanceID, rawStatus string, reference *string) (models.Advance, error)
}

type SyncService interface {
	SyncUser(ctx context.Context, userID string) (services.SyncResult, error)
	SyncItem(ctx context.Context, itemID string) (services.SyncResult, error)
}

type BalanceService interface {
	RefreshUser(ctx context.Context, userID string) (services.BalanceResult, error)
}
