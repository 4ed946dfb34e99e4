package services

import (
	"context"
	"time"

	"blink/internal/aggregator"
	"blink/internal/models"
	"blink/internal/notify"
	"blink/internal/store"
	"blink/internal/websocket"
)

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	ListForEntity(ctx context.Context, entityType, entityID string) ([]store.AuditEntry, error)
}

type BankAccountStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.BankAccount, error)
	ListByItem(ctx context.Context, itemID string) ([]models.BankAccount, error)
	GetForUser(ctx context.Context, accountID, userID string) (models.BankAccount, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	UpdateSyncState(ctx context.Context, accountID, cursor string, syncedAt time.Time) error
	UpdateBalances(ctx context.Context, accountID string, current, available *int64, updatedAt time.Time) error
}

type TransactionStore interface {
	Upsert(ctx context.Context, tx store.Execer, txn models.Transaction) error
	DeleteByIDs(ctx context.Context, tx store.Execer, userID string, ids []string) (int64, error)
}

type AdvanceStore interface {
	Create(ctx context.Context, tx store.Getter, a models.Advance) (models.Advance, error)
	HasActive(ctx context.Context, tx store.Getter, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.Advance, error)
	GetForUser(ctx context.Context, advanceID, userID string) (models.Advance, error)
	UpdateStatus(ctx context.Context, tx store.Getter, change store.StatusChange) (models.Advance, error)
}

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type RegistrationStore interface {
	Upsert(ctx context.Context, session models.RegistrationSession) error
	Get(ctx context.Context, email string) (models.RegistrationSession, error)
	MarkVerified(ctx context.Context, email string) error
	Delete(ctx context.Context, tx store.Execer, email string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Aggregator is the part of the bank data client the background services use.
type Aggregator interface {
	SyncTransactions(ctx context.Context, accessToken, accountID, cursor string) (aggregator.SyncPage, error)
	GetBalances(ctx context.Context, accessToken string, accountIDs []string) ([]aggregator.Account, error)
}

type OTPSender interface {
	SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

type EventNotifier interface {
	AdvanceStatusChanged(ctx context.Context, event notify.AdvanceStatusChanged) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
	BroadcastSyncComplete(userID string, summary websocket.SyncComplete)
}
