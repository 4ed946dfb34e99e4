package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"blink/internal/aggregator"
	"blink/internal/db"
	"blink/internal/models"
	"blink/internal/money"
	"blink/internal/websocket"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

type SyncResult struct {
	Accounts       int `json:"accounts"`
	Added          int `json:"added"`
	Modified       int `json:"modified"`
	Removed        int `json:"removed"`
	FailedAccounts int `json:"failed_accounts"`
}

type SyncService struct {
	txRunner     db.TxRunner
	accounts     BankAccountStore
	transactions TransactionStore
	client       Aggregator
	hub          BalanceHub
	logger       *slog.Logger
	concurrency  int
	now          func() time.Time
}

func NewSyncService(txRunner db.TxRunner, accounts BankAccountStore, transactions TransactionStore, client Aggregator, hub BalanceHub, logger *slog.Logger, concurrency int) *SyncService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncService{
		txRunner:     txRunner,
		accounts:     accounts,
		transactions: transactions,
		client:       client,
		hub:          hub,
		logger:       logger,
		concurrency:  concurrency,
		now:          time.Now,
	}
}

// SyncUser pulls new, modified and removed transactions for every linked
// account of the user. A failing account is logged and counted; the others
// still sync.
func (s *SyncService) SyncUser(ctx context.Context, userID string) (SyncResult, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list accounts: %w", err)
	}
	result := s.syncAccounts(ctx, accounts)
	s.notify(userID, result)
	return result, nil
}

// SyncItem syncs the accounts behind one aggregator item, typically after a
// webhook.
func (s *SyncService) SyncItem(ctx context.Context, itemID string) (SyncResult, error) {
	accounts, err := s.accounts.ListByItem(ctx, itemID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list item accounts: %w", err)
	}
	byUser := make(map[string][]models.BankAccount)
	for _, account := range accounts {
		byUser[account.UserID] = append(byUser[account.UserID], account)
	}
	var total SyncResult
	for userID, owned := range byUser {
		result := s.syncAccounts(ctx, owned)
		s.notify(userID, result)
		total.add(result)
	}
	return total, nil
}

func (s *SyncService) syncAccounts(ctx context.Context, accounts []models.BankAccount) SyncResult {
	result := SyncResult{Accounts: len(accounts)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			counts, err := s.syncAccount(ctx, account)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailedAccounts++
				s.logger.Error("account sync failed", "account_id", account.ID, "user_id", account.UserID, "error", err)
				return nil
			}
			result.Added += counts.Added
			result.Modified += counts.Modified
			result.Removed += counts.Removed
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (s *SyncService) syncAccount(ctx context.Context, account models.BankAccount) (SyncResult, error) {
	var counts SyncResult
	cursor := ""
	if account.SyncCursor != nil {
		cursor = *account.SyncCursor
	}
	for {
		page, err := s.client.SyncTransactions(ctx, account.AccessToken, account.PlaidAccountID, cursor)
		if err != nil {
			return SyncResult{}, err
		}
		if err := s.applyPage(ctx, account, page); err != nil {
			return SyncResult{}, err
		}
		counts.Added += len(page.Added)
		counts.Modified += len(page.Modified)
		counts.Removed += len(page.Removed)
		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}
	if err := s.accounts.UpdateSyncState(ctx, account.ID, cursor, s.now().UTC()); err != nil {
		return SyncResult{}, fmt.Errorf("save cursor: %w", err)
	}
	return counts, nil
}

func (s *SyncService) applyPage(ctx context.Context, account models.BankAccount, page aggregator.SyncPage) error {
	upserts := make([]models.Transaction, 0, len(page.Added)+len(page.Modified))
	for _, raw := range append(append([]aggregator.Transaction{}, page.Added...), page.Modified...) {
		txn, err := toTransaction(account, raw)
		if err != nil {
			return err
		}
		upserts = append(upserts, txn)
	}
	removed := make([]string, 0, len(page.Removed))
	for _, r := range page.Removed {
		removed = append(removed, r.TransactionID)
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, txn := range upserts {
			if err := s.transactions.Upsert(ctx, tx, txn); err != nil {
				return fmt.Errorf("upsert transaction %s: %w", txn.TransactionID, err)
			}
		}
		if _, err := s.transactions.DeleteByIDs(ctx, tx, account.UserID, removed); err != nil {
			return fmt.Errorf("delete removed transactions: %w", err)
		}
		return nil
	})
}

func (s *SyncService) notify(userID string, result SyncResult) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastSyncComplete(userID, websocket.SyncComplete{
		Added:          result.Added,
		Modified:       result.Modified,
		Removed:        result.Removed,
		FailedAccounts: result.FailedAccounts,
	})
}

func (r *SyncResult) add(other SyncResult) {
	r.Accounts += other.Accounts
	r.Added += other.Added
	r.Modified += other.Modified
	r.Removed += other.Removed
	r.FailedAccounts += other.FailedAccounts
}

func toTransaction(account models.BankAccount, raw aggregator.Transaction) (models.Transaction, error) {
	date, err := raw.ParsedDate()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("transaction %s date %q: %w", raw.TransactionID, raw.Date, err)
	}
	currency := raw.ISOCurrencyCode
	if currency == "" {
		currency = account.Currency
	}
	return models.Transaction{
		TransactionID:  raw.TransactionID,
		UserID:         account.UserID,
		AccountID:      account.ID,
		Amount:         money.FromFloat(raw.Amount),
		Currency:       currency,
		Date:           date,
		Name:           raw.Name,
		MerchantName:   raw.MerchantName,
		Category:       raw.CategoryName(),
		Pending:        raw.Pending,
		PaymentChannel: raw.PaymentChannel,
	}, nil
}
