package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"blink/internal/aggregator"
	"blink/internal/models"
	"blink/internal/money"
	"blink/internal/websocket"

	"golang.org/x/sync/errgroup"
)

var errAccountMissingFromResponse = errors.New("account missing from balance response")

type BalanceResult struct {
	Accounts       int                  `json:"accounts"`
	Updated        int                  `json:"updated"`
	FailedAccounts int                  `json:"failed_accounts"`
	Balances       []models.BankAccount `json:"balances"`
}

type RefreshSummary struct {
	Users          int `json:"users"`
	FailedUsers    int `json:"failed_users"`
	Accounts       int `json:"accounts"`
	FailedAccounts int `json:"failed_accounts"`
}

type BalanceService struct {
	accounts    BankAccountStore
	client      Aggregator
	hub         BalanceHub
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

func NewBalanceService(accounts BankAccountStore, client Aggregator, hub BalanceHub, logger *slog.Logger, concurrency int) *BalanceService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BalanceService{
		accounts:    accounts,
		client:      client,
		hub:         hub,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// RefreshUser fetches balances once per linked item and saves each account.
// A failed item or account is counted and logged without failing the rest.
func (s *BalanceService) RefreshUser(ctx context.Context, userID string) (BalanceResult, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return BalanceResult{}, fmt.Errorf("list accounts: %w", err)
	}
	result := BalanceResult{Accounts: len(accounts), Balances: make([]models.BankAccount, 0, len(accounts))}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, item := range groupByItem(accounts) {
		item := item
		g.Go(func() error {
			refreshed, failed := s.refreshItem(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			result.Updated += len(refreshed)
			result.FailedAccounts += failed
			result.Balances = append(result.Balances, refreshed...)
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}

// RefreshAll walks every user with a linked account, one user at a time.
func (s *BalanceService) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	userIDs, err := s.accounts.ListUserIDs(ctx)
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("list users: %w", err)
	}
	summary := RefreshSummary{Users: len(userIDs)}
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := s.RefreshUser(ctx, userID)
		if err != nil {
			summary.FailedUsers++
			s.logger.Error("user balance refresh failed", "user_id", userID, "error", err)
			continue
		}
		summary.Accounts += result.Accounts
		summary.FailedAccounts += result.FailedAccounts
	}
	return summary, nil
}

// groupByItem keeps the accounts' order within and across items.
func groupByItem(accounts []models.BankAccount) [][]models.BankAccount {
	index := make(map[string]int)
	var items [][]models.BankAccount
	for _, account := range accounts {
		i, ok := index[account.ItemID]
		if !ok {
			i = len(items)
			index[account.ItemID] = i
			items = append(items, nil)
		}
		items[i] = append(items[i], account)
	}
	return items
}

// refreshItem makes one balance call for every account of an item. The
// accounts share the item's access token.
func (s *BalanceService) refreshItem(ctx context.Context, accounts []models.BankAccount) ([]models.BankAccount, int) {
	ids := make([]string, len(accounts))
	for i, account := range accounts {
		ids[i] = account.PlaidAccountID
	}
	live, err := s.client.GetBalances(ctx, accounts[0].AccessToken, ids)
	if err != nil {
		s.logger.Error("balance fetch failed", "item_id", accounts[0].ItemID, "user_id", accounts[0].UserID, "accounts", len(accounts), "error", err)
		return nil, len(accounts)
	}
	byID := make(map[string]aggregator.Account, len(live))
	for _, acct := range live {
		byID[acct.AccountID] = acct
	}

	var refreshed []models.BankAccount
	failed := 0
	for _, account := range accounts {
		match, ok := byID[account.PlaidAccountID]
		if !ok {
			failed++
			s.logger.Error("balance refresh failed", "account_id", account.ID, "user_id", account.UserID, "error", errAccountMissingFromResponse)
			continue
		}
		updated, err := s.applyBalances(ctx, account, match)
		if err != nil {
			failed++
			s.logger.Error("balance refresh failed", "account_id", account.ID, "user_id", account.UserID, "error", err)
			continue
		}
		refreshed = append(refreshed, updated)
	}
	return refreshed, failed
}

func (s *BalanceService) applyBalances(ctx context.Context, account models.BankAccount, match aggregator.Account) (models.BankAccount, error) {
	current := minorPtr(match.Balances.Current)
	available := minorPtr(match.Balances.Available)
	updatedAt := s.now().UTC()
	if err := s.accounts.UpdateBalances(ctx, account.ID, current, available, updatedAt); err != nil {
		return models.BankAccount{}, fmt.Errorf("save balances: %w", err)
	}
	account.CurrentBalance = current
	account.AvailableBalance = available
	account.BalanceUpdatedAt = &updatedAt
	if match.Balances.ISOCurrencyCode != "" {
		account.Currency = match.Balances.ISOCurrencyCode
	}

	if s.hub != nil {
		s.hub.BroadcastBalance(account.UserID, websocket.BalanceUpdate{
			AccountID: account.ID,
			Name:      account.Name,
			Current:   formatPtr(current),
			Available: formatPtr(available),
			Currency:  account.Currency,
			UpdatedAt: updatedAt,
		})
	}
	return account, nil
}

func minorPtr(value *float64) *int64 {
	if value == nil {
		return nil
	}
	minor := money.FromFloat(*value)
	return &minor
}

func formatPtr(value *int64) *string {
	if value == nil {
		return nil
	}
	formatted := money.FormatMinor(*value)
	return &formatted
}
