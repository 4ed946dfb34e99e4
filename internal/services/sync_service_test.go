package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blink/internal/aggregator"
	"blink/internal/models"
	"blink/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var syncNow = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)

type recordedCursor struct {
	accountID string
	cursor    string
}

func TestSyncUserPagesUntilDoneAndIsolatesFailures(t *testing.T) {
	var mu sync.Mutex
	var upserts []models.Transaction
	var deleted []string
	var cursors []recordedCursor
	hub := &stubHub{}

	accounts := stubBankAccountStore{
		listByUserFn: func(context.Context, string) ([]models.BankAccount, error) {
			return []models.BankAccount{
				{ID: "acct-1", UserID: "user-1", PlaidAccountID: "plaid-1", AccessToken: "access-a", Currency: "USD"},
				{ID: "acct-2", UserID: "user-1", PlaidAccountID: "plaid-2", AccessToken: "access-b", Currency: "USD"},
			}, nil
		},
		updateSyncStateFn: func(_ context.Context, accountID, cursor string, syncedAt time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, syncNow, syncedAt)
			cursors = append(cursors, recordedCursor{accountID: accountID, cursor: cursor})
			return nil
		},
	}
	transactions := stubTransactionStore{
		upsertFn: func(_ context.Context, _ store.Execer, txn models.Transaction) error {
			mu.Lock()
			defer mu.Unlock()
			upserts = append(upserts, txn)
			return nil
		},
		deleteFn: func(_ context.Context, _ store.Execer, userID string, ids []string) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, "user-1", userID)
			deleted = append(deleted, ids...)
			return int64(len(ids)), nil
		},
	}
	client := stubAggregator{
		syncFn: func(_ context.Context, accessToken, accountID, cursor string) (aggregator.SyncPage, error) {
			if accountID == "plaid-2" {
				return aggregator.SyncPage{}, &aggregator.Error{Status: 400, Code: "ITEM_LOGIN_REQUIRED"}
			}
			switch cursor {
			case "":
				return aggregator.SyncPage{
					Added: []aggregator.Transaction{
						{TransactionID: "t1", AccountID: "plaid-1", Amount: 12.34, Date: "2024-05-01", Name: "Coffee",
							PersonalFinanceCategory: &aggregator.PersonalFinanceCategory{Primary: "FOOD_AND_DRINK"}},
						{TransactionID: "t2", AccountID: "plaid-1", Amount: -1500, Date: "2024-05-01", Name: "Payroll"},
					},
					NextCursor: "c1",
					HasMore:    true,
				}, nil
			case "c1":
				return aggregator.SyncPage{
					Modified:   []aggregator.Transaction{{TransactionID: "t1", AccountID: "plaid-1", Amount: 12.5, Date: "2024-05-01"}},
					Removed:    []aggregator.RemovedTransaction{{TransactionID: "t0"}},
					NextCursor: "c2",
				}, nil
			default:
				t.Fatalf("unexpected cursor %q", cursor)
				return aggregator.SyncPage{}, nil
			}
		},
	}

	svc := NewSyncService(fakeTxRunner{}, accounts, transactions, client, hub, discardLogger(), 2)
	svc.now = fixedClock(syncNow)

	result, err := svc.SyncUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Accounts: 2, Added: 2, Modified: 1, Removed: 1, FailedAccounts: 1}, result)

	assert.Equal(t, []recordedCursor{{accountID: "acct-1", cursor: "c2"}}, cursors)
	assert.Equal(t, []string{"t0"}, deleted)
	require.Len(t, upserts, 3)
	assert.Equal(t, "acct-1", upserts[0].AccountID)
	assert.Equal(t, int64(1234), upserts[0].Amount)
	assert.Equal(t, "FOOD_AND_DRINK", upserts[0].Category)
	assert.Equal(t, "USD", upserts[0].Currency)
	assert.Equal(t, int64(-150000), upserts[1].Amount)
	assert.Equal(t, int64(1250), upserts[2].Amount)

	require.Len(t, hub.syncs, 1)
	assert.Equal(t, 1, hub.syncs[0].FailedAccounts)
}

func TestSyncUserResumesFromStoredCursor(t *testing.T) {
	stored := "cursor-41"
	var seen string
	svc := NewSyncService(fakeTxRunner{}, stubBankAccountStore{
		listByUserFn: func(context.Context, string) ([]models.BankAccount, error) {
			return []models.BankAccount{{ID: "acct-1", UserID: "user-1", PlaidAccountID: "plaid-1", SyncCursor: &stored}}, nil
		},
	}, stubTransactionStore{}, stubAggregator{
		syncFn: func(_ context.Context, _, _, cursor string) (aggregator.SyncPage, error) {
			seen = cursor
			return aggregator.SyncPage{NextCursor: "cursor-42"}, nil
		},
	}, nil, discardLogger(), 1)

	_, err := svc.SyncUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cursor-41", seen)
}

func TestSyncUserKeepsCursorWhenPageFailsToApply(t *testing.T) {
	saved := false
	svc := NewSyncService(fakeTxRunner{}, stubBankAccountStore{
		listByUserFn: func(context.Context, string) ([]models.BankAccount, error) {
			return []models.BankAccount{{ID: "acct-1", UserID: "user-1", PlaidAccountID: "plaid-1"}}, nil
		},
		updateSyncStateFn: func(context.Context, string, string, time.Time) error {
			saved = true
			return nil
		},
	}, stubTransactionStore{
		upsertFn: func(context.Context, store.Execer, models.Transaction) error {
			return errors.New("db down")
		},
	}, stubAggregator{
		syncFn: func(context.Context, string, string, string) (aggregator.SyncPage, error) {
			return aggregator.SyncPage{
				Added:      []aggregator.Transaction{{TransactionID: "t1", Date: "2024-05-01"}},
				NextCursor: "c1",
			}, nil
		},
	}, nil, discardLogger(), 1)

	result, err := svc.SyncUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailedAccounts)
	assert.False(t, saved)
}

func TestSyncUserRejectsMalformedDates(t *testing.T) {
	svc := NewSyncService(fakeTxRunner{}, stubBankAccountStore{
		listByUserFn: func(context.Context, string) ([]models.BankAccount, error) {
			return []models.BankAccount{{ID: "acct-1", UserID: "user-1"}}, nil
		},
	}, stubTransactionStore{}, stubAggregator{
		syncFn: func(context.Context, string, string, string) (aggregator.SyncPage, error) {
			return aggregator.SyncPage{Added: []aggregator.Transaction{{TransactionID: "t1", Date: "May 1"}}}, nil
		},
	}, nil, discardLogger(), 1)

	result, err := svc.SyncUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailedAccounts)
}

func TestSyncUserListError(t *testing.T) {
	svc := NewSyncService(fakeTxRunner{}, stubBankAccountStore{
		listByUserFn: func(context.Context, string) ([]models.BankAccount, error) {
			return nil, errors.New("db down")
		},
	}, stubTransactionStore{}, stubAggregator{}, nil, discardLogger(), 1)
	_, err := svc.SyncUser(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestSyncItemSyncsEveryOwner(t *testing.T) {
	hub := &stubHub{}
	svc := NewSyncService(fakeTxRunner{}, stubBankAccountStore{
		listByItemFn: func(_ context.Context, itemID string) ([]models.BankAccount, error) {
			assert.Equal(t, "item-1", itemID)
			return []models.BankAccount{
				{ID: "acct-1", UserID: "user-1", PlaidAccountID: "plaid-1"},
				{ID: "acct-2", UserID: "user-1", PlaidAccountID: "plaid-2"},
			}, nil
		},
	}, stubTransactionStore{}, stubAggregator{
		syncFn: func(context.Context, string, string, string) (aggregator.SyncPage, error) {
			return aggregator.SyncPage{Added: []aggregator.Transaction{{TransactionID: "t", Date: "2024-05-01"}}, NextCursor: "c"}, nil
		},
	}, hub, discardLogger(), 4)

	result, err := svc.SyncItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Accounts)
	assert.Equal(t, 2, result.Added)
	assert.Len(t, hub.syncs, 1)
}
