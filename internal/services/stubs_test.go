package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"time"

	"blink/internal/aggregator"
	"blink/internal/models"
	"blink/internal/notify"
	"blink/internal/store"
	"blink/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type stubAuditStore struct {
	mu      sync.Mutex
	actions []string
	listFn  func(ctx context.Context, entityType, entityID string) ([]store.AuditEntry, error)
}

func (s *stubAuditStore) Log(_ context.Context, _ store.Execer, _, action, _, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
	return nil
}

func (s *stubAuditStore) ListForEntity(ctx context.Context, entityType, entityID string) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, entityType, entityID)
}

type stubBankAccountStore struct {
	listByUserFn      func(ctx context.Context, userID string) ([]models.BankAccount, error)
	listByItemFn      func(ctx context.Context, itemID string) ([]models.BankAccount, error)
	getForUserFn      func(ctx context.Context, accountID, userID string) (models.BankAccount, error)
	listUserIDsFn     func(ctx context.Context) ([]string, error)
	updateSyncStateFn func(ctx context.Context, accountID, cursor string, syncedAt time.Time) error
	updateBalancesFn  func(ctx context.Context, accountID string, current, available *int64, updatedAt time.Time) error
}

func (s stubBankAccountStore) ListByUser(ctx context.Context, userID string) ([]models.BankAccount, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

func (s stubBankAccountStore) ListByItem(ctx context.Context, itemID string) ([]models.BankAccount, error) {
	if s.listByItemFn == nil {
		return nil, nil
	}
	return s.listByItemFn(ctx, itemID)
}

func (s stubBankAccountStore) GetForUser(ctx context.Context, accountID, userID string) (models.BankAccount, error) {
	if s.getForUserFn == nil {
		return models.BankAccount{ID: accountID, UserID: userID}, nil
	}
	return s.getForUserFn(ctx, accountID, userID)
}

func (s stubBankAccountStore) ListUserIDs(ctx context.Context) ([]string, error) {
	if s.listUserIDsFn == nil {
		return nil, nil
	}
	return s.listUserIDsFn(ctx)
}

func (s stubBankAccountStore) UpdateSyncState(ctx context.Context, accountID, cursor string, syncedAt time.Time) error {
	if s.updateSyncStateFn == nil {
		return nil
	}
	return s.updateSyncStateFn(ctx, accountID, cursor, syncedAt)
}

func (s stubBankAccountStore) UpdateBalances(ctx context.Context, accountID string, current, available *int64, updatedAt time.Time) error {
	if s.updateBalancesFn == nil {
		return nil
	}
	return s.updateBalancesFn(ctx, accountID, current, available, updatedAt)
}

type stubTransactionStore struct {
	upsertFn func(ctx context.Context, tx store.Execer, txn models.Transaction) error
	deleteFn func(ctx context.Context, tx store.Execer, userID string, ids []string) (int64, error)
}

func (s stubTransactionStore) Upsert(ctx context.Context, tx store.Execer, txn models.Transaction) error {
	if s.upsertFn == nil {
		return nil
	}
	return s.upsertFn(ctx, tx, txn)
}

func (s stubTransactionStore) DeleteByIDs(ctx context.Context, tx store.Execer, userID string, ids []string) (int64, error) {
	if s.deleteFn == nil {
		return int64(len(ids)), nil
	}
	return s.deleteFn(ctx, tx, userID, ids)
}

type stubAdvanceStore struct {
	createFn       func(ctx context.Context, tx store.Getter, a models.Advance) (models.Advance, error)
	hasActiveFn    func(ctx context.Context, tx store.Getter, userID string) (bool, error)
	listByUserFn   func(ctx context.Context, userID string) ([]models.Advance, error)
	getForUserFn   func(ctx context.Context, advanceID, userID string) (models.Advance, error)
	updateStatusFn func(ctx context.Context, tx store.Getter, change store.StatusChange) (models.Advance, error)
}

func (s stubAdvanceStore) Create(ctx context.Context, tx store.Getter, a models.Advance) (models.Advance, error) {
	if s.createFn == nil {
		return a, nil
	}
	return s.createFn(ctx, tx, a)
}

func (s stubAdvanceStore) HasActive(ctx context.Context, tx store.Getter, userID string) (bool, error) {
	if s.hasActiveFn == nil {
		return false, nil
	}
	return s.hasActiveFn(ctx, tx, userID)
}

func (s stubAdvanceStore) ListByUser(ctx context.Context, userID string) ([]models.Advance, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

func (s stubAdvanceStore) GetForUser(ctx context.Context, advanceID, userID string) (models.Advance, error) {
	if s.getForUserFn == nil {
		return models.Advance{}, nil
	}
	return s.getForUserFn(ctx, advanceID, userID)
}

func (s stubAdvanceStore) UpdateStatus(ctx context.Context, tx store.Getter, change store.StatusChange) (models.Advance, error) {
	if s.updateStatusFn == nil {
		return models.Advance{ID: change.AdvanceID, Status: string(change.To)}, nil
	}
	return s.updateStatusFn(ctx, tx, change)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, user models.User) error
	existsByEmailFn func(ctx context.Context, email string) (bool, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, user models.User) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, user)
}

func (s stubUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if s.existsByEmailFn == nil {
		return false, nil
	}
	return s.existsByEmailFn(ctx, email)
}

// memorySessions is a map-backed registration store.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]models.RegistrationSession
	deleted  []string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]models.RegistrationSession)}
}

func (m *memorySessions) Upsert(_ context.Context, session models.RegistrationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.Verified = false
	m.sessions[session.Email] = session
	return nil
}

func (m *memorySessions) Get(_ context.Context, email string) (models.RegistrationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[email]
	if !ok {
		return models.RegistrationSession{}, sql.ErrNoRows
	}
	return session, nil
}

func (m *memorySessions) MarkVerified(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.sessions[email]
	session.Verified = true
	m.sessions[email] = session
	return nil
}

func (m *memorySessions) Delete(_ context.Context, _ store.Execer, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, email)
	m.deleted = append(m.deleted, email)
	return nil
}

func (m *memorySessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for email, session := range m.sessions {
		if session.ExpiresAt.Before(now) {
			delete(m.sessions, email)
			removed++
		}
	}
	return removed, nil
}

type stubAggregator struct {
	syncFn     func(ctx context.Context, accessToken, accountID, cursor string) (aggregator.SyncPage, error)
	balancesFn func(ctx context.Context, accessToken string, accountIDs []string) ([]aggregator.Account, error)
}

func (s stubAggregator) SyncTransactions(ctx context.Context, accessToken, accountID, cursor string) (aggregator.SyncPage, error) {
	if s.syncFn == nil {
		return aggregator.SyncPage{}, nil
	}
	return s.syncFn(ctx, accessToken, accountID, cursor)
}

func (s stubAggregator) GetBalances(ctx context.Context, accessToken string, accountIDs []string) ([]aggregator.Account, error) {
	if s.balancesFn == nil {
		return nil, nil
	}
	return s.balancesFn(ctx, accessToken, accountIDs)
}

type stubSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (s *stubSender) SendOTP(_ context.Context, email, code string, _ time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	s.codes[email] = code
	return nil
}

type stubNotifier struct {
	events []notify.AdvanceStatusChanged
	err    error
}

func (s *stubNotifier) AdvanceStatusChanged(_ context.Context, event notify.AdvanceStatusChanged) error {
	s.events = append(s.events, event)
	return s.err
}

type stubHub struct {
	mu       sync.Mutex
	balances []websocket.BalanceUpdate
	syncs    []websocket.SyncComplete
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = append(s.balances, update)
}

func (s *stubHub) BroadcastSyncComplete(_ string, summary websocket.SyncComplete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs = append(s.syncs, summary)
}

func intPtr(v int) *int { return &v }

func stringPtr(v string) *string { return &v }
