package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"blink/internal/aggregator"
	"blink/internal/auth"
	"blink/internal/config"
	"blink/internal/models"
	"blink/internal/services"
	"blink/internal/store"
	"blink/internal/websocket"
)

const testSecret = "test-secret"

var testNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		AppEnv:              "test",
		JWTSecret:           testSecret,
		TokenTTLMins:        60,
		AllowedOrigins:      "*",
		PlaidWebhookSecret:  "hook-secret",
		RateLimitRequests:   1000,
		RateLimitWindowMins: 15,
		AnalyticsWindowMode: "to_date",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandler fills every unset dependency with an empty stub.
func newTestHandler(deps Dependencies) *Handler {
	if deps.Users == nil {
		deps.Users = stubUserStore{}
	}
	if deps.Accounts == nil {
		deps.Accounts = stubBankAccountStore{}
	}
	if deps.Transactions == nil {
		deps.Transactions = stubTransactionStore{}
	}
	if deps.Aggregator == nil {
		deps.Aggregator = stubAggregator{}
	}
	if deps.Registration == nil {
		deps.Registration = stubRegistration{}
	}
	if deps.Advances == nil {
		deps.Advances = stubAdvanceService{}
	}
	if deps.Sync == nil {
		deps.Sync = stubSync{}
	}
	if deps.Balances == nil {
		deps.Balances = stubBalances{}
	}
	if deps.Hub == nil {
		deps.Hub = websocket.NewHub()
	}
	deps.Logger = discardLogger()
	h := New(testConfig(), deps)
	h.now = func() time.Time { return testNow }
	return h
}

func doRequest(t *testing.T, h *Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, time.Hour)
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	env := decodeEnvelope(t, rr)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rr.Body.String())
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
}

func int64Ptr(v int64) *int64 { return &v }

type stubUserStore struct {
	getByEmailFn func(ctx context.Context, email string) (models.User, error)
	getByIDFn    func(ctx context.Context, userID string) (models.User, error)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{ID: userID}, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubBankAccountStore struct {
	upsertFn     func(ctx context.Context, account models.BankAccount) (models.BankAccount, error)
	listByUserFn func(ctx context.Context, userID string) ([]models.BankAccount, error)
}

func (s stubBankAccountStore) Upsert(ctx context.Context, account models.BankAccount) (models.BankAccount, error) {
	if s.upsertFn == nil {
		return account, nil
	}
	return s.upsertFn(ctx, account)
}

func (s stubBankAccountStore) ListByUser(ctx context.Context, userID string) ([]models.BankAccount, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

type stubTransactionStore struct {
	betweenFn func(ctx context.Context, userID string, start, end time.Time) ([]models.Transaction, error)
	recentFn  func(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
}

func (s stubTransactionStore) ListByUserBetween(ctx context.Context, userID string, start, end time.Time) ([]models.Transaction, error) {
	if s.betweenFn == nil {
		return nil, nil
	}
	return s.betweenFn(ctx, userID, start, end)
}

func (s stubTransactionStore) ListRecent(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	if s.recentFn == nil {
		return nil, nil
	}
	return s.recentFn(ctx, userID, limit, offset)
}

type stubAggregator struct {
	linkFn     func(ctx context.Context, userID string) (aggregator.LinkToken, error)
	exchangeFn func(ctx context.Context, publicToken string) (aggregator.Exchange, error)
	accountsFn func(ctx context.Context, accessToken string) (aggregator.AccountsResponse, error)
}

func (s stubAggregator) CreateLinkToken(ctx context.Context, userID string) (aggregator.LinkToken, error) {
	if s.linkFn == nil {
		return aggregator.LinkToken{}, nil
	}
	return s.linkFn(ctx, userID)
}

func (s stubAggregator) ExchangePublicToken(ctx context.Context, publicToken string) (aggregator.Exchange, error) {
	if s.exchangeFn == nil {
		return aggregator.Exchange{}, nil
	}
	return s.exchangeFn(ctx, publicToken)
}

func (s stubAggregator) GetAccounts(ctx context.Context, accessToken string) (aggregator.AccountsResponse, error) {
	if s.accountsFn == nil {
		return aggregator.AccountsResponse{}, nil
	}
	return s.accountsFn(ctx, accessToken)
}

type stubRegistration struct {
	startFn    func(ctx context.Context, email string) (time.Time, error)
	resendFn   func(ctx context.Context, email string) (time.Time, error)
	verifyFn   func(ctx context.Context, email, code string) error
	completeFn func(ctx context.Context, req services.CompleteRegistration) (models.User, error)
}

func (s stubRegistration) Start(ctx context.Context, email string) (time.Time, error) {
	if s.startFn == nil {
		return testNow.Add(10 * time.Minute), nil
	}
	return s.startFn(ctx, email)
}

func (s stubRegistration) Resend(ctx context.Context, email string) (time.Time, error) {
	if s.resendFn == nil {
		return testNow.Add(10 * time.Minute), nil
	}
	return s.resendFn(ctx, email)
}

func (s stubRegistration) Verify(ctx context.Context, email, code string) error {
	if s.verifyFn == nil {
		return nil
	}
	return s.verifyFn(ctx, email, code)
}

func (s stubRegistration) Complete(ctx context.Context, req services.CompleteRegistration) (models.User, error) {
	if s.completeFn == nil {
		return models.User{ID: "user-1", Email: req.Email}, nil
	}
	return s.completeFn(ctx, req)
}

type stubAdvanceService struct {
	createFn  func(ctx context.Context, req services.CreateAdvanceRequest) (models.Advance, error)
	listFn    func(ctx context.Context, userID string) ([]models.Advance, error)
	getFn     func(ctx context.Context, userID, advanceID string) (models.Advance, error)
	historyFn func(ctx context.Context, userID, advanceID string) ([]store.AuditEntry, error)
	updateFn  func(ctx context.Context, userID, advanceID, rawStatus string, reference *string) (models.Advance, error)
}

func (s stubAdvanceService) Create(ctx context.Context, req services.CreateAdvanceRequest) (models.Advance, error) {
	if s.createFn == nil {
		return models.Advance{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubAdvanceService) List(ctx context.Context, userID string) ([]models.Advance, error) {
	if s.listFn == nil {
		return []models.Advance{}, nil
	}
	return s.listFn(ctx, userID)
}

func (s stubAdvanceService) Get(ctx context.Context, userID, advanceID string) (models.Advance, error) {
	if s.getFn == nil {
		return models.Advance{ID: advanceID, UserID: userID}, nil
	}
	return s.getFn(ctx, userID, advanceID)
}

func (s stubAdvanceService) History(ctx context.Context, userID, advanceID string) ([]store.AuditEntry, error) {
	if s.historyFn == nil {
		return []store.AuditEntry{}, nil
	}
	return s.historyFn(ctx, userID, advanceID)
}

func (s stubAdvanceService) UpdateStatus(ctx context.Context, userID, advanceID, rawStatus string, reference *string) (models.Advance, error) {
	if s.updateFn == nil {
		return models.Advance{ID: advanceID, Status: rawStatus}, nil
	}
	return s.updateFn(ctx, userID, advanceID, rawStatus, reference)
}

type stubSync struct {
	syncUserFn func(ctx context.Context, userID string) (services.SyncResult, error)
	syncItemFn func(ctx context.Context, itemID string) (services.SyncResult, error)
}

func (s stubSync) SyncUser(ctx context.Context, userID string) (services.SyncResult, error) {
	if s.syncUserFn == nil {
		return services.SyncResult{}, nil
	}
	return s.syncUserFn(ctx, userID)
}

func (s stubSync) SyncItem(ctx context.Context, itemID string) (services.SyncResult, error) {
	if s.syncItemFn == nil {
		return services.SyncResult{}, nil
	}
	return s.syncItemFn(ctx, itemID)
}

type stubBalances struct {
	refreshFn func(ctx context.Context, userID string) (services.BalanceResult, error)
}

func (s stubBalances) RefreshUser(ctx context.Context, userID string) (services.BalanceResult, error) {
	if s.refreshFn == nil {
		return services.BalanceResult{}, nil
	}
	return s.refreshFn(ctx, userID)
}
