package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"blink/internal/middleware"
	"blink/internal/models"

	"github.com/google/uuid"
)

const backgroundSyncTimeout = 5 * time.Minute

type exchangeRequest struct {
	PublicToken     string `json:"publicToken"`
	InstitutionName string `json:"institutionName"`
}

type accountView struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Mask             string     `json:"mask"`
	Type             string     `json:"type"`
	Subtype          string     `json:"subtype"`
	InstitutionName  string     `json:"institutionName"`
	CurrentBalance   *string    `json:"currentBalance"`
	AvailableBalance *string    `json:"availableBalance"`
	Currency         string     `json:"currency"`
	LastSyncedAt     *time.Time `json:"lastSyncedAt,omitempty"`
	BalanceUpdatedAt *time.Time `json:"balanceUpdatedAt,omitempty"`
}

func newAccountView(account models.BankAccount) accountView {
	return accountView{
		ID:               account.ID,
		Name:             account.Name,
		Mask:             account.Mask,
		Type:             account.Type,
		Subtype:          account.Subtype,
		InstitutionName:  account.InstitutionName,
		CurrentBalance:   formatMoneyPtr(account.CurrentBalance),
		AvailableBalance: formatMoneyPtr(account.AvailableBalance),
		Currency:         account.Currency,
		LastSyncedAt:     account.LastSyncedAt,
		BalanceUpdatedAt: account.BalanceUpdatedAt,
	}
}

func newAccountViews(accounts []models.BankAccount) []accountView {
	views := make([]accountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, newAccountView(account))
	}
	return views
}

func (h *Handler) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	token, err := h.aggregator.CreateLinkToken(r.Context(), userID)
	if err != nil {
		h.logger.Error("create link token failed", "user_id", userID, "error", err)
		respondUpstream(w, err, "unable to create link token")
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"linkToken":  token.LinkToken,
		"expiration": token.Expiration,
	})
}

// ExchangePublicToken links the item behind a public token and stores its
// accounts, then starts a first sync in the background.
func (h *Handler) ExchangePublicToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	publicToken := strings.TrimSpace(req.PublicToken)
	if publicToken == "" {
		respondValidation(w, map[string]string{"publicToken": "public token is required"})
		return
	}

	exchange, err := h.aggregator.ExchangePublicToken(r.Context(), publicToken)
	if err != nil {
		h.logger.Error("public token exchange failed", "user_id", userID, "error", err)
		respondUpstream(w, err, "unable to exchange public token")
		return
	}
	linked, err := h.aggregator.GetAccounts(r.Context(), exchange.AccessToken)
	if err != nil {
		h.logger.Error("account fetch failed", "user_id", userID, "item_id", exchange.ItemID, "error", err)
		respondUpstream(w, err, "unable to fetch accounts")
		return
	}

	now := h.now().UTC()
	saved := make([]models.BankAccount, 0, len(linked.Accounts))
	for _, remote := range linked.Accounts {
		account, err := h.accounts.Upsert(r.Context(), models.BankAccount{
			ID:               uuid.NewString(),
			UserID:           userID,
			ItemID:           exchange.ItemID,
			PlaidAccountID:   remote.AccountID,
			AccessToken:      exchange.AccessToken,
			InstitutionName:  strings.TrimSpace(req.InstitutionName),
			Name:             remote.Name,
			Mask:             remote.Mask,
			Type:             remote.Type,
			Subtype:          remote.Subtype,
			CurrentBalance:   minorFromFloat(remote.Balances.Current),
			AvailableBalance: minorFromFloat(remote.Balances.Available),
			Currency:         currencyOrDefault(remote.Balances.ISOCurrencyCode),
			BalanceUpdatedAt: &now,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondError(w, http.StatusConflict, "account is already linked to another user")
				return
			}
			h.logger.Error("saving linked account failed", "user_id", userID, "error", err)
			respondError(w, http.StatusInternalServerError, "unable to save linked accounts")
			return
		}
		saved = append(saved, account)
	}
	h.logger.Info("item linked", "user_id", userID, "item_id", exchange.ItemID, "accounts", len(saved))

	h.runInBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
		defer cancel()
		if _, err := h.sync.SyncUser(ctx, userID); err != nil {
			h.logger.Error("initial sync failed", "user_id", userID, "error", err)
		}
	})

	respondData(w, http.StatusCreated, map[string]any{
		"itemId":   exchange.ItemID,
		"accounts": newAccountViews(saved),
	})
}

func (h *Handler) SyncTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	result, err := h.sync.SyncUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("transaction sync failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "unable to sync transactions")
		return
	}
	respondData(w, http.StatusOK, result)
}

func (h *Handler) SyncBalances(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	result, err := h.balances.RefreshUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("balance refresh failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "unable to refresh balances")
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"accounts":       result.Accounts,
		"updated":        result.Updated,
		"failedAccounts": result.FailedAccounts,
		"balances":       newAccountViews(result.Balances),
	})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load accounts")
		return
	}
	respondData(w, http.StatusOK, newAccountViews(accounts))
}

func currencyOrDefault(code string) string {
	if code == "" {
		return "USD"
	}
	return strings.ToUpper(code)
}
