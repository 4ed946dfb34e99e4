package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"blink/internal/aggregator"
)

const (
	signatureHeader = "Plaid-Signature"
	maxWebhookBody  = 1 << 20
)

var transactionSyncCodes = map[string]bool{
	"SYNC_UPDATES_AVAILABLE": true,
	"DEFAULT_UPDATE":         true,
	"INITIAL_UPDATE":         true,
	"HISTORICAL_UPDATE":      true,
}

// PlaidWebhook verifies the HMAC-SHA256 signature over the raw body before
// decoding anything. Transaction updates kick off an item sync and return
// immediately.
func (h *Handler) PlaidWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to read webhook body")
		return
	}
	if !validSignature(h.cfg.PlaidWebhookSecret, body, r.Header.Get(signatureHeader)) {
		h.logger.Warn("webhook signature mismatch", "remote_addr", r.RemoteAddr)
		respondError(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}
	var hook aggregator.Webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidPayload.Error())
		return
	}
	h.logger.Info("webhook received", "type", hook.WebhookType, "code", hook.WebhookCode, "item_id", hook.ItemID)

	if hook.WebhookType != "TRANSACTIONS" || !transactionSyncCodes[hook.WebhookCode] || hook.ItemID == "" {
		respondData(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	itemID := hook.ItemID
	h.runInBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
		defer cancel()
		result, err := h.sync.SyncItem(ctx, itemID)
		if err != nil {
			h.logger.Error("webhook sync failed", "item_id", itemID, "error", err)
			return
		}
		h.logger.Info("webhook sync finished", "item_id", itemID,
			"added", result.Added, "modified", result.Modified, "removed", result.Removed,
			"failed_accounts", result.FailedAccounts)
	})
	respondData(w, http.StatusAccepted, map[string]any{"received": true, "syncing": true})
}

func validSignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}
