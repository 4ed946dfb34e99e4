package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "client-id", "secret", "https://blink.test/api/plaid/webhook", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestCreateLinkTokenSendsCredentialsAndUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/link/token/create", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "client-id", body["client_id"])
		assert.Equal(t, "secret", body["secret"])
		assert.Equal(t, "https://blink.test/api/plaid/webhook", body["webhook"])
		assert.Equal(t, "user-1", body["user"].(map[string]any)["client_user_id"])
		_, _ = w.Write([]byte(`{"link_token":"link-sandbox-1","expiration":"2024-05-01T10:00:00Z"}`))
	})
	token, err := client.CreateLinkToken(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "link-sandbox-1", token.LinkToken)
}

func TestExchangePublicToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/public_token/exchange", r.URL.Path)
		assert.Equal(t, "public-1", decodeBody(t, r)["public_token"])
		_, _ = w.Write([]byte(`{"access_token":"access-1","item_id":"item-1"}`))
	})
	exchange, err := client.ExchangePublicToken(context.Background(), "public-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", exchange.AccessToken)
	assert.Equal(t, "item-1", exchange.ItemID)
}

func TestSyncTransactionsPassesCursorAndAccount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "cursor-1", body["cursor"])
		assert.Equal(t, "acc-1", body["options"].(map[string]any)["account_id"])
		_, _ = w.Write([]byte(`{
			"added":[{"transaction_id":"t1","account_id":"acc-1","amount":12.34,"date":"2024-05-01","name":"Coffee",
			          "personal_finance_category":{"primary":"FOOD_AND_DRINK"}}],
			"modified":[],
			"removed":[{"transaction_id":"t0"}],
			"next_cursor":"cursor-2",
			"has_more":true}`))
	})
	page, err := client.SyncTransactions(context.Background(), "access-1", "acc-1", "cursor-1")
	require.NoError(t, err)
	require.Len(t, page.Added, 1)
	assert.Equal(t, "FOOD_AND_DRINK", page.Added[0].CategoryName())
	assert.Equal(t, "cursor-2", page.NextCursor)
	assert.True(t, page.HasMore)
	assert.Equal(t, "t0", page.Removed[0].TransactionID)
}

func TestSyncTransactionsOmitsEmptyCursor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		_, hasCursor := body["cursor"]
		assert.False(t, hasCursor)
		_, _ = w.Write([]byte(`{"next_cursor":"c1"}`))
	})
	_, err := client.SyncTransactions(context.Background(), "access-1", "acc-1", "")
	require.NoError(t, err)
}

func TestGetBalances(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/balance/get", r.URL.Path)
		_, _ = w.Write([]byte(`{"accounts":[{"account_id":"acc-1","balances":{"current":100.5,"available":null,"iso_currency_code":"USD"}}]}`))
	})
	accounts, err := client.GetBalances(context.Background(), "access-1", []string{"acc-1"})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.NotNil(t, accounts[0].Balances.Current)
	assert.Equal(t, 100.5, *accounts[0].Balances.Current)
	assert.Nil(t, accounts[0].Balances.Available)
}

func TestErrorResponseDecodesEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_type":"INVALID_INPUT","error_code":"INVALID_PUBLIC_TOKEN","error_message":"bad token"}`))
	})
	_, err := client.ExchangePublicToken(context.Background(), "bad")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_PUBLIC_TOKEN", apiErr.Code)
	assert.Equal(t, "bad token", apiErr.Message)
}

func TestErrorResponseWithoutEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	})
	_, err := client.GetAccounts(context.Background(), "access-1")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "UNEXPECTED_RESPONSE", apiErr.Code)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestTransactionCategoryFallsBackToLegacy(t *testing.T) {
	txn := Transaction{Category: []string{"Food and Drink", "Restaurants"}}
	assert.Equal(t, "Food and Drink, Restaurants", txn.CategoryName())
}
