// Package aggregator is a small client for the Plaid-shaped bank data API:
// link tokens, token exchange, accounts, balances and cursor-based
// transaction sync. Credentials travel in the request body.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Error is the aggregator's error envelope for non-2xx responses.
type Error struct {
	Type           string `json:"error_type"`
	Code           string `json:"error_code"`
	Message        string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
	Status         int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("aggregator error %d %s/%s: %s", e.Status, e.Type, e.Code, e.Message)
}

type Client struct {
	baseURL    string
	clientID   string
	secret     string
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, clientID, secret, webhookURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		clientID:   clientID,
		secret:     secret,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type credentials struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

func (c *Client) credentials() credentials {
	return credentials{ClientID: c.clientID, Secret: c.secret}
}

func (c *Client) CreateLinkToken(ctx context.Context, userID string) (LinkToken, error) {
	type linkUser struct {
		ClientUserID string `json:"client_user_id"`
	}
	req := struct {
		credentials
		ClientName   string   `json:"client_name"`
		Language     string   `json:"language"`
		CountryCodes []string `json:"country_codes"`
		Products     []string `json:"products"`
		User         linkUser `json:"user"`
		Webhook      string   `json:"webhook,omitempty"`
	}{
		credentials:  c.credentials(),
		ClientName:   "Blink",
		Language:     "en",
		CountryCodes: []string{"US"},
		Products:     []string{"transactions"},
		User:         linkUser{ClientUserID: userID},
		Webhook:      c.webhookURL,
	}
	var resp LinkToken
	if err := c.do(ctx, "/link/token/create", req, &resp); err != nil {
		return LinkToken{}, err
	}
	return resp, nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (Exchange, error) {
	req := struct {
		credentials
		PublicToken string `json:"public_token"`
	}{credentials: c.credentials(), PublicToken: publicToken}
	var resp Exchange
	if err := c.do(ctx, "/item/public_token/exchange", req, &resp); err != nil {
		return Exchange{}, err
	}
	return resp, nil
}

func (c *Client) GetAccounts(ctx context.Context, accessToken string) (AccountsResponse, error) {
	req := struct {
		credentials
		AccessToken string `json:"access_token"`
	}{credentials: c.credentials(), AccessToken: accessToken}
	var resp AccountsResponse
	if err := c.do(ctx, "/accounts/get", req, &resp); err != nil {
		return AccountsResponse{}, err
	}
	return resp, nil
}

// GetBalances fetches live balances, limited to accountIDs when given.
func (c *Client) GetBalances(ctx context.Context, accessToken string, accountIDs []string) ([]Account, error) {
	type options struct {
		AccountIDs []string `json:"account_ids,omitempty"`
	}
	req := struct {
		credentials
		AccessToken string   `json:"access_token"`
		Options     *options `json:"options,omitempty"`
	}{credentials: c.credentials(), AccessToken: accessToken}
	if len(accountIDs) > 0 {
		req.Options = &options{AccountIDs: accountIDs}
	}
	var resp AccountsResponse
	if err := c.do(ctx, "/accounts/balance/get", req, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// SyncTransactions fetches one page of changes after cursor for a single
// account. An empty cursor starts from the beginning of history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, accountID, cursor string) (SyncPage, error) {
	type options struct {
		AccountID string `json:"account_id,omitempty"`
	}
	req := struct {
		credentials
		AccessToken string   `json:"access_token"`
		Cursor      string   `json:"cursor,omitempty"`
		Count       int      `json:"count"`
		Options     *options `json:"options,omitempty"`
	}{credentials: c.credentials(), AccessToken: accessToken, Cursor: cursor, Count: 500}
	if accountID != "" {
		req.Options = &options{AccountID: accountID}
	}
	var resp SyncPage
	if err := c.do(ctx, "/transactions/sync", req, &resp); err != nil {
		return SyncPage{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, path string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("aggregator request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("aggregator request", "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Type = "API_ERROR"
			apiErr.Code = "UNEXPECTED_RESPONSE"
			apiErr.Message = string(respBody)
		}
		return apiErr
	}
	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("unmarshal response body: %w", err)
		}
	}
	return nil
}
