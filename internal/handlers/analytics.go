package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"blink/internal/analytics"
	"blink/internal/middleware"
	"blink/internal/models"
)

const (
	recurringLookback  = 365 * 24 * time.Hour
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

type categoryView struct {
	Category         string  `json:"category"`
	Amount           string  `json:"amount"`
	TransactionCount int     `json:"transactionCount"`
	Percentage       float64 `json:"percentage"`
}

func newCategoryViews(totals []analytics.CategoryTotal) []categoryView {
	views := make([]categoryView, 0, len(totals))
	for _, total := range totals {
		views = append(views, categoryView{
			Category:         total.Category,
			Amount:           formatMoney(total.AmountMinor),
			TransactionCount: total.Count,
			Percentage:       total.Percentage,
		})
	}
	return views
}

type recurringView struct {
	Merchant            string  `json:"merchant"`
	Category            string  `json:"category"`
	Amount              string  `json:"amount"`
	Frequency           string  `json:"frequency"`
	Occurrences         int     `json:"occurrences"`
	AverageIntervalDays float64 `json:"averageIntervalDays"`
	LastDate            string  `json:"lastDate"`
	NextExpectedDate    string  `json:"nextExpectedDate"`
	MonthlyCost         string  `json:"monthlyCost"`
	LatestAmount        string  `json:"latestAmount"`
	ChangePercent       float64 `json:"changePercent"`
	UnusualChange       bool    `json:"unusualChange"`
}

type transactionView struct {
	TransactionID  string `json:"transactionId"`
	AccountID      string `json:"accountId"`
	Name           string `json:"name"`
	MerchantName   string `json:"merchantName,omitempty"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Date           string `json:"date"`
	Category       string `json:"category"`
	Pending        bool   `json:"pending"`
	PaymentChannel string `json:"paymentChannel,omitempty"`
}

// newTransactionView flips the stored sign so money coming in displays as
// positive and spending as negative.
func newTransactionView(txn models.Transaction) transactionView {
	return transactionView{
		TransactionID:  txn.TransactionID,
		AccountID:      txn.AccountID,
		Name:           txn.Name,
		MerchantName:   txn.MerchantName,
		Amount:         formatMoney(-txn.Amount),
		Currency:       txn.Currency,
		Date:           formatDate(txn.Date),
		Category:       analytics.NormalizeCategory(txn.Category),
		Pending:        txn.Pending,
		PaymentChannel: txn.PaymentChannel,
	}
}

func windowView(window analytics.Window) map[string]any {
	return map[string]any{
		"timeFrame": window.Frame,
		"startDate": formatDate(window.Start),
		"endDate":   formatDate(window.End),
	}
}

// parseWindow reads ?timeFrame= and resolves it with the configured window mode.
func (h *Handler) parseWindow(w http.ResponseWriter, r *http.Request) (analytics.Window, bool) {
	frame, err := analytics.ParseTimeFrame(r.URL.Query().Get("timeFrame"))
	if err != nil {
		respondValidation(w, map[string]string{"timeFrame": err.Error()})
		return analytics.Window{}, false
	}
	return analytics.Range(frame, h.windowMode, h.now()), true
}

func (h *Handler) loadTransactions(ctx context.Context, userID string, start, end time.Time) ([]models.Transaction, error) {
	txns, err := h.transactions.ListByUserBetween(ctx, userID, start, end)
	if err != nil {
		h.logger.Error("loading transactions failed", "user_id", userID, "error", err)
	}
	return txns, err
}

func (h *Handler) SpendingAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	window, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	txns, err := h.loadTransactions(r.Context(), userID, window.Start, window.End)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	txns = analytics.Filter(txns, window)
	income, expenses := analytics.Totals(txns)
	payload := windowView(window)
	payload["totalSpending"] = formatMoney(expenses)
	payload["totalIncome"] = formatMoney(income)
	payload["transactionCount"] = len(txns)
	payload["categories"] = newCategoryViews(analytics.CategoryBreakdown(txns))
	respondData(w, http.StatusOK, payload)
}

// RecurringAnalysis looks back a full year; the time frame only sets how
// regular the charges must be to count.
func (h *Handler) RecurringAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	frame, err := analytics.ParseTimeFrame(r.URL.Query().Get("timeFrame"))
	if err != nil {
		respondValidation(w, map[string]string{"timeFrame": err.Error()})
		return
	}
	now := h.now().UTC()
	txns, err := h.loadTransactions(r.Context(), userID, now.Add(-recurringLookback), now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	detected := analytics.DetectRecurring(txns, frame)
	views := make([]recurringView, 0, len(detected))
	var monthly int64
	unusual := 0
	for _, item := range detected {
		monthly += item.MonthlyCostMinor
		if item.UnusualChange {
			unusual++
		}
		views = append(views, recurringView{
			Merchant:            item.Merchant,
			Category:            item.Category,
			Amount:              formatMoney(item.AmountMinor),
			Frequency:           string(item.Frequency),
			Occurrences:         item.Occurrences,
			AverageIntervalDays: item.MeanGapDays,
			LastDate:            formatDate(item.LastDate),
			NextExpectedDate:    formatDate(item.NextExpectedDate),
			MonthlyCost:         formatMoney(item.MonthlyCostMinor),
			LatestAmount:        formatMoney(item.LatestAmountMinor),
			ChangePercent:       item.ChangePercent,
			UnusualChange:       item.UnusualChange,
		})
	}
	respondData(w, http.StatusOK, map[string]any{
		"timeFrame":          frame,
		"recurringExpenses":  views,
		"totalMonthlyCost":   formatMoney(monthly),
		"unusualChangeCount": unusual,
	})
}

func (h *Handler) AccountSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load accounts")
		return
	}
	var current, available int64
	byType := map[string]int64{}
	for _, account := range accounts {
		if account.CurrentBalance != nil {
			current += *account.CurrentBalance
			byType[account.Type] += *account.CurrentBalance
		}
		if account.AvailableBalance != nil {
			available += *account.AvailableBalance
		}
	}
	typeTotals := make(map[string]string, len(byType))
	for accountType, total := range byType {
		typeTotals[accountType] = formatMoney(total)
	}
	respondData(w, http.StatusOK, map[string]any{
		"accountCount":          len(accounts),
		"totalCurrentBalance":   formatMoney(current),
		"totalAvailableBalance": formatMoney(available),
		"balancesByType":        typeTotals,
		"accounts":              newAccountViews(accounts),
	})
}

// FinancialSummary scores the last three months scaled to a monthly average
// against the current total balance.
func (h *Handler) FinancialSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	window := analytics.Range(analytics.Quarter, analytics.ModeTrailing, h.now())
	txns, err := h.loadTransactions(r.Context(), userID, window.Start, window.End)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load accounts")
		return
	}
	var balance int64
	for _, account := range accounts {
		if account.CurrentBalance != nil {
			balance += *account.CurrentBalance
		}
	}
	income, expenses := analytics.MonthlyAverages(txns, window)
	health := analytics.ScoreHealth(analytics.HealthInput{
		MonthlyIncomeMinor:  income,
		MonthlyExpenseMinor: expenses,
		BalanceMinor:        balance,
	})
	payload := windowView(window)
	payload["monthlyIncome"] = formatMoney(income)
	payload["monthlyExpenses"] = formatMoney(expenses)
	payload["monthlyNet"] = formatMoney(income - expenses)
	payload["totalBalance"] = formatMoney(balance)
	payload["healthScore"] = health
	respondData(w, http.StatusOK, payload)
}

func (h *Handler) RecentTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxRecentLimit {
			respondValidation(w, map[string]string{"limit": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}
	offset := (parseInt(r.URL.Query().Get("page"), 1) - 1) * limit
	txns, err := h.transactions.ListRecent(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	views := make([]transactionView, 0, len(txns))
	for _, txn := range txns {
		views = append(views, newTransactionView(txn))
	}
	respondData(w, http.StatusOK, views)
}
