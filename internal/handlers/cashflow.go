package handlers

import (
	"net/http"

	"blink/internal/analytics"
	"blink/internal/middleware"
)

type segmentView struct {
	Label     string `json:"label"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Income    string `json:"income"`
	Expenses  string `json:"expenses"`
	Net       string `json:"net"`
}

func (h *Handler) CashFlowAnalysis(w http.ResponseWriter, r *http.Request) {
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
	report := analytics.CashFlow(txns, window)
	segments := make([]segmentView, 0, len(report.Segments))
	for _, segment := range report.Segments {
		segments = append(segments, segmentView{
			Label:     segment.Label,
			StartDate: formatDate(segment.Start),
			EndDate:   formatDate(segment.End),
			Income:    formatMoney(segment.IncomeMinor),
			Expenses:  formatMoney(segment.ExpenseMinor),
			Net:       formatMoney(segment.NetMinor),
		})
	}
	payload := windowView(window)
	payload["granularity"] = report.Granularity
	payload["totalIncome"] = formatMoney(report.IncomeMinor)
	payload["totalExpenses"] = formatMoney(report.ExpenseMinor)
	payload["netCashFlow"] = formatMoney(report.NetMinor)
	payload["savingsRate"] = report.SavingsRate
	payload["transactionCount"] = report.TransactionCount
	payload["categories"] = newCategoryViews(report.Categories)
	payload["segments"] = segments
	respondData(w, http.StatusOK, payload)
}
