package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"blink/internal/advance"
	"blink/internal/middleware"
	"blink/internal/models"
	"blink/internal/services"
	"blink/internal/store"

	"github.com/go-chi/chi/v5"
)

type createAdvanceRequest struct {
	BankAccountID     string  `json:"bankAccountId"`
	TransferSpeed     string  `json:"transferSpeed"`
	RepaymentTermDays *int    `json:"repaymentTermDays"`
	RepaymentDate     *string `json:"repaymentDate"`
}

type updateStatusRequest struct {
	Status    string  `json:"status"`
	Reference *string `json:"reference"`
}

type advanceView struct {
	ID                   string     `json:"id"`
	BankAccountID        string     `json:"bankAccountId"`
	Amount               string     `json:"amount"`
	TransferSpeed        string     `json:"transferSpeed"`
	BaseFee              string     `json:"baseFee"`
	DiscountPercentage   *string    `json:"discountPercentage"`
	FinalFee             string     `json:"finalFee"`
	TotalRepaymentAmount string     `json:"totalRepaymentAmount"`
	RepaymentDate        string     `json:"repaymentDate"`
	Status               string     `json:"status"`
	Reference            *string    `json:"reference,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	ApprovedAt           *time.Time `json:"approvedAt,omitempty"`
	DisbursedAt          *time.Time `json:"disbursedAt,omitempty"`
	RepaidAt             *time.Time `json:"repaidAt,omitempty"`
	DefaultedAt          *time.Time `json:"defaultedAt,omitempty"`
	CancelledAt          *time.Time `json:"cancelledAt,omitempty"`
}

func newAdvanceView(a models.Advance) advanceView {
	return advanceView{
		ID:                   a.ID,
		BankAccountID:        a.BankAccountID,
		Amount:               formatMoney(a.Amount),
		TransferSpeed:        a.TransferSpeed,
		BaseFee:              formatMoney(a.BaseFee),
		DiscountPercentage:   a.DiscountPercentage,
		FinalFee:             formatMoney(a.FinalFee),
		TotalRepaymentAmount: formatMoney(a.TotalRepaymentAmount),
		RepaymentDate:        formatDate(a.RepaymentDate),
		Status:               a.Status,
		Reference:            a.Reference,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
		ApprovedAt:           a.ApprovedAt,
		DisbursedAt:          a.DisbursedAt,
		RepaidAt:             a.RepaidAt,
		DefaultedAt:          a.DefaultedAt,
		CancelledAt:          a.CancelledAt,
	}
}

type historyView struct {
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

func newHistoryViews(entries []store.AuditEntry) []historyView {
	views := make([]historyView, 0, len(entries))
	for _, entry := range entries {
		data := json.RawMessage(entry.Data)
		if !json.Valid(data) {
			data, _ = json.Marshal(entry.Data)
		}
		views = append(views, historyView{Action: entry.Action, Data: data, CreatedAt: entry.CreatedAt})
	}
	return views
}

func (h *Handler) CreateAdvance(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req createAdvanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	details := map[string]string{}
	if strings.TrimSpace(req.BankAccountID) == "" {
		details["bankAccountId"] = "bank account is required"
	}
	if strings.TrimSpace(req.TransferSpeed) == "" {
		details["transferSpeed"] = "transfer speed is required"
	}
	if req.RepaymentTermDays != nil && *req.RepaymentTermDays < 1 {
		details["repaymentTermDays"] = "repayment term must be at least one day"
	}
	var repaymentDate *time.Time
	if req.RepaymentDate != nil && strings.TrimSpace(*req.RepaymentDate) != "" {
		parsed, err := parseRepaymentDate(*req.RepaymentDate)
		if err != nil {
			details["repaymentDate"] = "repayment date must be YYYY-MM-DD or RFC 3339"
		} else {
			repaymentDate = &parsed
		}
	}
	if len(details) > 0 {
		respondValidation(w, details)
		return
	}

	created, err := h.advances.Create(r.Context(), services.CreateAdvanceRequest{
		UserID:            userID,
		BankAccountID:     strings.TrimSpace(req.BankAccountID),
		TransferSpeed:     req.TransferSpeed,
		RepaymentTermDays: req.RepaymentTermDays,
		RepaymentDate:     repaymentDate,
	})
	if err != nil {
		h.respondAdvanceError(w, err, "unable to create advance")
		return
	}
	respondData(w, http.StatusCreated, newAdvanceView(created))
}

func (h *Handler) ListAdvances(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	rows, err := h.advances.List(r.Context(), userID)
	if err != nil {
		h.respondAdvanceError(w, err, "unable to load advances")
		return
	}
	views := make([]advanceView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newAdvanceView(row))
	}
	respondData(w, http.StatusOK, views)
}

func (h *Handler) GetAdvance(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	advanceID := chi.URLParam(r, "id")
	row, err := h.advances.Get(r.Context(), userID, advanceID)
	if err != nil {
		h.respondAdvanceError(w, err, "unable to load advance")
		return
	}
	history, err := h.advances.History(r.Context(), userID, advanceID)
	if err != nil {
		h.respondAdvanceError(w, err, "unable to load advance history")
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"advance": newAdvanceView(row),
		"history": newHistoryViews(history),
	})
}

func (h *Handler) UpdateAdvanceStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		respondValidation(w, map[string]string{"status": "status is required"})
		return
	}
	var reference *string
	if req.Reference != nil && strings.TrimSpace(*req.Reference) != "" {
		trimmed := strings.TrimSpace(*req.Reference)
		reference = &trimmed
	}
	updated, err := h.advances.UpdateStatus(r.Context(), userID, chi.URLParam(r, "id"), req.Status, reference)
	if err != nil {
		h.respondAdvanceError(w, err, "unable to update advance")
		return
	}
	respondData(w, http.StatusOK, newAdvanceView(updated))
}

func (h *Handler) respondAdvanceError(w http.ResponseWriter, err error, fallback string) {
	var transitionErr *advance.TransitionError
	switch {
	case errors.As(err, &transitionErr):
		respondError(w, http.StatusBadRequest, transitionErr.Error())
	case errors.Is(err, advance.ErrInvalidTransferSpeed):
		respondValidation(w, map[string]string{"transferSpeed": err.Error()})
	case errors.Is(err, advance.ErrUnknownStatus):
		respondValidation(w, map[string]string{"status": err.Error()})
	case errors.Is(err, services.ErrRepaymentRequired),
		errors.Is(err, advance.ErrRepaymentDateInPast),
		errors.Is(err, advance.ErrRepaymentTooFar),
		errors.Is(err, services.ErrActiveAdvanceExists):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrBankAccountNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrAdvanceNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrAdvanceConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func parseRepaymentDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.DateOnly, raw); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, raw)
}
