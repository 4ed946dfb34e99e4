package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"blink/internal/aggregator"
	"blink/internal/money"
)

var errInvalidPayload = errors.New("invalid payload")

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, map[string]any{"success": true, "data": data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

// respondValidation reports field-level problems as 400 with a details map.
func respondValidation(w http.ResponseWriter, details map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"error":   "validation failed",
		"details": details,
	})
}

// respondUpstream passes the aggregator's code and message through.
func respondUpstream(w http.ResponseWriter, err error, fallback string) {
	var apiErr *aggregator.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = fallback
		}
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   message,
			"details": map[string]string{
				"error_type": apiErr.Type,
				"error_code": apiErr.Code,
			},
		})
		return
	}
	respondError(w, http.StatusInternalServerError, fallback)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return errInvalidPayload
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dest); err != nil {
		return errInvalidPayload
	}
	return nil
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func formatMoney(minor int64) string {
	return money.FormatMinor(minor)
}

func formatMoneyPtr(minor *int64) *string {
	if minor == nil {
		return nil
	}
	formatted := money.FormatMinor(*minor)
	return &formatted
}

func minorFromFloat(value *float64) *int64 {
	if value == nil {
		return nil
	}
	minor := money.FromFloat(*value)
	return &minor
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
