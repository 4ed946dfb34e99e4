package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"blink/internal/auth"
	"blink/internal/middleware"
	"blink/internal/models"
	"blink/internal/services"
	"blink/internal/validator"
)

type emailRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type completeRegistrationRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Phone     *string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserView(user models.User) userView {
	return userView{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
		CreatedAt: user.CreatedAt,
	}
}

func (h *Handler) RegisterInitial(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := validator.NormalizeEmail(req.Email)
	if err := validator.ValidateEmail(email); err != nil {
		respondValidation(w, map[string]string{"email": err.Error()})
		return
	}
	expiresAt, err := h.registration.Start(r.Context(), email)
	if err != nil {
		h.respondRegistrationError(w, err, "unable to start registration")
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"message":   "Verification code sent",
		"email":     email,
		"expiresAt": expiresAt,
	})
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := validator.NormalizeEmail(req.Email)
	code := strings.TrimSpace(req.OTP)
	details := map[string]string{}
	if err := validator.ValidateEmail(email); err != nil {
		details["email"] = err.Error()
	}
	if err := validator.ValidateOTP(code); err != nil {
		details["otp"] = err.Error()
	}
	if len(details) > 0 {
		respondValidation(w, details)
		return
	}
	if err := h.registration.Verify(r.Context(), email, code); err != nil {
		h.respondRegistrationError(w, err, "unable to verify code")
		return
	}
	respondData(w, http.StatusOK, map[string]any{"email": email, "verified": true})
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := validator.NormalizeEmail(req.Email)
	if err := validator.ValidateEmail(email); err != nil {
		respondValidation(w, map[string]string{"email": err.Error()})
		return
	}
	expiresAt, err := h.registration.Resend(r.Context(), email)
	if err != nil {
		h.respondRegistrationError(w, err, "unable to resend code")
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"message":   "Verification code sent",
		"email":     email,
		"expiresAt": expiresAt,
	})
}

func (h *Handler) RegisterComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRegistrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := validator.NormalizeEmail(req.Email)
	details := map[string]string{}
	if err := validator.ValidateEmail(email); err != nil {
		details["email"] = err.Error()
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		details["password"] = err.Error()
	}
	if err := validator.ValidateName(req.FirstName); err != nil {
		details["firstName"] = err.Error()
	}
	if err := validator.ValidateName(req.LastName); err != nil {
		details["lastName"] = err.Error()
	}
	var phone *string
	if req.Phone != nil && strings.TrimSpace(*req.Phone) != "" {
		trimmed := strings.TrimSpace(*req.Phone)
		if err := validator.ValidatePhone(trimmed); err != nil {
			details["phone"] = err.Error()
		}
		phone = &trimmed
	}
	if len(details) > 0 {
		respondValidation(w, details)
		return
	}

	user, err := h.registration.Complete(r.Context(), services.CompleteRegistration{
		Email:     email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     phone,
	})
	if err != nil {
		h.respondRegistrationError(w, err, "registration failed")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondData(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  newUserView(user),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := validator.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		respondValidation(w, map[string]string{"credentials": "email and password are required"})
		return
	}
	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  newUserView(user),
	})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load linked accounts")
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"user":           newUserView(user),
		"linkedAccounts": len(accounts),
	})
}

func (h *Handler) respondRegistrationError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrEmailTaken):
		respondError(w, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, services.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "no registration in progress for this email")
	case errors.Is(err, services.ErrCodeExpired):
		respondError(w, http.StatusBadRequest, "verification code has expired")
	case errors.Is(err, services.ErrInvalidCode):
		respondError(w, http.StatusBadRequest, "invalid verification code")
	case errors.Is(err, services.ErrNotVerified):
		respondError(w, http.StatusBadRequest, "email has not been verified")
	case errors.Is(err, services.ErrAlreadyVerified):
		respondError(w, http.StatusBadRequest, "email is already verified")
	default:
		h.logger.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
