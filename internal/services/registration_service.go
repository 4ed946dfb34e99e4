package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"blink/internal/auth"
	"blink/internal/db"
	"blink/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrSessionNotFound = errors.New("registration session not found")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrInvalidCode     = errors.New("invalid verification code")
	ErrNotVerified     = errors.New("email not verified")
	ErrAlreadyVerified = errors.New("email already verified")
)

const usersEmailConstraint = "users_email_key"

type RegistrationService struct {
	txRunner db.TxRunner
	users    UserStore
	sessions RegistrationStore
	sender   OTPSender
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

func NewRegistrationService(txRunner db.TxRunner, users UserStore, sessions RegistrationStore, sender OTPSender, ttl time.Duration, logger *slog.Logger) *RegistrationService {
	return &RegistrationService{
		txRunner: txRunner,
		users:    users,
		sessions: sessions,
		sender:   sender,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		newCode:  generateOTP,
	}
}

// Start opens (or restarts) a registration session and sends a fresh code.
func (s *RegistrationService) Start(ctx context.Context, email string) (time.Time, error) {
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return time.Time{}, err
	}
	if exists {
		return time.Time{}, ErrEmailTaken
	}
	return s.issue(ctx, email)
}

func (s *RegistrationService) Resend(ctx context.Context, email string) (time.Time, error) {
	session, err := s.sessions.Get(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrSessionNotFound
		}
		return time.Time{}, err
	}
	if session.Verified {
		return time.Time{}, ErrAlreadyVerified
	}
	return s.issue(ctx, email)
}

func (s *RegistrationService) issue(ctx context.Context, email string) (time.Time, error) {
	code, err := s.newCode()
	if err != nil {
		return time.Time{}, fmt.Errorf("generate code: %w", err)
	}
	expiresAt := s.now().UTC().Add(s.ttl)
	if err := s.sessions.Upsert(ctx, models.RegistrationSession{Email: email, Code: code, ExpiresAt: expiresAt}); err != nil {
		return time.Time{}, err
	}
	if err := s.sender.SendOTP(ctx, email, code, expiresAt); err != nil {
		return time.Time{}, fmt.Errorf("send code: %w", err)
	}
	s.logger.Info("registration code issued", "email", email, "expires_at", expiresAt)
	return expiresAt, nil
}

func (s *RegistrationService) Verify(ctx context.Context, email, code string) error {
	session, err := s.sessions.Get(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		return err
	}
	if !s.now().Before(session.ExpiresAt) {
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(session.Code), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	return s.sessions.MarkVerified(ctx, email)
}

type CompleteRegistration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
}

// Complete creates the user for a verified session and consumes the session
// in the same transaction.
func (s *RegistrationService) Complete(ctx context.Context, req CompleteRegistration) (models.User, error) {
	session, err := s.sessions.Get(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrSessionNotFound
		}
		return models.User{}, err
	}
	if !session.Verified {
		return models.User{}, ErrNotVerified
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        req.Phone,
		CreatedAt:    s.now().UTC(),
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}
		return s.sessions.Delete(ctx, tx, req.Email)
	})
	if err != nil {
		if db.IsUniqueViolation(err, usersEmailConstraint) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

func (s *RegistrationService) ExpireSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now().UTC())
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
