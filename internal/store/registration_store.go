package store

import (
	"context"
	"time"

	"blink/internal/models"
)

// RegistrationStore keeps one pending OTP session per email.
type RegistrationStore struct {
	db DB
}

func NewRegistrationStore(db DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

// Upsert replaces any previous session for the email and resets verification.
func (s *RegistrationStore) Upsert(ctx context.Context, session models.RegistrationSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registration_sessions (email, code, expires_at, verified)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (email) DO UPDATE
		SET code = EXCLUDED.code,
		    expires_at = EXCLUDED.expires_at,
		    verified = FALSE,
		    created_at = NOW()
	`, session.Email, session.Code, session.ExpiresAt)
	return err
}

func (s *RegistrationStore) Get(ctx context.Context, email string) (models.RegistrationSession, error) {
	var session models.RegistrationSession
	err := s.db.GetContext(ctx, &session, `
		SELECT email, code, expires_at, verified, created_at
		FROM registration_sessions
		WHERE email = $1
	`, email)
	return session, err
}

func (s *RegistrationStore) MarkVerified(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE registration_sessions SET verified = TRUE WHERE email = $1`, email)
	return err
}

func (s *RegistrationStore) Delete(ctx context.Context, tx Execer, email string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM registration_sessions WHERE email = $1`, email)
	return err
}

// DeleteExpired removes sessions whose code expired before now and returns
// how many were removed.
func (s *RegistrationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registration_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
