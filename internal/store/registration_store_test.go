package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"blink/internal/models"
)

func TestRegistrationStoreUpsert(t *testing.T) {
	expires := time.Date(2024, 5, 1, 10, 10, 0, 0, time.UTC)
	store := NewRegistrationStore(stubDB{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "ON CONFLICT (email) DO UPDATE") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 3 || args[0] != "ada@example.com" || args[1] != "123456" || args[2] != expires {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	})
	err := store.Upsert(context.Background(), models.RegistrationSession{Email: "ada@example.com", Code: "123456", ExpiresAt: expires})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistrationStoreGet(t *testing.T) {
	store := NewRegistrationStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM registration_sessions") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*models.RegistrationSession) = models.RegistrationSession{Email: "ada@example.com", Verified: true}
			return nil
		},
	})
	session, err := store.Get(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.Verified {
		t.Fatalf("unexpected session: %#v", session)
	}
}

func TestRegistrationStoreDeleteExpired(t *testing.T) {
	now := time.Now()
	store := NewRegistrationStore(stubDB{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "expires_at < $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != now {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 3}, nil
		},
	})
	removed, err := store.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
}

func TestRegistrationStoreDeleteUsesTx(t *testing.T) {
	called := false
	tx := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			called = true
			if !strings.Contains(query, "DELETE FROM registration_sessions WHERE email = $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			return stubResult{rows: 1}, nil
		},
	}
	if err := NewRegistrationStore(stubDB{}).Delete(context.Background(), tx, "ada@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected delete on tx")
	}
}
