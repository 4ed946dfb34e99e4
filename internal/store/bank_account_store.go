package store

import (
	"context"
	"time"

	"blink/internal/models"
)

type BankAccountStore struct {
	db DB
}

func NewBankAccountStore(db DB) *BankAccountStore {
	return &BankAccountStore{db: db}
}

const bankAccountColumns = `
	id, user_id, item_id, plaid_account_id, access_token, institution_name, name, mask,
	type, subtype, current_balance, available_balance, iso_currency, sync_cursor,
	last_synced_at, balance_updated_at, created_at`

// Upsert links an account or refreshes its descriptive fields on relink. The
// sync cursor and balances are left alone on conflict.
func (s *BankAccountStore) Upsert(ctx context.Context, account models.BankAccount) (models.BankAccount, error) {
	var saved models.BankAccount
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO bank_accounts (id, user_id, item_id, plaid_account_id, access_token, institution_name,
		                           name, mask, type, subtype, current_balance, available_balance, iso_currency,
		                           balance_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (plaid_account_id) DO UPDATE
		SET item_id = EXCLUDED.item_id,
		    access_token = EXCLUDED.access_token,
		    institution_name = EXCLUDED.institution_name,
		    name = EXCLUDED.name,
		    mask = EXCLUDED.mask,
		    type = EXCLUDED.type,
		    subtype = EXCLUDED.subtype
		WHERE bank_accounts.user_id = EXCLUDED.user_id
		RETURNING `+bankAccountColumns,
		account.ID, account.UserID, account.ItemID, account.PlaidAccountID, account.AccessToken,
		account.InstitutionName, account.Name, account.Mask, account.Type, account.Subtype,
		account.CurrentBalance, account.AvailableBalance, account.Currency, account.BalanceUpdatedAt,
	)
	return saved, err
}

func (s *BankAccountStore) ListByUser(ctx context.Context, userID string) ([]models.BankAccount, error) {
	var rows []models.BankAccount
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+bankAccountColumns+`
		FROM bank_accounts
		WHERE user_id = $1
		ORDER BY institution_name, name
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BankAccountStore) ListByItem(ctx context.Context, itemID string) ([]models.BankAccount, error) {
	var rows []models.BankAccount
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+bankAccountColumns+`
		FROM bank_accounts
		WHERE item_id = $1
		ORDER BY created_at
	`, itemID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetForUser returns sql.ErrNoRows when the account belongs to someone else.
func (s *BankAccountStore) GetForUser(ctx context.Context, accountID, userID string) (models.BankAccount, error) {
	var row models.BankAccount
	err := s.db.GetContext(ctx, &row, `
		SELECT `+bankAccountColumns+`
		FROM bank_accounts
		WHERE id = $1 AND user_id = $2
	`, accountID, userID)
	return row, err
}

func (s *BankAccountStore) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT user_id FROM bank_accounts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *BankAccountStore) UpdateSyncState(ctx context.Context, accountID, cursor string, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bank_accounts
		SET sync_cursor = $1, last_synced_at = $2
		WHERE id = $3
	`, cursor, syncedAt, accountID)
	return err
}

func (s *BankAccountStore) UpdateBalances(ctx context.Context, accountID string, current, available *int64, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bank_accounts
		SET current_balance = $1, available_balance = $2, balance_updated_at = $3
		WHERE id = $4
	`, current, available, updatedAt, accountID)
	return err
}
