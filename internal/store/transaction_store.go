package store

import (
	"context"
	"time"

	"blink/internal/models"

	"github.com/lib/pq"
)

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionColumns = `
	transaction_id, user_id, account_id, amount, iso_currency, date, name,
	merchant_name, category, pending, payment_channel, updated_at`

// Upsert is keyed by the aggregator's transaction id, so replaying a page is
// harmless.
func (s *TransactionStore) Upsert(ctx context.Context, tx Execer, txn models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, user_id, account_id, amount, iso_currency, date, name,
		                          merchant_name, category, pending, payment_channel)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_id) DO UPDATE
		SET amount = EXCLUDED.amount,
		    iso_currency = EXCLUDED.iso_currency,
		    date = EXCLUDED.date,
		    name = EXCLUDED.name,
		    merchant_name = EXCLUDED.merchant_name,
		    category = EXCLUDED.category,
		    pending = EXCLUDED.pending,
		    payment_channel = EXCLUDED.payment_channel,
		    updated_at = NOW()
	`, txn.TransactionID, txn.UserID, txn.AccountID, txn.Amount, txn.Currency, txn.Date, txn.Name,
		txn.MerchantName, txn.Category, txn.Pending, txn.PaymentChannel)
	return err
}

func (s *TransactionStore) DeleteByIDs(ctx context.Context, tx Execer, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE user_id = $1 AND transaction_id = ANY($2)
	`, userID, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByUserBetween returns the user's transactions dated in [start, end],
// newest first.
func (s *TransactionStore) ListByUserBetween(ctx context.Context, userID string, start, end time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC, transaction_id
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListRecent(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, transaction_id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
