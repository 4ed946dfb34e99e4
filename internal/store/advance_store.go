package store

import (
	"context"
	"fmt"
	"time"

	"blink/internal/advance"
	"blink/internal/models"

	"github.com/lib/pq"
)

// ActiveAdvanceConstraint is the partial unique index that allows at most one
// pending, approved or disbursed advance per user.
const ActiveAdvanceConstraint = "advances_one_active_per_user"

type AdvanceStore struct {
	db DB
}

func NewAdvanceStore(db DB) *AdvanceStore {
	return &AdvanceStore{db: db}
}

const advanceColumns = `
	id, user_id, bank_account_id, amount, transfer_speed, base_fee, discount_percentage, final_fee,
	total_repayment_amount, repayment_date, status, reference, created_at, updated_at,
	approved_at, disbursed_at, repaid_at, defaulted_at, cancelled_at`

func (s *AdvanceStore) Create(ctx context.Context, tx Getter, a models.Advance) (models.Advance, error) {
	var saved models.Advance
	err := tx.GetContext(ctx, &saved, `
		INSERT INTO advances (id, user_id, bank_account_id, amount, transfer_speed, base_fee,
		                      discount_percentage, final_fee, total_repayment_amount, repayment_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+advanceColumns,
		a.ID, a.UserID, a.BankAccountID, a.Amount, a.TransferSpeed, a.BaseFee,
		a.DiscountPercentage, a.FinalFee, a.TotalRepaymentAmount, a.RepaymentDate, a.Status,
	)
	return saved, err
}

func (s *AdvanceStore) HasActive(ctx context.Context, tx Getter, userID string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM advances WHERE user_id = $1 AND status = ANY($2))
	`, userID, pq.Array(advance.ActiveStatuses()))
	return exists, err
}

func (s *AdvanceStore) ListByUser(ctx context.Context, userID string) ([]models.Advance, error) {
	var rows []models.Advance
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+advanceColumns+`
		FROM advances
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AdvanceStore) GetForUser(ctx context.Context, advanceID, userID string) (models.Advance, error) {
	var row models.Advance
	err := s.db.GetContext(ctx, &row, `
		SELECT `+advanceColumns+`
		FROM advances
		WHERE id = $1 AND user_id = $2
	`, advanceID, userID)
	return row, err
}

type StatusChange struct {
	AdvanceID string
	UserID    string
	From      advance.Status
	To        advance.Status
	Reference *string
	At        time.Time
}

// UpdateStatus moves an advance only if it is still in change.From. When
// another writer got there first no row matches and sql.ErrNoRows comes back.
func (s *AdvanceStore) UpdateStatus(ctx context.Context, tx Getter, change StatusChange) (models.Advance, error) {
	column, ok := advance.TimestampColumn(change.To)
	if !ok {
		return models.Advance{}, fmt.Errorf("no timestamp column for status %q", change.To)
	}
	var updated models.Advance
	err := tx.GetContext(ctx, &updated, `
		UPDATE advances
		SET status = $1,
		    reference = COALESCE($2, reference),
		    updated_at = $3,
		    `+column+` = $3
		WHERE id = $4 AND user_id = $5 AND status = $6
		RETURNING `+advanceColumns,
		string(change.To), change.Reference, change.At, change.AdvanceID, change.UserID, string(change.From),
	)
	return updated, err
}
