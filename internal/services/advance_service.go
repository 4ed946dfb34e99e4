package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"blink/internal/advance"
	"blink/internal/db"
	"blink/internal/models"
	"blink/internal/notify"
	"blink/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrBankAccountNotFound = errors.New("bank account not found")
	ErrRepaymentRequired   = errors.New("repayment date or repayment term is required")
	ErrActiveAdvanceExists = errors.New("an active advance already exists")
	ErrAdvanceNotFound     = errors.New("advance not found")
	ErrAdvanceConflict     = errors.New("advance status changed concurrently")
)

const auditEntityAdvance = "advance"

type AdvanceService struct {
	txRunner db.TxRunner
	advances AdvanceStore
	accounts BankAccountStore
	audit    AuditStore
	notifier EventNotifier
	policy   advance.Policy
	logger   *slog.Logger
	now      func() time.Time
}

func NewAdvanceService(txRunner db.TxRunner, advances AdvanceStore, accounts BankAccountStore, audit AuditStore, notifier EventNotifier, policy advance.Policy, logger *slog.Logger) *AdvanceService {
	return &AdvanceService{
		txRunner: txRunner,
		advances: advances,
		accounts: accounts,
		audit:    audit,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateAdvanceRequest carries either a repayment date or a term in days.
// The date wins when both are set.
type CreateAdvanceRequest struct {
	UserID            string
	BankAccountID     string
	TransferSpeed     string
	RepaymentTermDays *int
	RepaymentDate     *time.Time
}

func (s *AdvanceService) Create(ctx context.Context, req CreateAdvanceRequest) (models.Advance, error) {
	speed, err := advance.ParseTransferSpeed(req.TransferSpeed)
	if err != nil {
		return models.Advance{}, err
	}
	if _, err := s.accounts.GetForUser(ctx, req.BankAccountID, req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Advance{}, ErrBankAccountNotFound
		}
		return models.Advance{}, err
	}

	issuedAt := s.now().UTC()
	var repaymentDate time.Time
	switch {
	case req.RepaymentDate != nil:
		repaymentDate = *req.RepaymentDate
	case req.RepaymentTermDays != nil:
		repaymentDate = s.policy.RepaymentDateForTerm(issuedAt, *req.RepaymentTermDays)
	default:
		return models.Advance{}, ErrRepaymentRequired
	}
	quote, err := s.policy.Quote(speed, issuedAt, repaymentDate)
	if err != nil {
		return models.Advance{}, err
	}

	row := models.Advance{
		ID:                   uuid.NewString(),
		UserID:               req.UserID,
		BankAccountID:        req.BankAccountID,
		Amount:               quote.AmountMinor,
		TransferSpeed:        string(quote.Speed),
		BaseFee:              quote.BaseFeeMinor,
		FinalFee:             quote.FinalFeeMinor,
		TotalRepaymentAmount: quote.TotalMinor,
		RepaymentDate:        quote.RepaymentDate,
		Status:               string(advance.StatusPending),
	}
	if quote.DiscountPercentage != nil {
		discount := quote.DiscountPercentage.String()
		row.DiscountPercentage = &discount
	}

	var created models.Advance
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		active, err := s.advances.HasActive(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if active {
			return ErrActiveAdvanceExists
		}
		created, err = s.advances.Create(ctx, tx, row)
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, req.UserID, "advance.create", auditEntityAdvance, created.ID, auditData(map[string]any{
			"transfer_speed":         created.TransferSpeed,
			"final_fee":              created.FinalFee,
			"total_repayment_amount": created.TotalRepaymentAmount,
			"repayment_date":         created.RepaymentDate.Format(time.DateOnly),
		}))
	})
	if err != nil {
		if db.IsUniqueViolation(err, store.ActiveAdvanceConstraint) {
			return models.Advance{}, ErrActiveAdvanceExists
		}
		return models.Advance{}, err
	}
	s.logger.Info("advance created", "advance_id", created.ID, "user_id", created.UserID, "transfer_speed", created.TransferSpeed)
	return created, nil
}

func (s *AdvanceService) List(ctx context.Context, userID string) ([]models.Advance, error) {
	rows, err := s.advances.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.Advance{}
	}
	return rows, nil
}

func (s *AdvanceService) Get(ctx context.Context, userID, advanceID string) (models.Advance, error) {
	row, err := s.advances.GetForUser(ctx, advanceID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Advance{}, ErrAdvanceNotFound
		}
		return models.Advance{}, err
	}
	return row, nil
}

// History lists the audit trail of one of the user's advances.
func (s *AdvanceService) History(ctx context.Context, userID, advanceID string) ([]store.AuditEntry, error) {
	if _, err := s.Get(ctx, userID, advanceID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListForEntity(ctx, auditEntityAdvance, advanceID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	return entries, nil
}

func (s *AdvanceService) UpdateStatus(ctx context.Context, userID, advanceID, rawStatus string, reference *string) (models.Advance, error) {
	to, err := advance.ParseStatus(rawStatus)
	if err != nil {
		return models.Advance{}, err
	}
	current, err := s.Get(ctx, userID, advanceID)
	if err != nil {
		return models.Advance{}, err
	}
	from := advance.Status(current.Status)
	if err := advance.Transition(from, to); err != nil {
		return models.Advance{}, err
	}

	change := store.StatusChange{
		AdvanceID: advanceID,
		UserID:    userID,
		From:      from,
		To:        to,
		Reference: reference,
		At:        s.now().UTC(),
	}
	var updated models.Advance
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		updated, err = s.advances.UpdateStatus(ctx, tx, change)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAdvanceConflict
			}
			return err
		}
		data := map[string]any{"from": string(from), "to": string(to)}
		if reference != nil {
			data["reference"] = *reference
		}
		return s.audit.Log(ctx, tx, userID, "advance.status", auditEntityAdvance, advanceID, auditData(data))
	})
	if err != nil {
		return models.Advance{}, err
	}

	event := notify.AdvanceStatusChanged{
		AdvanceID: advanceID,
		UserID:    userID,
		From:      string(from),
		To:        string(to),
		Reference: reference,
		ChangedAt: change.At,
	}
	if err := s.notifier.AdvanceStatusChanged(ctx, event); err != nil {
		s.logger.Warn("advance status event not published", "advance_id", advanceID, "error", err)
	}
	return updated, nil
}

func auditData(data map[string]any) string {
	payload, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(payload)
}
