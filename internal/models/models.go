package models

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type RegistrationSession struct {
	Email     string    `db:"email" json:"email"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Verified  bool      `db:"verified" json:"verified"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BankAccount mirrors one aggregator-linked account. SyncCursor is opaque and
// nil until the first successful sync.
type BankAccount struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	ItemID           string     `db:"item_id" json:"item_id"`
	PlaidAccountID   string     `db:"plaid_account_id" json:"plaid_account_id"`
	AccessToken      string     `db:"access_token" json:"-"`
	InstitutionName  string     `db:"institution_name" json:"institution_name"`
	Name             string     `db:"name" json:"name"`
	Mask             string     `db:"mask" json:"mask"`
	Type             string     `db:"type" json:"type"`
	Subtype          string     `db:"subtype" json:"subtype"`
	CurrentBalance   *int64     `db:"current_balance" json:"current_balance"`
	AvailableBalance *int64     `db:"available_balance" json:"available_balance"`
	Currency         string     `db:"iso_currency" json:"currency"`
	SyncCursor       *string    `db:"sync_cursor" json:"-"`
	LastSyncedAt     *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	BalanceUpdatedAt *time.Time `db:"balance_updated_at" json:"balance_updated_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Transaction amounts are minor units; positive is money leaving the account.
type Transaction struct {
	TransactionID  string    `db:"transaction_id" json:"transaction_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	AccountID      string    `db:"account_id" json:"account_id"`
	Amount         int64     `db:"amount" json:"amount"`
	Currency       string    `db:"iso_currency" json:"currency"`
	Date           time.Time `db:"date" json:"date"`
	Name           string    `db:"name" json:"name"`
	MerchantName   string    `db:"merchant_name" json:"merchant_name"`
	Category       string    `db:"category" json:"category"`
	Pending        bool      `db:"pending" json:"pending"`
	PaymentChannel string    `db:"payment_channel" json:"payment_channel"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type Advance struct {
	ID                   string     `db:"id" json:"id"`
	UserID               string     `db:"user_id" json:"user_id"`
	BankAccountID        string     `db:"bank_account_id" json:"bank_account_id"`
	Amount               int64      `db:"amount" json:"amount"`
	TransferSpeed        string     `db:"transfer_speed" json:"transfer_speed"`
	BaseFee              int64      `db:"base_fee" json:"base_fee"`
	DiscountPercentage   *string    `db:"discount_percentage" json:"discount_percentage,omitempty"`
	FinalFee             int64      `db:"final_fee" json:"final_fee"`
	TotalRepaymentAmount int64      `db:"total_repayment_amount" json:"total_repayment_amount"`
	RepaymentDate        time.Time  `db:"repayment_date" json:"repayment_date"`
	Status               string     `db:"status" json:"status"`
	Reference            *string    `db:"reference" json:"reference,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
	ApprovedAt           *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	DisbursedAt          *time.Time `db:"disbursed_at" json:"disbursed_at,omitempty"`
	RepaidAt             *time.Time `db:"repaid_at" json:"repaid_at,omitempty"`
	DefaultedAt          *time.Time `db:"defaulted_at" json:"defaulted_at,omitempty"`
	CancelledAt          *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}
