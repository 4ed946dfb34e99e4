package advance

import (
	"errors"
	"strings"
	"time"

	"blink/internal/money"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransferSpeed = errors.New("transfer speed must be instant or standard")
	ErrRepaymentDateInPast  = errors.New("repayment date must be at least one day after issuance")
	ErrRepaymentTooFar      = errors.New("repayment date exceeds the maximum repayment term")
	ErrInvalidPolicy        = errors.New("invalid advance policy")
)

type TransferSpeed string

const (
	SpeedInstant  TransferSpeed = "instant"
	SpeedStandard TransferSpeed = "standard"
)

func ParseTransferSpeed(raw string) (TransferSpeed, error) {
	switch TransferSpeed(strings.ToLower(strings.TrimSpace(raw))) {
	case SpeedInstant:
		return SpeedInstant, nil
	case SpeedStandard:
		return SpeedStandard, nil
	default:
		return "", ErrInvalidTransferSpeed
	}
}

// Policy is the single rule set for pricing an advance. Money values are minor units.
type Policy struct {
	AmountMinor          int64
	InstantFeeMinor      int64
	StandardFeeMinor     int64
	EarlyRepaymentDays   int
	EarlyDiscountPercent decimal.Decimal
	MaxTermDays          int
}

func DefaultPolicy() Policy {
	return Policy{
		AmountMinor:          20000,
		InstantFeeMinor:      2500,
		StandardFeeMinor:     1500,
		EarlyRepaymentDays:   7,
		EarlyDiscountPercent: decimal.NewFromInt(10),
		MaxTermDays:          31,
	}
}

// NewPolicy builds a Policy from decimal strings such as "200.00" and "10".
func NewPolicy(amount, instantFee, standardFee, discountPercent string, earlyDays, maxTermDays int) (Policy, error) {
	amountMinor, err := money.ParseDecimal(amount)
	if err != nil || amountMinor <= 0 {
		return Policy{}, ErrInvalidPolicy
	}
	instantMinor, err := money.ParseDecimal(instantFee)
	if err != nil || instantMinor < 0 {
		return Policy{}, ErrInvalidPolicy
	}
	standardMinor, err := money.ParseDecimal(standardFee)
	if err != nil || standardMinor < 0 {
		return Policy{}, ErrInvalidPolicy
	}
	discount, err := decimal.NewFromString(strings.TrimSpace(discountPercent))
	if err != nil || discount.IsNegative() || discount.GreaterThan(decimal.NewFromInt(100)) {
		return Policy{}, ErrInvalidPolicy
	}
	if earlyDays < 0 || maxTermDays < 1 {
		return Policy{}, ErrInvalidPolicy
	}
	return Policy{
		AmountMinor:          amountMinor,
		InstantFeeMinor:      instantMinor,
		StandardFeeMinor:     standardMinor,
		EarlyRepaymentDays:   earlyDays,
		EarlyDiscountPercent: discount,
		MaxTermDays:          maxTermDays,
	}, nil
}

type Quote struct {
	AmountMinor        int64
	Speed              TransferSpeed
	BaseFeeMinor       int64
	DiscountPercentage *decimal.Decimal
	FinalFeeMinor      int64
	TotalMinor         int64
	TermDays           int
	RepaymentDate      time.Time
}

func (p Policy) BaseFee(speed TransferSpeed) (int64, error) {
	switch speed {
	case SpeedInstant:
		return p.InstantFeeMinor, nil
	case SpeedStandard:
		return p.StandardFeeMinor, nil
	default:
		return 0, ErrInvalidTransferSpeed
	}
}

func (p Policy) RepaymentDateForTerm(issuedAt time.Time, termDays int) time.Time {
	return truncateDay(issuedAt).AddDate(0, 0, termDays)
}

func (p Policy) Quote(speed TransferSpeed, issuedAt, repaymentDate time.Time) (Quote, error) {
	baseFee, err := p.BaseFee(speed)
	if err != nil {
		return Quote{}, err
	}
	repaymentDay := truncateDay(repaymentDate)
	days := daysBetween(truncateDay(issuedAt), repaymentDay)
	if days < 1 {
		return Quote{}, ErrRepaymentDateInPast
	}
	if days > p.MaxTermDays {
		return Quote{}, ErrRepaymentTooFar
	}
	quote := Quote{
		AmountMinor:   p.AmountMinor,
		Speed:         speed,
		BaseFeeMinor:  baseFee,
		FinalFeeMinor: baseFee,
		TermDays:      days,
		RepaymentDate: repaymentDay,
	}
	if days <= p.EarlyRepaymentDays && p.EarlyDiscountPercent.IsPositive() {
		discount := p.EarlyDiscountPercent
		factor := decimal.NewFromInt(1).Sub(discount.Div(decimal.NewFromInt(100)))
		finalFee := money.ToDecimal(baseFee).Mul(factor).Round(2)
		quote.FinalFeeMinor = money.FromDecimal(finalFee)
		quote.DiscountPercentage = &discount
	}
	total := money.ToDecimal(p.AmountMinor).Add(money.ToDecimal(quote.FinalFeeMinor)).Round(2)
	quote.TotalMinor = money.FromDecimal(total)
	return quote, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
