package analytics

import (
	"sort"
	"strings"

	"blink/internal/models"

	"github.com/shopspring/decimal"
)

const (
	CategoryFood          = "Food & Dining"
	CategoryShopping      = "Shopping"
	CategoryTransport     = "Transportation"
	CategoryTravel        = "Travel"
	CategoryBills         = "Bills & Utilities"
	CategoryEntertainment = "Entertainment"
	CategoryHealth        = "Health & Fitness"
	CategoryPersonalCare  = "Personal Care"
	CategoryServices      = "Services"
	CategoryLoansFees     = "Loans & Fees"
	CategoryTransfers     = "Transfers"
	CategoryIncome        = "Income"
	CategoryOther         = "Other"
)

var categoryLookup = map[string]string{
	// personal finance categories
	"FOOD_AND_DRINK":            CategoryFood,
	"GENERAL_MERCHANDISE":       CategoryShopping,
	"HOME_IMPROVEMENT":          CategoryShopping,
	"TRANSPORTATION":            CategoryTransport,
	"TRAVEL":                    CategoryTravel,
	"RENT_AND_UTILITIES":        CategoryBills,
	"ENTERTAINMENT":             CategoryEntertainment,
	"MEDICAL":                   CategoryHealth,
	"PERSONAL_CARE":             CategoryPersonalCare,
	"GENERAL_SERVICES":          CategoryServices,
	"GOVERNMENT_AND_NON_PROFIT": CategoryServices,
	"LOAN_PAYMENTS":             CategoryLoansFees,
	"BANK_FEES":                 CategoryLoansFees,
	"TRANSFER_IN":               CategoryTransfers,
	"TRANSFER_OUT":              CategoryTransfers,
	"INCOME":                    CategoryIncome,
	// legacy hierarchy
	"RESTAURANTS":   CategoryFood,
	"GROCERIES":     CategoryFood,
	"SHOPS":         CategoryShopping,
	"TAXI":          CategoryTransport,
	"GAS_STATIONS":  CategoryTransport,
	"AIRLINES":      CategoryTravel,
	"UTILITIES":     CategoryBills,
	"RENT":          CategoryBills,
	"RECREATION":    CategoryEntertainment,
	"HEALTHCARE":    CategoryHealth,
	"SERVICE":       CategoryServices,
	"TAX":           CategoryServices,
	"PAYMENT":       CategoryLoansFees,
	"INTEREST":      CategoryLoansFees,
	"TRANSFER":      CategoryTransfers,
	"PAYROLL":       CategoryIncome,
	"DEPOSIT":       CategoryIncome,
}

// NormalizeCategory maps a raw aggregator category ("FOOD_AND_DRINK",
// "Food and Drink, Restaurants") to a display bucket.
func NormalizeCategory(raw string) string {
	first, _, _ := strings.Cut(raw, ",")
	key := categoryKey(first)
	if key == "" {
		return CategoryOther
	}
	if bucket, ok := categoryLookup[key]; ok {
		return bucket
	}
	return CategoryOther
}

func categoryKey(raw string) string {
	var b strings.Builder
	pendingSep := false
	upper := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), "&", " AND ")
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

type CategoryTotal struct {
	Category    string  `json:"category"`
	AmountMinor int64   `json:"amount"`
	Count       int     `json:"transaction_count"`
	Percentage  float64 `json:"percentage"`
}

// CategoryBreakdown sums expenses (positive amounts) per bucket. An empty or
// expense-free input yields an empty breakdown.
func CategoryBreakdown(txns []models.Transaction) []CategoryTotal {
	totals := make(map[string]*CategoryTotal)
	var grand int64
	for _, txn := range txns {
		if txn.Amount <= 0 {
			continue
		}
		bucket := NormalizeCategory(txn.Category)
		entry, ok := totals[bucket]
		if !ok {
			entry = &CategoryTotal{Category: bucket}
			totals[bucket] = entry
		}
		entry.AmountMinor += txn.Amount
		entry.Count++
		grand += txn.Amount
	}
	breakdown := make([]CategoryTotal, 0, len(totals))
	if grand == 0 {
		return breakdown
	}
	for _, entry := range totals {
		entry.Percentage = percentOf(entry.AmountMinor, grand)
		breakdown = append(breakdown, *entry)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].AmountMinor != breakdown[j].AmountMinor {
			return breakdown[i].AmountMinor > breakdown[j].AmountMinor
		}
		return breakdown[i].Category < breakdown[j].Category
	})
	return breakdown
}

func percentOf(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	value, _ := decimal.NewFromInt(part).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(whole)).Round(2).Float64()
	return value
}
