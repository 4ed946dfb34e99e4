package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"blink/internal/models"

	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "bi-weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
)

const unusualChangeThreshold = 0.10

// Maximum standard deviation of the gap between charges, in days, for a group
// to still count as recurring over the given frame.
var gapStdDevThreshold = map[TimeFrame]float64{
	Week:    2,
	Month:   4,
	Quarter: 7,
	Year:    10,
}

type RecurringExpense struct {
	Merchant          string    `json:"merchant"`
	Category          string    `json:"category"`
	AmountMinor       int64     `json:"amount"`
	Occurrences       int       `json:"occurrences"`
	Frequency         Frequency `json:"frequency"`
	MeanGapDays       float64   `json:"average_interval_days"`
	StdDevGapDays     float64   `json:"interval_std_dev_days"`
	LastDate          time.Time `json:"last_date"`
	NextExpectedDate  time.Time `json:"next_expected_date"`
	MonthlyCostMinor  int64     `json:"monthly_cost"`
	LatestAmountMinor int64     `json:"latest_amount"`
	ChangePercent     float64   `json:"change_percent"`
	UnusualChange     bool      `json:"unusual_change"`
}

type groupKey struct {
	merchant string
	amount   int64
}

// DetectRecurring finds expenses charged at least twice for the same amount
// by the same merchant at a regular interval. A group is flagged when the
// merchant's latest charge after it differs from its amount by more than 10%.
// A one-off charge counts against the merchant's recurring group with the
// closest amount; charges of another recurring group never do.
func DetectRecurring(txns []models.Transaction, frame TimeFrame) []RecurringExpense {
	threshold, ok := gapStdDevThreshold[frame]
	if !ok {
		threshold = gapStdDevThreshold[Month]
	}

	groups := make(map[groupKey][]models.Transaction)
	byMerchant := make(map[string][]models.Transaction)
	for _, txn := range txns {
		if txn.Amount <= 0 {
			continue
		}
		merchant := merchantKey(txn)
		if merchant == "" {
			continue
		}
		key := groupKey{merchant: merchant, amount: txn.Amount}
		groups[key] = append(groups[key], txn)
		byMerchant[merchant] = append(byMerchant[merchant], txn)
	}

	var found []RecurringExpense
	var keys []groupKey
	recurring := make(map[groupKey]bool)
	for key, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })
		mean, stddev := gapStats(group)
		if mean <= 0 || stddev > threshold {
			continue
		}
		recurring[key] = true
		keys = append(keys, key)
		last := group[len(group)-1]
		frequency := classify(mean)
		found = append(found, RecurringExpense{
			Merchant:          displayMerchant(last),
			Category:          NormalizeCategory(last.Category),
			AmountMinor:       key.amount,
			Occurrences:       len(group),
			Frequency:         frequency,
			MeanGapDays:       round2(mean),
			StdDevGapDays:     round2(stddev),
			LastDate:          last.Date,
			NextExpectedDate:  last.Date.AddDate(0, 0, int(math.Round(mean))),
			MonthlyCostMinor:  MonthlyEquivalent(key.amount, frequency),
			LatestAmountMinor: key.amount,
		})
	}

	for i := range found {
		item := &found[i]
		merchant := keys[i].merchant
		var latest *models.Transaction
		for j, txn := range byMerchant[merchant] {
			if recurring[groupKey{merchant: merchant, amount: txn.Amount}] || txn.Date.Before(item.LastDate) {
				continue
			}
			if nearestAmount(keys, merchant, txn.Amount) != item.AmountMinor {
				continue
			}
			if latest == nil || txn.Date.After(latest.Date) {
				latest = &byMerchant[merchant][j]
			}
		}
		if latest == nil {
			continue
		}
		change := float64(latest.Amount-item.AmountMinor) / float64(item.AmountMinor)
		item.LatestAmountMinor = latest.Amount
		item.ChangePercent = round2(change * 100)
		item.UnusualChange = math.Abs(change) > unusualChangeThreshold
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].AmountMinor != found[j].AmountMinor {
			return found[i].AmountMinor > found[j].AmountMinor
		}
		return found[i].Merchant < found[j].Merchant
	})
	return found
}

// nearestAmount picks the merchant's recurring amount closest to amount,
// preferring the smaller one on a tie.
func nearestAmount(keys []groupKey, merchant string, amount int64) int64 {
	best, bestDiff := int64(0), int64(-1)
	for _, key := range keys {
		if key.merchant != merchant {
			continue
		}
		diff := key.amount - amount
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff || (diff == bestDiff && key.amount < best) {
			best, bestDiff = key.amount, diff
		}
	}
	return best
}

// MonthlyEquivalent converts a charge at the given frequency to a monthly cost.
func MonthlyEquivalent(amount int64, frequency Frequency) int64 {
	value := decimal.NewFromInt(amount)
	switch frequency {
	case FrequencyWeekly:
		value = value.Mul(decimal.NewFromInt(52)).Div(decimal.NewFromInt(12))
	case FrequencyBiWeekly:
		value = value.Mul(decimal.NewFromInt(26)).Div(decimal.NewFromInt(12))
	case FrequencyQuarterly:
		value = value.Div(decimal.NewFromInt(3))
	case FrequencyAnnual:
		value = value.Div(decimal.NewFromInt(12))
	}
	return value.Round(0).IntPart()
}

func classify(meanGapDays float64) Frequency {
	switch {
	case meanGapDays <= 10:
		return FrequencyWeekly
	case meanGapDays <= 20:
		return FrequencyBiWeekly
	case meanGapDays <= 45:
		return FrequencyMonthly
	case meanGapDays <= 120:
		return FrequencyQuarterly
	default:
		return FrequencyAnnual
	}
}

func gapStats(sorted []models.Transaction) (mean, stddev float64) {
	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Date.Sub(sorted[i-1].Date).Hours()/24)
	}
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	return mean, math.Sqrt(variance)
}

func merchantKey(txn models.Transaction) string {
	return strings.Join(strings.Fields(strings.ToLower(displayMerchant(txn))), " ")
}

func displayMerchant(txn models.Transaction) string {
	if name := strings.TrimSpace(txn.MerchantName); name != "" {
		return name
	}
	return strings.TrimSpace(txn.Name)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
