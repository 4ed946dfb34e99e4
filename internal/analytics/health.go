package analytics

import "math"

const (
	targetIncomeExpenseRatio = 1.5
	targetCoverageMonths     = 6.0
	componentWeight          = 50.0
)

type HealthInput struct {
	MonthlyIncomeMinor  int64
	MonthlyExpenseMinor int64
	BalanceMinor        int64
}

type HealthScore struct {
	Score              int     `json:"score"`
	Label              string  `json:"label"`
	IncomeExpenseRatio float64 `json:"income_expense_ratio"`
	CoverageMonths     float64 `json:"coverage_months"`
	RatioPoints        float64 `json:"ratio_points"`
	CoveragePoints     float64 `json:"coverage_points"`
}

// ScoreHealth rates finances 0..100: half from income over expenses, half
// from how many months of expenses the balance covers.
func ScoreHealth(in HealthInput) HealthScore {
	var out HealthScore
	income := float64(in.MonthlyIncomeMinor)
	expenses := float64(in.MonthlyExpenseMinor)
	balance := float64(in.BalanceMinor)

	if expenses > 0 {
		out.IncomeExpenseRatio = round2(income / expenses)
		out.RatioPoints = clamp(income/expenses/targetIncomeExpenseRatio, 0, 1) * componentWeight
		out.CoverageMonths = round2(math.Max(balance, 0) / expenses)
		out.CoveragePoints = clamp(balance/expenses/targetCoverageMonths, 0, 1) * componentWeight
	} else {
		if income > 0 {
			out.RatioPoints = componentWeight
		}
		if balance > 0 {
			out.CoveragePoints = componentWeight
		}
	}
	out.RatioPoints = round2(out.RatioPoints)
	out.CoveragePoints = round2(out.CoveragePoints)
	out.Score = int(clamp(math.Round(out.RatioPoints+out.CoveragePoints), 0, 100))
	out.Label = healthLabel(out.Score)
	return out
}

func healthLabel(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "poor"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
