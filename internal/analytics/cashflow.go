package analytics

import (
	"blink/internal/models"

	"github.com/shopspring/decimal"
)

type CashFlowReport struct {
	Window           Window          `json:"window"`
	Granularity      Granularity     `json:"granularity"`
	IncomeMinor      int64           `json:"total_income"`
	ExpenseMinor     int64           `json:"total_expenses"`
	NetMinor         int64           `json:"net_cash_flow"`
	SavingsRate      float64         `json:"savings_rate"`
	TransactionCount int             `json:"transaction_count"`
	Categories       []CategoryTotal `json:"categories"`
	Segments         []Segment       `json:"segments"`
}

// Totals returns income (as a positive number) and expenses for txns.
func Totals(txns []models.Transaction) (income, expenses int64) {
	for _, txn := range txns {
		if txn.Amount < 0 {
			income += -txn.Amount
		} else {
			expenses += txn.Amount
		}
	}
	return income, expenses
}

func CashFlow(txns []models.Transaction, window Window) CashFlowReport {
	inWindow := Filter(txns, window)
	income, expenses := Totals(inWindow)
	report := CashFlowReport{
		Window:           window,
		Granularity:      GranularityFor(window),
		IncomeMinor:      income,
		ExpenseMinor:     expenses,
		NetMinor:         income - expenses,
		TransactionCount: len(inWindow),
		Categories:       CategoryBreakdown(inWindow),
		Segments:         Segments(inWindow, window),
	}
	if income > 0 {
		report.SavingsRate = percentOf(report.NetMinor, income)
	}
	return report
}

// MonthlyAverages scales window totals to a 30-day month.
func MonthlyAverages(txns []models.Transaction, window Window) (income, expenses int64) {
	income, expenses = Totals(Filter(txns, window))
	days := decimal.NewFromInt(int64(window.Days()))
	month := decimal.NewFromInt(30)
	income = decimal.NewFromInt(income).Mul(month).Div(days).Round(0).IntPart()
	expenses = decimal.NewFromInt(expenses).Mul(month).Div(days).Round(0).IntPart()
	return income, expenses
}
