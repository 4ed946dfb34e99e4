package analytics

import (
	"time"

	"blink/internal/models"
)

type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// GranularityFor picks the bucket size so a chart never has more than about
// fourteen points.
func GranularityFor(window Window) Granularity {
	days := window.Days()
	switch {
	case days <= 14:
		return Daily
	case days <= 93:
		return Weekly
	default:
		return Monthly
	}
}

type Segment struct {
	Label        string    `json:"label"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	IncomeMinor  int64     `json:"income"`
	ExpenseMinor int64     `json:"expenses"`
	NetMinor     int64     `json:"net"`
}

// Segments splits the window into contiguous buckets and totals the
// transactions that fall into each one. Transactions outside the window are
// ignored.
func Segments(txns []models.Transaction, window Window) []Segment {
	granularity := GranularityFor(window)
	var segments []Segment
	for start := window.Start; !start.After(window.End); {
		next := nextBoundary(start, granularity)
		end := next.Add(-time.Nanosecond)
		if end.After(window.End) {
			end = window.End
		}
		segments = append(segments, Segment{
			Label: segmentLabel(start, granularity),
			Start: start,
			End:   end,
		})
		start = next
	}

	for _, txn := range txns {
		if !window.Contains(txn.Date) {
			continue
		}
		for i := range segments {
			if txn.Date.Before(segments[i].Start) || txn.Date.After(segments[i].End) {
				continue
			}
			if txn.Amount < 0 {
				segments[i].IncomeMinor += -txn.Amount
			} else {
				segments[i].ExpenseMinor += txn.Amount
			}
			segments[i].NetMinor = segments[i].IncomeMinor - segments[i].ExpenseMinor
			break
		}
	}
	return segments
}

func nextBoundary(start time.Time, granularity Granularity) time.Time {
	switch granularity {
	case Daily:
		return start.AddDate(0, 0, 1)
	case Weekly:
		return start.AddDate(0, 0, 7)
	default:
		return time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	}
}

func segmentLabel(start time.Time, granularity Granularity) string {
	switch granularity {
	case Monthly:
		return start.Format("Jan 2006")
	case Weekly:
		return "Week of " + start.Format("Jan 2")
	default:
		return start.Format("Mon Jan 2")
	}
}
