package analytics

import (
	"errors"
	"strings"
	"time"

	"blink/internal/models"
)

var (
	ErrInvalidTimeFrame  = errors.New("invalid time frame")
	ErrInvalidWindowMode = errors.New("invalid analytics window mode")
)

type TimeFrame string

const (
	Week    TimeFrame = "week"
	Month   TimeFrame = "month"
	Quarter TimeFrame = "quarter"
	Year    TimeFrame = "year"
)

// WindowMode decides whether a frame means "since the start of the current
// period" or "the trailing period ending now".
type WindowMode string

const (
	ModeToDate   WindowMode = "to_date"
	ModeTrailing WindowMode = "trailing"
)

var timeFrameAliases = map[string]TimeFrame{
	"week":         Week,
	"wtd":          Week,
	"last_week":    Week,
	"weekly":       Week,
	"month":        Month,
	"mtd":          Month,
	"last_month":   Month,
	"monthly":      Month,
	"quarter":      Quarter,
	"qtd":          Quarter,
	"last_quarter": Quarter,
	"quarterly":    Quarter,
	"year":         Year,
	"ytd":          Year,
	"last_year":    Year,
	"yearly":       Year,
}

// ParseTimeFrame accepts every vocabulary the clients send (WTD/MTD/QTD/YTD,
// LAST_WEEK/LAST_MONTH/..., week/month/...). Empty input means month.
func ParseTimeFrame(raw string) (TimeFrame, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return Month, nil
	}
	key = strings.ReplaceAll(key, "-", "_")
	frame, ok := timeFrameAliases[key]
	if !ok {
		return "", ErrInvalidTimeFrame
	}
	return frame, nil
}

func ParseWindowMode(raw string) (WindowMode, error) {
	switch WindowMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeToDate:
		return ModeToDate, nil
	case ModeTrailing:
		return ModeTrailing, nil
	default:
		return "", ErrInvalidWindowMode
	}
}

type Window struct {
	Frame TimeFrame `json:"time_frame"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) Days() int {
	days := int(w.End.Sub(w.Start).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

// Range is the one date-range calculator for every analytics endpoint.
func Range(frame TimeFrame, mode WindowMode, now time.Time) Window {
	now = now.UTC()
	today := startOfDay(now)
	var start time.Time
	if mode == ModeTrailing {
		switch frame {
		case Week:
			start = today.AddDate(0, 0, -7)
		case Quarter:
			start = today.AddDate(0, -3, 0)
		case Year:
			start = today.AddDate(-1, 0, 0)
		default:
			start = today.AddDate(0, -1, 0)
		}
	} else {
		switch frame {
		case Week:
			offset := (int(today.Weekday()) + 6) % 7
			start = today.AddDate(0, 0, -offset)
		case Quarter:
			firstMonth := time.Month((int(today.Month())-1)/3*3 + 1)
			start = time.Date(today.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC)
		case Year:
			start = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		default:
			start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		}
	}
	if frame == "" {
		frame = Month
	}
	return Window{Frame: frame, Start: start, End: now}
}

func Filter(txns []models.Transaction, window Window) []models.Transaction {
	filtered := make([]models.Transaction, 0, len(txns))
	for _, txn := range txns {
		if window.Contains(txn.Date) {
			filtered = append(filtered, txn)
		}
	}
	return filtered
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
