package advance

import (
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDisbursed Status = "disbursed"
	StatusRepaid    Status = "repaid"
	StatusDefaulted Status = "defaulted"
	StatusCancelled Status = "cancelled"
)

var ErrUnknownStatus = errors.New("unknown advance status")

var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusDisbursed, StatusCancelled},
	StatusDisbursed: {StatusRepaid, StatusDefaulted},
	StatusRepaid:    nil,
	StatusDefaulted: nil,
	StatusCancelled: nil,
}

var timestampColumns = map[Status]string{
	StatusApproved:  "approved_at",
	StatusDisbursed: "disbursed_at",
	StatusRepaid:    "repaid_at",
	StatusDefaulted: "defaulted_at",
	StatusCancelled: "cancelled_at",
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Cannot transition from %s to %s.", e.From, e.To)
}

func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[status]; !ok {
		return "", ErrUnknownStatus
	}
	return status, nil
}

// Transition allows only the edges listed in the transition table.
func Transition(from, to Status) error {
	allowed, ok := transitions[from]
	if !ok {
		return ErrUnknownStatus
	}
	if _, ok := transitions[to]; !ok {
		return ErrUnknownStatus
	}
	for _, next := range allowed {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

func IsActive(status Status) bool {
	return status == StatusPending || status == StatusApproved || status == StatusDisbursed
}

func IsTerminal(status Status) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

func ActiveStatuses() []string {
	return []string{string(StatusPending), string(StatusApproved), string(StatusDisbursed)}
}

// TimestampColumn names the column stamped when an advance enters status.
func TimestampColumn(status Status) (string, bool) {
	column, ok := timestampColumns[status]
	return column, ok
}
