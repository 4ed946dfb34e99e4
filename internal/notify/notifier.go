package notify

import (
	"context"
	"time"
)

const (
	RoutingKeyOTPEmail             = "email.otp"
	RoutingKeyAdvanceStatusChanged = "advance.status_changed"
)

type OTPEmail struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AdvanceStatusChanged struct {
	AdvanceID string    `json:"advance_id"`
	UserID    string    `json:"user_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reference *string   `json:"reference,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// Notifier turns domain events into broker messages. The mail worker behind
// the email.otp queue does the actual delivery.
type Notifier struct {
	publisher Publisher
}

func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

func (n *Notifier) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	return n.publisher.Publish(ctx, RoutingKeyOTPEmail, OTPEmail{Email: email, Code: code, ExpiresAt: expiresAt})
}

func (n *Notifier) AdvanceStatusChanged(ctx context.Context, event AdvanceStatusChanged) error {
	return n.publisher.Publish(ctx, RoutingKeyAdvanceStatusChanged, event)
}
