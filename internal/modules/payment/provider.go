package payment

import "context"

type IntentRequest struct {
	BookingPublicID string
	AmountCents     int64
	Currency        string
	Organizer       bool
}

type Intent struct {
	Reference    string
	ClientSecret string
}

type WebhookEventType string

const (
	WebhookPaymentSucceeded WebhookEventType = "payment_intent.succeeded"
	WebhookPaymentFailed    WebhookEventType = "payment_intent.payment_failed"
	WebhookIgnored          WebhookEventType = "ignored"
)

// WebhookEvent is a verified provider notification reduced to what the
// booking flow needs.
type WebhookEvent struct {
	ID            string
	Type          WebhookEventType
	Reference     string
	AmountCents   int64
	Currency      string
	FailureReason string
}

// Provider is the payment gateway. Calls may block on the network and must
// not run inside a database transaction.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// Succeeded asks the gateway whether the payment behind reference went through.
	Succeeded(ctx context.Context, reference string) (bool, error)
	Refund(ctx context.Context, reference string, amountCents int64) error
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
