package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeProvider struct {
	client        *stripe.Client
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		client:        stripe.NewClient(secretKey),
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"booking_id": req.BookingPublicID,
			"organizer":  fmt.Sprint(req.Organizer),
		},
	}
	// retries for the same booking get the same intent back
	params.SetIdempotencyKey("booking-intent-" + req.BookingPublicID)

	pi, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return &Intent{Reference: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (p *StripeProvider) Succeeded(ctx context.Context, reference string) (bool, error) {
	pi, err := p.client.V1PaymentIntents.Retrieve(ctx, reference, nil)
	if err != nil {
		return false, err
	}
	return pi.Status == stripe.PaymentIntentStatusSucceeded, nil
}

func (p *StripeProvider) Refund(ctx context.Context, reference string, amountCents int64) error {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(reference),
		Amount:        stripe.Int64(amountCents),
	}
	params.SetIdempotencyKey("refund-" + reference)
	_, err := p.client.V1Refunds.Create(ctx, params)
	return err
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}

	out := &WebhookEvent{ID: event.ID, Type: WebhookIgnored}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Type = WebhookEventType(event.Type)
		out.Reference = pi.ID
		out.AmountCents = pi.Amount
		out.Currency = string(pi.Currency)
		if pi.LastPaymentError != nil {
			out.FailureReason = pi.LastPaymentError.Msg
		}
	}
	return out, nil
}
