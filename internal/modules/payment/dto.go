package payment

import "lingomeet/internal/modules/booking"

type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

type IntentResponse struct {
	Booking      booking.BookingResponse `json:"booking"`
	Provider     string                  `json:"provider,omitempty"`
	Reference    string                  `json:"payment_intent_id,omitempty"`
	ClientSecret string                  `json:"client_secret,omitempty"`
	// Confirmed is set when no payment is needed.
	Confirmed bool `json:"confirmed"`
}

type ConfirmResponse struct {
	Booking              booking.BookingResponse `json:"booking"`
	EventPublished       bool                    `json:"event_published"`
	ConfirmedAfterExpiry bool                    `json:"confirmed_after_expiry"`
}
