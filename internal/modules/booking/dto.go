package booking

import (
	"time"

	"github.com/google/uuid"

	"lingomeet/internal/domain"
)

type CreateBookingRequest struct {
	Quantity int `json:"quantity" binding:"omitempty,min=1"`
}

type BookingResponse struct {
	ID                   uuid.UUID            `json:"id"`
	EventID              int64                `json:"event_id"`
	Quantity             int                  `json:"quantity"`
	AmountCents          int64                `json:"amount_cents"`
	Currency             string               `json:"currency"`
	Status               domain.BookingStatus `json:"status"`
	ExpiresAt            *time.Time           `json:"expires_at,omitempty"`
	IsOrganizerBooking   bool                 `json:"is_organizer_booking"`
	ConfirmedAfterExpiry bool                 `json:"confirmed_after_expiry,omitempty"`
	ConfirmedAt          *time.Time           `json:"confirmed_at,omitempty"`
	CancelledAt          *time.Time           `json:"cancelled_at,omitempty"`
	CancellationReason   string               `json:"cancellation_reason,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
}

func ToResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{
		ID:                   b.PublicID,
		EventID:              b.EventID,
		Quantity:             b.Quantity,
		AmountCents:          b.AmountCents,
		Currency:             b.Currency,
		Status:               b.Status,
		ExpiresAt:            b.ExpiresAt,
		IsOrganizerBooking:   b.IsOrganizerBooking,
		ConfirmedAfterExpiry: b.ConfirmedAfterExpiry,
		ConfirmedAt:          b.ConfirmedAt,
		CancelledAt:          b.CancelledAt,
		CancellationReason:   b.CancellationReason,
		CreatedAt:            b.CreatedAt,
	}
}

// ConfirmInput carries the payment that settles a booking.
type ConfirmInput struct {
	Reference string
	Provider  string
	// AllowLate confirms a hold that already ran out instead of failing.
	AllowLate bool
}

type ConfirmResult struct {
	Booking *domain.Booking
	// Changed is false when the booking was already confirmed with this payment.
	Changed   bool
	Late      bool
	Published bool
}
