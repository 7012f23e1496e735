package event

import (
	"context"

	"lingomeet/internal/domain"
)

// Refunder returns money for bookings cancelled together with their event.
type Refunder interface {
	RefundBookings(ctx context.Context, bookings []domain.Booking)
}
