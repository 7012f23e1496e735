package booking

import (
	"context"

	"lingomeet/internal/domain"
	"lingomeet/internal/repository"
)

// EventPublisher publishes an event once its publish fee is confirmed.
// It runs inside the caller's transaction.
type EventPublisher interface {
	MaybePublishTx(ctx context.Context, tx *repository.Store, eventID int64) (bool, error)
}

// Refunder returns money for bookings that were cancelled after payment.
type Refunder interface {
	RefundBookings(ctx context.Context, bookings []domain.Booking)
}
