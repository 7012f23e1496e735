package payment

import (
	"context"

	"lingomeet/internal/domain"
	"lingomeet/internal/modules/booking"
	"lingomeet/internal/repository"
)

type bookingConfirmer interface {
	Confirm(ctx context.Context, bookingID int64, in booking.ConfirmInput) (*booking.ConfirmResult, error)
}

type eventMarker interface {
	MarkPendingConfirmationTx(ctx context.Context, tx *repository.Store, eventID int64) (bool, error)
}

type refunder interface {
	RefundPayment(ctx context.Context, p domain.Payment) error
}
