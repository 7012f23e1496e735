package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"lingomeet/internal/domain"
	"lingomeet/internal/repository"
)

// Refunder pays back succeeded payments of cancelled bookings. Failures are
// logged and left in succeeded state for a retry.
type Refunder struct {
	store    *repository.Store
	provider Provider
	log      logrus.FieldLogger
	now      func() time.Time
}

type RefunderOption func(*Refunder)

// WithRefundClock replaces time.Now for refund timestamps.
func WithRefundClock(now func() time.Time) RefunderOption {
	return func(r *Refunder) { r.now = now }
}

func NewRefunder(store *repository.Store, provider Provider, log logrus.FieldLogger, opts ...RefunderOption) *Refunder {
	r := &Refunder{
		store:    store,
		provider: provider,
		log:      log.WithField("component", "refunds"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Refunder) RefundBookings(ctx context.Context, bookings []domain.Booking) {
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	payments, err := r.store.Payments.ListSucceededForBookings(ctx, ids)
	if err != nil {
		r.log.WithError(err).Error("list payments to refund failed")
		return
	}

	for _, p := range payments {
		if err := r.RefundPayment(ctx, p); err != nil {
			r.log.WithError(err).WithField("reference", p.Reference).Error("refund failed")
		}
	}
}

// RefundPayment pays back one succeeded payment and marks it refunded.
func (r *Refunder) RefundPayment(ctx context.Context, p domain.Payment) error {
	if err := r.provider.Refund(ctx, p.Reference, p.AmountCents); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPaymentProvider, err)
	}
	if _, err := r.store.Payments.MarkRefunded(ctx, p.Reference, r.now().UTC()); err != nil {
		return fmt.Errorf("mark payment %s refunded: %w", p.Reference, err)
	}
	r.log.WithFields(logrus.Fields{"booking_id": p.BookingID, "reference": p.Reference}).Info("payment refunded")
	return nil
}
