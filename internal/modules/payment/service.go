package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lingomeet/internal/config"
	"lingomeet/internal/domain"
	"lingomeet/internal/modules/booking"
	"lingomeet/internal/repository"
)

type Service struct {
	store    *repository.Store
	provider Provider
	bookings bookingConfirmer
	events   eventMarker
	refunder refunder
	cfg      config.Lifecycle
	log      logrus.FieldLogger
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	store *repository.Store,
	provider Provider,
	bookings bookingConfirmer,
	events eventMarker,
	refunder refunder,
	cfg config.Lifecycle,
	log logrus.FieldLogger,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		bookings: bookings,
		events:   events,
		refunder: refunder,
		cfg:      cfg,
		log:      log.WithField("component", "payment"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Provider() string { return s.provider.Name() }

type IntentResult struct {
	Booking      *domain.Booking
	Reference    string
	ClientSecret string
	Confirmed    bool
}

// CreateIntent starts payment for a pending booking. Free and already
// confirmed bookings need no payment and come back confirmed.
func (s *Service) CreateIntent(ctx context.Context, actor domain.Actor, publicID uuid.UUID) (*IntentResult, error) {
	b, err := s.ownedBooking(ctx, actor, publicID)
	if err != nil {
		return nil, err
	}
	if res, err := settledIntent(b); res != nil || err != nil {
		return res, err
	}

	now := s.now().UTC()
	if b.Expired(now) {
		if b, err = s.expireHold(ctx, b, now); err != nil {
			return nil, err
		}
		if res, err := settledIntent(b); res != nil || err != nil {
			return res, err
		}
	}
	if b.Free() {
		res, err := s.bookings.Confirm(ctx, b.ID, booking.ConfirmInput{})
		if err != nil {
			return nil, err
		}
		return &IntentResult{Booking: res.Booking, Confirmed: true}, nil
	}

	intent, err := s.provider.CreateIntent(ctx, IntentRequest{
		BookingPublicID: b.PublicID.String(),
		AmountCents:     b.AmountCents,
		Currency:        b.Currency,
		Organizer:       b.IsOrganizerBooking,
	})
	if err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Error("create payment intent failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentProvider, err)
	}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		ok, err := tx.Bookings.SetPaymentIntent(ctx, b.ID, intent.Reference)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		if err := tx.Payments.Create(ctx, &domain.Payment{
			BookingID:   b.ID,
			Provider:    s.provider.Name(),
			Reference:   intent.Reference,
			AmountCents: b.AmountCents,
			Currency:    b.Currency,
			Status:      domain.PaymentCreated,
		}); err != nil {
			return err
		}
		if b.IsOrganizerBooking {
			if _, err := s.events.MarkPendingConfirmationTx(ctx, tx, b.EventID); err != nil {
				return err
			}
		}
		b, err = tx.Bookings.GetByID(ctx, b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"reference":  intent.Reference,
		"provider":   s.provider.Name(),
	}).Info("payment intent created")
	return &IntentResult{Booking: b, Reference: intent.Reference, ClientSecret: intent.ClientSecret}, nil
}

// ConfirmPayment is the synchronous confirmation called by the client after
// paying. Unlike the webhook it never confirms an expired hold.
func (s *Service) ConfirmPayment(ctx context.Context, actor domain.Actor, publicID uuid.UUID, reference string) (*booking.ConfirmResult, error) {
	if reference == "" {
		return nil, domain.ErrValidation
	}
	b, err := s.ownedBooking(ctx, actor, publicID)
	if err != nil {
		return nil, err
	}

	p, err := s.store.Payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p.BookingID != b.ID {
		return nil, domain.ErrPaymentMismatch
	}

	now := s.now().UTC()
	if b.Expired(now) {
		if b, err = s.expireHold(ctx, b, now); err != nil {
			return nil, err
		}
	}

	if b.Status == domain.BookingPending {
		ok, err := s.provider.Succeeded(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPaymentProvider, err)
		}
		if !ok {
			return nil, domain.ErrPaymentIncomplete
		}
	}

	return s.bookings.Confirm(ctx, b.ID, booking.ConfirmInput{
		Reference: reference,
		Provider:  s.provider.Name(),
	})
}

// HandleWebhook processes a provider notification. Unknown payments and
// repeated deliveries are acknowledged without changes.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		s.log.WithError(err).Warn("webhook rejected")
		return domain.ErrInvalidSignature
	}
	log := s.log.WithFields(logrus.Fields{"webhook_id": ev.ID, "type": ev.Type, "reference": ev.Reference})

	switch ev.Type {
	case WebhookPaymentSucceeded:
		return s.paymentSucceeded(ctx, log, ev)
	case WebhookPaymentFailed:
		changed, err := s.store.Payments.MarkFailed(ctx, ev.Reference, ev.FailureReason)
		if err != nil {
			return err
		}
		if changed {
			log.Info("payment failed")
		}
		return nil
	}
	log.Debug("webhook ignored")
	return nil
}

func (s *Service) paymentSucceeded(ctx context.Context, log logrus.FieldLogger, ev *WebhookEvent) error {
	b, err := s.bookingForReference(ctx, ev.Reference)
	if errors.Is(err, domain.ErrBookingNotFound) {
		log.Warn("payment for unknown booking")
		return nil
	}
	if err != nil {
		return err
	}

	res, err := s.bookings.Confirm(ctx, b.ID, booking.ConfirmInput{
		Reference: ev.Reference,
		Provider:  s.provider.Name(),
		AllowLate: s.cfg.AllowLateConfirmation,
	})
	switch {
	case err == nil:
		if res.Late {
			log.WithField("booking_id", b.ID).Warn("booking confirmed after its hold expired")
		}
		return nil
	case errors.Is(err, domain.ErrBookingExpired), errors.Is(err, domain.ErrBookingCancelled):
		// the money arrived for a booking that no longer holds a place
		return s.refundOrphan(ctx, log, b, ev)
	case errors.Is(err, domain.ErrPaymentMismatch):
		log.WithField("booking_id", b.ID).Warn("second payment for a confirmed booking")
		return s.refundOrphan(ctx, log, b, ev)
	}
	return err
}

// refundOrphan records a payment that cannot settle its booking and pays it back.
func (s *Service) refundOrphan(ctx context.Context, log logrus.FieldLogger, b *domain.Booking, ev *WebhookEvent) error {
	now := s.now().UTC()
	if b.Status == domain.BookingPending {
		if _, err := s.store.Bookings.ExpireIfDue(ctx, b.ID, now); err != nil {
			return err
		}
	}
	p, err := s.store.Payments.GetByReference(ctx, ev.Reference)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return err
	}
	if p != nil && p.Status == domain.PaymentRefunded {
		return nil
	}

	orphan := &domain.Payment{
		BookingID:   b.ID,
		Provider:    s.provider.Name(),
		Reference:   ev.Reference,
		AmountCents: ev.AmountCents,
		Currency:    ev.Currency,
	}
	if err := s.store.Payments.MarkSucceeded(ctx, orphan, now); err != nil {
		return err
	}
	log.WithField("booking_id", b.ID).Warn("refunding payment for inactive booking")
	return s.refunder.RefundPayment(ctx, *orphan)
}

func (s *Service) bookingForReference(ctx context.Context, reference string) (*domain.Booking, error) {
	b, err := s.store.Bookings.GetByPaymentIntent(ctx, reference)
	if err == nil || !errors.Is(err, domain.ErrBookingNotFound) {
		return b, err
	}
	p, err := s.store.Payments.GetByReference(ctx, reference)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.store.Bookings.GetByID(ctx, p.BookingID)
}

func (s *Service) ownedBooking(ctx context.Context, actor domain.Actor, publicID uuid.UUID) (*domain.Booking, error) {
	b, err := s.store.Bookings.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if b.UserID != actor.UserID && !actor.Privileged() {
		return nil, domain.ErrBookingNotFound
	}
	return b, nil
}

// expireHold cancels a run-out hold and reports ErrBookingExpired. When
// another transition got there first it returns the booking as it is now.
func (s *Service) expireHold(ctx context.Context, b *domain.Booking, now time.Time) (*domain.Booking, error) {
	expired, err := s.store.Bookings.ExpireIfDue(ctx, b.ID, now)
	if err != nil {
		return nil, err
	}
	if !expired {
		return s.store.Bookings.GetByID(ctx, b.ID)
	}
	s.log.WithField("booking_id", b.ID).Info("expired hold cancelled on payment")
	return nil, domain.ErrBookingExpired
}

// settledIntent answers for a booking that needs no new payment intent.
func settledIntent(b *domain.Booking) (*IntentResult, error) {
	switch b.Status {
	case domain.BookingCancelled:
		return nil, domain.ErrBookingCancelled
	case domain.BookingConfirmed:
		return &IntentResult{Booking: b, Confirmed: true}, nil
	}
	return nil, nil
}
