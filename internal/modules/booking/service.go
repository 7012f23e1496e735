package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lingomeet/internal/config"
	"lingomeet/internal/domain"
	"lingomeet/internal/pkg/batch"
	"lingomeet/internal/repository"
)

const (
	reasonUserCancelled  = "cancelled by user"
	reasonAdminCancelled = "cancelled by admin"
	reasonExpired        = "expired"
	reasonReplaced       = "expired, replaced by new booking"
)

type Service struct {
	store    *repository.Store
	events   EventPublisher
	refunder Refunder
	cfg      config.Lifecycle
	log      logrus.FieldLogger
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store *repository.Store, events EventPublisher, refunder Refunder, cfg config.Lifecycle, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		events:   events,
		refunder: refunder,
		cfg:      cfg,
		log:      log.WithField("component", "booking"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create reserves quantity places on the event for the actor. Paid bookings
// start as a pending hold that expires after the booking TTL; free ones are
// confirmed right away.
func (s *Service) Create(ctx context.Context, actor domain.Actor, eventID int64, quantity int) (*domain.Booking, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	now := s.now().UTC()

	var created *domain.Booking
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		event, err := tx.Events.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != domain.EventDraft && event.Status != domain.EventPublished {
			return domain.ErrEventNotBookable
		}
		if event.Started(now) {
			return domain.ErrEventNotBookable
		}

		existing, err := tx.Bookings.FindPending(ctx, actor.UserID, eventID)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.Expired(now) {
				return domain.ErrDuplicateBooking
			}
			// a stale hold the expiry job has not reached yet
			if _, err := tx.Bookings.ExpireIfDue(ctx, existing.ID, now); err != nil {
				return err
			}
			s.log.WithField("booking_id", existing.ID).Info(reasonReplaced)
		}

		reserved, err := tx.Bookings.ReservedQuantity(ctx, eventID, now)
		if err != nil {
			return err
		}
		if reserved+quantity > event.MaxParticipants {
			return domain.ErrCapacityExceeded
		}

		b := &domain.Booking{
			UserID:      actor.UserID,
			EventID:     eventID,
			Quantity:    quantity,
			AmountCents: event.PriceCents * int64(quantity),
			Currency:    event.Currency,
			Status:      domain.BookingPending,
		}
		if b.Free() {
			b.Status = domain.BookingConfirmed
			b.ConfirmedAt = &now
		} else {
			expires := now.Add(s.cfg.BookingTTL)
			b.ExpiresAt = &expires
		}
		if err := tx.Bookings.Create(ctx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": created.ID,
		"event_id":   eventID,
		"user_id":    actor.UserID,
		"status":     created.Status,
	}).Info("booking created")
	return created, nil
}

// Get returns a booking visible to the actor. A pending hold that has run
// out is expired on the way.
func (s *Service) Get(ctx context.Context, actor domain.Actor, publicID uuid.UUID) (*domain.Booking, error) {
	b, err := s.store.Bookings.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if b.UserID != actor.UserID && !actor.Privileged() {
		return nil, domain.ErrBookingNotFound
	}
	now := s.now().UTC()
	if b.Expired(now) {
		expired, err := s.store.Bookings.ExpireIfDue(ctx, b.ID, now)
		if err != nil {
			return nil, err
		}
		if expired {
			return s.store.Bookings.GetByID(ctx, b.ID)
		}
	}
	return b, nil
}

func (s *Service) ListForUser(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	return s.store.Bookings.ListByUser(ctx, actor.UserID)
}

// Confirm settles a booking in its own transaction.
func (s *Service) Confirm(ctx context.Context, bookingID int64, in ConfirmInput) (*ConfirmResult, error) {
	var res *ConfirmResult
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		res, err = s.ConfirmTx(ctx, tx, bookingID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Changed {
		s.log.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"event_id":   res.Booking.EventID,
			"late":       res.Late,
			"published":  res.Published,
		}).Info("booking confirmed")
	}
	return res, nil
}

// ConfirmTx moves a pending booking to confirmed inside tx, records the
// payment and lets the event publish. Confirming again with the same
// payment changes nothing.
func (s *Service) ConfirmTx(ctx context.Context, tx *repository.Store, bookingID int64, in ConfirmInput) (*ConfirmResult, error) {
	now := s.now().UTC()

	b, err := tx.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if done, err := settled(b, in.Reference); done || err != nil {
		return &ConfirmResult{Booking: b}, err
	}

	late := b.Expired(now)
	if late && !in.AllowLate {
		return nil, domain.ErrBookingExpired
	}
	if late && !b.IsOrganizerBooking {
		if err := s.placeStillFree(ctx, tx, b, now); err != nil {
			return nil, err
		}
	}

	ok, err := tx.Bookings.MarkConfirmed(ctx, b.ID, in.Reference, late, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost against expiry or another confirm
		if b, err = tx.Bookings.GetByID(ctx, bookingID); err != nil {
			return nil, err
		}
		if done, err := settled(b, in.Reference); done || err != nil {
			return &ConfirmResult{Booking: b}, err
		}
		return nil, domain.ErrConcurrentUpdate
	}

	if in.Reference != "" && !b.Free() {
		err := tx.Payments.MarkSucceeded(ctx, &domain.Payment{
			BookingID:   b.ID,
			Provider:    in.Provider,
			Reference:   in.Reference,
			AmountCents: b.AmountCents,
			Currency:    b.Currency,
		}, now)
		if err != nil {
			return nil, fmt.Errorf("record payment: %w", err)
		}
	}

	published, err := s.events.MaybePublishTx(ctx, tx, b.EventID)
	if err != nil {
		return nil, fmt.Errorf("publish event %d: %w", b.EventID, err)
	}

	b, err = tx.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Booking: b, Changed: true, Late: late, Published: published}, nil
}

// placeStillFree rechecks capacity for an expired hold, which stopped
// counting towards the event once it ran out. ReservedQuantity already
// leaves b out for the same reason.
func (s *Service) placeStillFree(ctx context.Context, tx *repository.Store, b *domain.Booking, now time.Time) error {
	event, err := tx.Events.GetForUpdate(ctx, b.EventID)
	if err != nil {
		return err
	}
	reserved, err := tx.Bookings.ReservedQuantity(ctx, b.EventID, now)
	if err != nil {
		return err
	}
	if reserved+b.Quantity > event.MaxParticipants {
		s.log.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"event_id":   b.EventID,
		}).Warn("expired hold lost its place")
		return domain.ErrBookingExpired
	}
	return nil
}

// settled reports whether b is already past pending. A confirmed booking is
// fine when reference matches or is empty.
func settled(b *domain.Booking, reference string) (bool, error) {
	switch b.Status {
	case domain.BookingConfirmed:
		if reference != "" && b.PaymentReference() != "" && b.PaymentReference() != reference {
			return true, domain.ErrPaymentMismatch
		}
		return true, nil
	case domain.BookingCancelled:
		return true, domain.ErrBookingCancelled
	}
	return false, nil
}

// Cancel cancels a booking on behalf of its owner or an admin. Only admins
// may cancel confirmed bookings; nobody may cancel inside the deadline.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, publicID uuid.UUID) (*domain.Booking, error) {
	now := s.now().UTC()

	var (
		cancelled *domain.Booking
		refund    bool
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		b, err := tx.Bookings.GetByPublicID(ctx, publicID)
		if err != nil {
			return err
		}
		if b.UserID != actor.UserID && !actor.Privileged() {
			return domain.ErrForbidden
		}
		if b.IsOrganizerBooking {
			return domain.ErrOrganizerBooking
		}
		if b.Status == domain.BookingCancelled {
			cancelled = b
			return nil
		}
		if b.Status == domain.BookingConfirmed && !actor.Privileged() {
			return domain.ErrBookingAlreadyConfirmed
		}

		event, err := tx.Events.GetByID(ctx, b.EventID)
		if err != nil {
			return err
		}
		if !now.Before(event.StartTime.Add(-s.cfg.CancellationDeadline)) {
			return domain.ErrCancellationDeadline
		}

		reason := reasonUserCancelled
		if actor.Privileged() && b.UserID != actor.UserID {
			reason = reasonAdminCancelled
		}
		ok, err := tx.Bookings.MarkCancelled(ctx, b.ID, b.Status, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		refund = b.Status == domain.BookingConfirmed && !b.Free()

		cancelled, err = tx.Bookings.GetByID(ctx, b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if refund && s.refunder != nil {
		s.refunder.RefundBookings(ctx, []domain.Booking{*cancelled})
	}
	s.log.WithFields(logrus.Fields{
		"booking_id": cancelled.ID,
		"event_id":   cancelled.EventID,
		"actor_id":   actor.UserID,
	}).Info("booking cancelled")
	return cancelled, nil
}

// ExpireDue cancels every pending booking whose hold ran out. Each booking
// is updated on its own; a booking confirmed in the meantime is skipped.
func (s *Service) ExpireDue(ctx context.Context) (*batch.Report, error) {
	now := s.now().UTC()
	report := batch.New("expire_bookings")

	ids, err := s.store.Bookings.ListDueForExpiry(ctx, now)
	if err != nil {
		return report, fmt.Errorf("list due bookings: %w", err)
	}
	report.Scanned = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		expired, err := s.store.Bookings.ExpireIfDue(ctx, id, now)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", id).Error("expire booking failed")
			report.Fail(fmt.Errorf("booking %d: %w", id, err))
			continue
		}
		if expired {
			report.Affected++
		}
	}
	return report, nil
}
