package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lingomeet/internal/config"
	"lingomeet/internal/domain"
	"lingomeet/internal/pkg/batch"
	"lingomeet/internal/pkg/validator"
	"lingomeet/internal/repository"
)

const (
	ReasonUnderpopulated = "not enough participants"
	ReasonFeeUnpaid      = "publish fee not paid before start"
	ReasonDraftExpired   = "draft not published before start"
	reasonEventCancelled = "event cancelled"
)

var cancellable = []domain.EventStatus{domain.EventDraft, domain.EventPendingConfirmation, domain.EventPublished}

type Service struct {
	store    *repository.Store
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

func NewService(store *repository.Store, refunder Refunder, cfg config.Lifecycle, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		refunder: refunder,
		cfg:      cfg,
		log:      log.WithField("component", "event"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDraft stores a draft event together with the organizer's publish
// fee booking. The fee hold lasts until the event starts. Without a fee the
// event is published at once.
func (s *Service) CreateDraft(ctx context.Context, actor domain.Actor, req CreateEventRequest) (*CreateDraftResult, error) {
	if actor.Role != domain.RoleOrganizer && !actor.Privileged() {
		return nil, domain.ErrForbidden
	}
	if err := s.validateDraft(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !req.StartTime.After(now) {
		return nil, domain.ErrEventInPast
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}

	var res CreateDraftResult
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Venues.GetActive(ctx, req.VenueID); err != nil {
			return err
		}

		ev := &domain.Event{
			OrganizerID:     actor.UserID,
			VenueID:         req.VenueID,
			Language:        req.Language,
			Theme:           req.Theme,
			Difficulty:      req.Difficulty,
			StartTime:       req.StartTime.UTC(),
			PriceCents:      req.PriceCents,
			Currency:        currency,
			MinParticipants: req.MinParticipants,
			MaxParticipants: req.MaxParticipants,
			Status:          domain.EventDraft,
		}
		if err := tx.Events.Create(ctx, ev); err != nil {
			return err
		}

		fee := &domain.Booking{
			UserID:             actor.UserID,
			EventID:            ev.ID,
			Quantity:           1,
			AmountCents:        s.cfg.PublishFeeCents,
			Currency:           s.cfg.Currency,
			Status:             domain.BookingPending,
			IsOrganizerBooking: true,
		}
		if fee.Free() {
			fee.Status = domain.BookingConfirmed
			fee.ConfirmedAt = &now
		} else {
			expires := ev.StartTime
			fee.ExpiresAt = &expires
		}
		if err := tx.Bookings.Create(ctx, fee); err != nil {
			return err
		}

		if fee.Free() {
			if _, err := s.MaybePublishTx(ctx, tx, ev.ID); err != nil {
				return err
			}
		}

		var err error
		if res.Event, err = tx.Events.GetByID(ctx, ev.ID); err != nil {
			return err
		}
		res.OrganizerFee = fee
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"event_id":     res.Event.ID,
		"organizer_id": actor.UserID,
		"status":       res.Event.Status,
	}).Info("event created")
	return &res, nil
}

func (s *Service) validateDraft(req CreateEventRequest) error {
	if req.MinParticipants > req.MaxParticipants {
		return domain.ErrInvalidCapacity
	}
	if req.MinParticipants < s.cfg.MinParticipantsFloor || req.MaxParticipants > s.cfg.MaxParticipantsCeiling {
		return fmt.Errorf("participants must be within %d..%d: %w",
			s.cfg.MinParticipantsFloor, s.cfg.MaxParticipantsCeiling, domain.ErrInvalidCapacity)
	}
	if errs := validator.Validate(req); errs != nil {
		return fmt.Errorf("%v: %w", errs, domain.ErrValidation)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, eventID int64) (*EventDetails, error) {
	ev, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	confirmed, err := s.store.Bookings.ConfirmedQuantity(ctx, eventID)
	if err != nil {
		return nil, err
	}
	reserved, err := s.store.Bookings.ReservedQuantity(ctx, eventID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	left := ev.MaxParticipants - reserved
	if left < 0 {
		left = 0
	}
	return &EventDetails{Event: ev, ConfirmedParticipants: confirmed, ReservedPlaces: reserved, SpotsLeft: left}, nil
}

// MaybePublishTx publishes a draft or pending event whose publish fee is
// confirmed. It reports whether the event changed.
func (s *Service) MaybePublishTx(ctx context.Context, tx *repository.Store, eventID int64) (bool, error) {
	ev, err := tx.Events.GetForUpdate(ctx, eventID)
	if err != nil {
		return false, err
	}
	if ev.Status != domain.EventDraft && ev.Status != domain.EventPendingConfirmation {
		return false, nil
	}
	now := s.now().UTC()
	if ev.Started(now) {
		return false, nil
	}

	fee, err := tx.Bookings.FindOrganizerBooking(ctx, eventID)
	if err != nil {
		return false, err
	}
	if fee.Status != domain.BookingConfirmed {
		return false, nil
	}

	ok, err := tx.Events.Transition(ctx, eventID,
		[]domain.EventStatus{domain.EventDraft, domain.EventPendingConfirmation},
		domain.EventPublished,
		map[string]interface{}{"published_at": now})
	if err != nil {
		return false, err
	}
	if ok {
		s.log.WithField("event_id", eventID).Info("event published")
	}
	return ok, nil
}

// MarkPendingConfirmationTx moves a draft to pending_confirmation once the
// organizer starts paying the fee. Other states are left alone.
func (s *Service) MarkPendingConfirmationTx(ctx context.Context, tx *repository.Store, eventID int64) (bool, error) {
	return tx.Events.Transition(ctx, eventID,
		[]domain.EventStatus{domain.EventDraft},
		domain.EventPendingConfirmation, nil)
}

// Cancel cancels the event with every booking on it and refunds paid
// bookings after commit. Only the organizer or an admin may do this.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, eventID int64, reason string) (*domain.Event, error) {
	ev, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.OrganizerID != actor.UserID && !actor.Privileged() {
		return nil, domain.ErrForbidden
	}
	if reason == "" {
		reason = reasonEventCancelled
	}

	var refunds []domain.Booking
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		refunds, err = s.cancelTx(ctx, tx, eventID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.refund(ctx, refunds)

	return s.store.Events.GetByID(ctx, eventID)
}

// cancelTx cancels the event and cascades to its bookings. It returns the
// bookings that were confirmed and paid.
func (s *Service) cancelTx(ctx context.Context, tx *repository.Store, eventID int64, reason string) ([]domain.Booking, error) {
	now := s.now().UTC()

	ev, err := tx.Events.GetForUpdate(ctx, eventID)
	if err != nil {
		return nil, err
	}
	switch ev.Status {
	case domain.EventCancelled:
		return nil, domain.ErrEventAlreadyCancelled
	case domain.EventFinished:
		return nil, domain.ErrEventFinished
	}

	ok, err := tx.Events.Transition(ctx, eventID, cancellable, domain.EventCancelled, map[string]interface{}{
		"cancelled_at":        now,
		"cancellation_reason": reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrConcurrentUpdate
	}

	affected, err := tx.Bookings.CancelAllForEvent(ctx, eventID, reason, now)
	if err != nil {
		return nil, fmt.Errorf("cancel bookings of event %d: %w", eventID, err)
	}

	var paid []domain.Booking
	for _, b := range affected {
		if b.Status == domain.BookingConfirmed && !b.Free() {
			paid = append(paid, b)
		}
	}

	s.log.WithFields(logrus.Fields{
		"event_id": eventID,
		"bookings": len(affected),
		"reason":   reason,
	}).Info("event cancelled")
	return paid, nil
}

func (s *Service) refund(ctx context.Context, bookings []domain.Booking) {
	if len(bookings) == 0 || s.refunder == nil {
		return
	}
	s.refunder.RefundBookings(ctx, bookings)
}

// CancelUnderpopulated cancels published events starting within window
// that have fewer confirmed participants than their minimum.
func (s *Service) CancelUnderpopulated(ctx context.Context, window time.Duration) ([]domain.Event, *batch.Report, error) {
	now := s.now().UTC()
	report := batch.New("cancel_underpopulated_events")

	candidates, err := s.store.Events.ListUnderpopulatedCandidates(ctx, now, window)
	if err != nil {
		return nil, report, fmt.Errorf("list underpopulated candidates: %w", err)
	}
	report.Scanned = len(candidates)

	var cancelled []domain.Event
	for _, ev := range candidates {
		var (
			refunds []domain.Booking
			done    bool
		)
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			confirmed, err := tx.Bookings.ConfirmedQuantity(ctx, ev.ID)
			if err != nil {
				return err
			}
			if confirmed >= ev.MinParticipants {
				return nil
			}
			refunds, err = s.cancelTx(ctx, tx, ev.ID, ReasonUnderpopulated)
			done = err == nil
			return err
		})
		if err != nil {
			if errors.Is(err, domain.ErrEventAlreadyCancelled) || errors.Is(err, domain.ErrEventFinished) {
				continue
			}
			s.log.WithError(err).WithField("event_id", ev.ID).Error("cancel underpopulated event failed")
			report.Fail(fmt.Errorf("event %d: %w", ev.ID, err))
			continue
		}
		if done {
			s.refund(ctx, refunds)
			ev.Status = domain.EventCancelled
			ev.CancellationReason = ReasonUnderpopulated
			cancelled = append(cancelled, ev)
			report.Affected++
		}
	}
	return cancelled, report, nil
}

// FinishCompleted finishes published events that started more than grace
// ago and have no running game session.
func (s *Service) FinishCompleted(ctx context.Context, grace time.Duration) ([]domain.Event, *batch.Report, error) {
	now := s.now().UTC()
	report := batch.New("finish_events")

	due, err := s.store.Events.ListFinishable(ctx, now.Add(-grace))
	if err != nil {
		return nil, report, fmt.Errorf("list finishable events: %w", err)
	}
	report.Scanned = len(due)

	var finished []domain.Event
	for _, ev := range due {
		var ok bool
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			active, err := tx.Sessions.GetActive(ctx, ev.ID)
			if err != nil || active != nil {
				return err
			}
			ok, err = tx.Events.Transition(ctx, ev.ID,
				[]domain.EventStatus{domain.EventPublished},
				domain.EventFinished,
				map[string]interface{}{"finished_at": now})
			return err
		})
		if err != nil {
			s.log.WithError(err).WithField("event_id", ev.ID).Error("finish event failed")
			report.Fail(fmt.Errorf("event %d: %w", ev.ID, err))
			continue
		}
		if ok {
			ev.Status = domain.EventFinished
			finished = append(finished, ev)
			report.Affected++
		}
	}
	return finished, report, nil
}

// CleanupExpiredDrafts deletes drafts whose start passed without the fee
// being paid. A draft that took payments or confirmed participants is
// cancelled and refunded instead, as are events stuck in
// pending_confirmation, so no payment row is ever deleted.
func (s *Service) CleanupExpiredDrafts(ctx context.Context) (*batch.Report, error) {
	now := s.now().UTC()
	report := batch.New("cleanup_draft_events")

	drafts, err := s.store.Events.ListStarted(ctx, []domain.EventStatus{domain.EventDraft}, now)
	if err != nil {
		return report, fmt.Errorf("list expired drafts: %w", err)
	}
	stale, err := s.store.Events.ListStarted(ctx, []domain.EventStatus{domain.EventPendingConfirmation}, now)
	if err != nil {
		return report, fmt.Errorf("list stale pending events: %w", err)
	}
	report.Scanned = len(drafts) + len(stale)

	for _, ev := range drafts {
		var (
			deleted, cancelled bool
			refunds            []domain.Booking
		)
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			current, err := tx.Events.GetForUpdate(ctx, ev.ID)
			if err != nil || current.Status != domain.EventDraft {
				return err
			}
			collected, err := collectedMoney(ctx, tx, ev.ID)
			if err != nil {
				return err
			}
			if collected {
				refunds, err = s.cancelTx(ctx, tx, ev.ID, ReasonDraftExpired)
				cancelled = err == nil
				return err
			}
			if err := tx.Sessions.DeleteByEvent(ctx, ev.ID); err != nil {
				return err
			}
			if err := tx.Bookings.DeleteByEvent(ctx, ev.ID); err != nil {
				return err
			}
			deleted, err = tx.Events.DeleteDraft(ctx, ev.ID)
			return err
		})
		if err != nil {
			s.log.WithError(err).WithField("event_id", ev.ID).Error("clean up expired draft failed")
			report.Fail(fmt.Errorf("event %d: %w", ev.ID, err))
			continue
		}
		switch {
		case deleted:
			s.log.WithField("event_id", ev.ID).Info("expired draft deleted")
			report.Affected++
		case cancelled:
			s.refund(ctx, refunds)
			report.Affected++
		}
	}

	for _, ev := range stale {
		var refunds []domain.Booking
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			var err error
			refunds, err = s.cancelTx(ctx, tx, ev.ID, ReasonFeeUnpaid)
			return err
		})
		if errors.Is(err, domain.ErrEventAlreadyCancelled) || errors.Is(err, domain.ErrEventFinished) {
			continue
		}
		if err != nil {
			s.log.WithError(err).WithField("event_id", ev.ID).Error("cancel stale pending event failed")
			report.Fail(fmt.Errorf("event %d: %w", ev.ID, err))
			continue
		}
		s.refund(ctx, refunds)
		report.Affected++
	}
	return report, nil
}

// collectedMoney reports whether the event has confirmed participants or
// any payment row, paid or still open.
func collectedMoney(ctx context.Context, tx *repository.Store, eventID int64) (bool, error) {
	confirmed, err := tx.Bookings.ConfirmedQuantity(ctx, eventID)
	if err != nil || confirmed > 0 {
		return confirmed > 0, err
	}
	payments, err := tx.Payments.CountByEvent(ctx, eventID)
	return payments > 0, err
}

// StartSession opens the live game session of a published event.
func (s *Service) StartSession(ctx context.Context, actor domain.Actor, eventID int64) (*domain.GameSession, error) {
	var session *domain.GameSession
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		ev, err := tx.Events.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.OrganizerID != actor.UserID && !actor.Privileged() {
			return domain.ErrForbidden
		}
		if ev.Status != domain.EventPublished {
			return domain.ErrEventNotPublished
		}
		active, err := tx.Sessions.GetActive(ctx, eventID)
		if err != nil {
			return err
		}
		if active != nil {
			return domain.ErrSessionActive
		}
		session = &domain.GameSession{EventID: eventID, Status: domain.SessionActive, StartedAt: s.now().UTC()}
		return tx.Sessions.Create(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("event_id", eventID).Info("game session started")
	return session, nil
}

// EndSession closes the running session and finishes the event.
func (s *Service) EndSession(ctx context.Context, actor domain.Actor, eventID int64) (*domain.GameSession, error) {
	now := s.now().UTC()

	var session *domain.GameSession
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		ev, err := tx.Events.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.OrganizerID != actor.UserID && !actor.Privileged() {
			return domain.ErrForbidden
		}
		active, err := tx.Sessions.GetActive(ctx, eventID)
		if err != nil {
			return err
		}
		if active == nil {
			return domain.ErrNoActiveSession
		}
		ok, err := tx.Sessions.End(ctx, active.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		if _, err := tx.Events.Transition(ctx, eventID,
			[]domain.EventStatus{domain.EventPublished},
			domain.EventFinished,
			map[string]interface{}{"finished_at": now}); err != nil {
			return err
		}
		active.Status = domain.SessionEnded
		active.EndedAt = &now
		session = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("event_id", eventID).Info("game session ended")
	return session, nil
}
