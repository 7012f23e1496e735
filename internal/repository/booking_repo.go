package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lingomeet/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts the booking. A hit on the one-pending-per-user index
// surfaces as ErrDuplicateBooking, a CHECK failure as ErrValidation.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	err := r.db.WithContext(ctx).Create(b).Error
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err):
		return domain.ErrDuplicateBooking
	case IsCheckViolation(err):
		return domain.ErrValidation
	}
	return err
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&b).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) GetByPaymentIntent(ctx context.Context, reference string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Where("payment_intent_id = ?", reference).First(&b).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// FindPending returns the user's pending participant booking for the event, if any.
func (r *BookingRepository) FindPending(ctx context.Context, userID, eventID int64) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ? AND status = ? AND is_organizer_booking = ?", userID, eventID, domain.BookingPending, false).
		First(&b).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) FindOrganizerBooking(ctx context.Context, eventID int64) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND is_organizer_booking = ?", eventID, true).
		Order("id DESC").
		First(&b).Error
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ReservedQuantity sums participant places held by confirmed bookings and
// pending bookings whose hold is still live at now.
func (r *BookingRepository) ReservedQuantity(ctx context.Context, eventID int64, now time.Time) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("event_id = ? AND is_organizer_booking = ?", eventID, false).
		Where("status = ? OR (status = ? AND expires_at >= ?)", domain.BookingConfirmed, domain.BookingPending, now.UTC()).
		Scan(&total).Error
	return int(total), err
}

func (r *BookingRepository) ConfirmedQuantity(ctx context.Context, eventID int64) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("event_id = ? AND is_organizer_booking = ? AND status = ?", eventID, false, domain.BookingConfirmed).
		Scan(&total).Error
	return int(total), err
}

// MarkConfirmed moves a pending booking to confirmed. It reports false when
// the booking was no longer pending.
func (r *BookingRepository) MarkConfirmed(ctx context.Context, id int64, reference string, lateConfirm bool, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":                 domain.BookingConfirmed,
		"confirmed_at":           now.UTC(),
		"confirmed_after_expiry": lateConfirm,
		"updated_at":             now.UTC(),
	}
	if reference != "" {
		updates["payment_intent_id"] = reference
	}
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, domain.BookingPending).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// MarkCancelled cancels a booking that is still in the expected status.
func (r *BookingRepository) MarkCancelled(ctx context.Context, id int64, from domain.BookingStatus, reason string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":              domain.BookingCancelled,
			"cancelled_at":        now.UTC(),
			"cancellation_reason": reason,
			"updated_at":          now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// ExpireIfDue cancels a pending booking only if its hold has run out at now.
func (r *BookingRepository) ExpireIfDue(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ? AND expires_at < ?", id, domain.BookingPending, now.UTC()).
		Updates(map[string]interface{}{
			"status":              domain.BookingCancelled,
			"cancelled_at":        now.UTC(),
			"cancellation_reason": "expired",
			"updated_at":          now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *BookingRepository) ListDueForExpiry(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("status = ? AND expires_at < ?", domain.BookingPending, now.UTC()).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// CancelAllForEvent cancels every booking of the event that is not cancelled
// yet and returns the rows as they were before the update.
func (r *BookingRepository) CancelAllForEvent(ctx context.Context, eventID int64, reason string, now time.Time) ([]domain.Booking, error) {
	var affected []domain.Booking
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_id = ? AND status <> ?", eventID, domain.BookingCancelled).
		Order("id").
		Find(&affected).Error
	if err != nil {
		return nil, err
	}
	if len(affected) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(affected))
	for _, b := range affected {
		ids = append(ids, b.ID)
	}
	res := db.Model(&domain.Booking{}).
		Where("id IN ? AND status <> ?", ids, domain.BookingCancelled).
		Updates(map[string]interface{}{
			"status":              domain.BookingCancelled,
			"cancelled_at":        now.UTC(),
			"cancellation_reason": reason,
			"updated_at":          now.UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != int64(len(affected)) {
		return nil, domain.ErrConcurrentUpdate
	}
	return affected, nil
}

// SetPaymentIntent records the provider reference on a booking that is still pending.
func (r *BookingRepository) SetPaymentIntent(ctx context.Context, id int64, reference string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, domain.BookingPending).
		Update("payment_intent_id", reference)
	return res.RowsAffected == 1, res.Error
}

func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func (r *BookingRepository) ListByEvent(ctx context.Context, eventID int64) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id").Find(&out).Error
	return out, err
}

func (r *BookingRepository) DeleteByEvent(ctx context.Context, eventID int64) error {
	return r.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&domain.Booking{}).Error
}
