package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lingomeet/internal/domain"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create records a payment attempt. A second attempt with a known reference is ignored.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reference"}}, DoNothing: true}).
		Create(p).Error
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&p).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// MarkSucceeded upserts the payment row for reference as succeeded. The
// reference is unique, so repeated calls never add rows.
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, p *domain.Payment, now time.Time) error {
	ts := now.UTC()
	p.Status = domain.PaymentSucceeded
	p.SucceededAt = &ts
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "reference"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":       domain.PaymentSucceeded,
				"succeeded_at": ts,
				"updated_at":   ts,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Table: "payments", Name: "status"}, Value: domain.PaymentSucceeded},
			}},
		}).
		Create(p).Error
}

// MarkFailed flags a created payment as failed; other states are left alone.
func (r *PaymentRepository) MarkFailed(ctx context.Context, reference, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("reference = ? AND status = ?", reference, domain.PaymentCreated).
		Updates(map[string]interface{}{
			"status":         domain.PaymentFailed,
			"failure_reason": reason,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *PaymentRepository) MarkRefunded(ctx context.Context, reference string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("reference = ? AND status = ?", reference, domain.PaymentSucceeded).
		Updates(map[string]interface{}{
			"status":      domain.PaymentRefunded,
			"refunded_at": now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *PaymentRepository) ListSucceededForBookings(ctx context.Context, bookingIDs []int64) ([]domain.Payment, error) {
	if len(bookingIDs) == 0 {
		return nil, nil
	}
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id IN ? AND status = ?", bookingIDs, domain.PaymentSucceeded).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *PaymentRepository) CountByBooking(ctx context.Context, bookingID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Payment{}).Where("booking_id = ?", bookingID).Count(&n).Error
	return n, err
}

// CountByEvent counts payment rows of any status on the event's bookings.
func (r *PaymentRepository) CountByEvent(ctx context.Context, eventID int64) (int64, error) {
	var n int64
	bookings := r.db.Model(&domain.Booking{}).Select("id").Where("event_id = ?", eventID)
	err := r.db.WithContext(ctx).Model(&domain.Payment{}).Where("booking_id IN (?)", bookings).Count(&n).Error
	return n, err
}
