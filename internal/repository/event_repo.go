package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lingomeet/internal/domain"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, e *domain.Event) error {
	err := r.db.WithContext(ctx).Create(e).Error
	if IsCheckViolation(err) {
		if violates(err, "chk_events_participants") {
			return domain.ErrInvalidCapacity
		}
		return domain.ErrValidation
	}
	return err
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	var e domain.Event
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// GetForUpdate loads the event and locks its row until the surrounding
// transaction ends. SQLite has no row locks and serialises writers instead.
func (r *EventRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	var e domain.Event
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&e, id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Transition moves the event to `to` only while its status is one of from.
// extra columns are written in the same statement.
func (r *EventRepository) Transition(ctx context.Context, id int64, from []domain.EventStatus, to domain.EventStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// ListUnderpopulatedCandidates returns published events starting in (now, now+window].
func (r *EventRepository) ListUnderpopulatedCandidates(ctx context.Context, now time.Time, window time.Duration) ([]domain.Event, error) {
	var out []domain.Event
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time > ? AND start_time <= ?", domain.EventPublished, now.UTC(), now.Add(window).UTC()).
		Order("start_time, id").
		Find(&out).Error
	return out, err
}

// ListFinishable returns published events that started before cutoff and
// have no active game session.
func (r *EventRepository) ListFinishable(ctx context.Context, cutoff time.Time) ([]domain.Event, error) {
	var out []domain.Event
	active := r.db.Model(&domain.GameSession{}).Select("event_id").Where("status = ?", domain.SessionActive)
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time <= ?", domain.EventPublished, cutoff.UTC()).
		Where("id NOT IN (?)", active).
		Order("start_time, id").
		Find(&out).Error
	return out, err
}

// ListStarted returns events in one of statuses whose start time is not after now.
func (r *EventRepository) ListStarted(ctx context.Context, statuses []domain.EventStatus, now time.Time) ([]domain.Event, error) {
	var out []domain.Event
	err := r.db.WithContext(ctx).
		Where("status IN ? AND start_time <= ?", statuses, now.UTC()).
		Order("start_time, id").
		Find(&out).Error
	return out, err
}

// DeleteDraft removes the event only while it is still a draft.
func (r *EventRepository) DeleteDraft(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, domain.EventDraft).
		Delete(&domain.Event{})
	return res.RowsAffected == 1, res.Error
}
