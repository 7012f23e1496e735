package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"lingomeet/internal/domain"
)

type GameSessionRepository struct {
	db *gorm.DB
}

func NewGameSessionRepository(db *gorm.DB) *GameSessionRepository {
	return &GameSessionRepository{db: db}
}

func (r *GameSessionRepository) Create(ctx context.Context, s *domain.GameSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetActive returns the running session of the event, or nil.
func (r *GameSessionRepository) GetActive(ctx context.Context, eventID int64) (*domain.GameSession, error) {
	var s domain.GameSession
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, domain.SessionActive).
		First(&s).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *GameSessionRepository) End(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.GameSession{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Updates(map[string]interface{}{
			"status":   domain.SessionEnded,
			"ended_at": now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *GameSessionRepository) DeleteByEvent(ctx context.Context, eventID int64) error {
	return r.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&domain.GameSession{}).Error
}
