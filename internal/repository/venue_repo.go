package repository

import (
	"context"

	"gorm.io/gorm"

	"lingomeet/internal/domain"
)

type VenueRepository struct {
	db *gorm.DB
}

func NewVenueRepository(db *gorm.DB) *VenueRepository {
	return &VenueRepository{db: db}
}

func (r *VenueRepository) Create(ctx context.Context, v *domain.Venue) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// GetActive returns the venue only while it is an active partner.
func (r *VenueRepository) GetActive(ctx context.Context, id int64) (*domain.Venue, error) {
	var v domain.Venue
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&v).Error
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrVenueUnavailable
		}
		return nil, err
	}
	return &v, nil
}
