package domain

import "time"

// Venue is a partner place hosting language-exchange events.
type Venue struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	City      string    `json:"city" gorm:"type:varchar(128)"`
	Address   string    `json:"address" gorm:"type:text"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Venue) TableName() string { return "venues" }
