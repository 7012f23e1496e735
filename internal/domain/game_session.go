package domain

import "time"

type GameSessionStatus string

const (
	SessionActive GameSessionStatus = "active"
	SessionEnded  GameSessionStatus = "ended"
)

// GameSession is the live part of an event run by its organizer.
type GameSession struct {
	ID        int64             `json:"id" gorm:"primaryKey"`
	EventID   int64             `json:"event_id" gorm:"not null;index"`
	Status    GameSessionStatus `json:"status" gorm:"type:varchar(20);not null;index;default:'active'"`
	StartedAt time.Time         `json:"started_at" gorm:"not null"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`

	Event *Event `json:"-" gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
}

func (GameSession) TableName() string { return "game_sessions" }
