package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventStatus string

const (
	EventDraft               EventStatus = "draft"
	EventPendingConfirmation EventStatus = "pending_confirmation"
	EventPublished           EventStatus = "published"
	EventCancelled           EventStatus = "cancelled"
	EventFinished            EventStatus = "finished"
)

// Terminal reports whether no further transition is possible.
func (s EventStatus) Terminal() bool {
	return s == EventCancelled || s == EventFinished
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

type Event struct {
	ID                 int64       `json:"id" gorm:"primaryKey"`
	PublicID           uuid.UUID   `json:"public_id" gorm:"type:uuid;uniqueIndex;not null"`
	OrganizerID        int64       `json:"organizer_id" gorm:"not null;index"`
	VenueID            int64       `json:"venue_id" gorm:"not null;index"`
	Language           string      `json:"language" gorm:"type:varchar(64);not null"`
	Theme              string      `json:"theme" gorm:"type:varchar(255)"`
	Difficulty         Difficulty  `json:"difficulty" gorm:"type:varchar(20)"`
	StartTime          time.Time   `json:"start_time" gorm:"not null;index"`
	PriceCents         int64       `json:"price_cents" gorm:"not null;default:0;check:price_cents >= 0"`
	Currency           string      `json:"currency" gorm:"type:varchar(3);not null"`
	MinParticipants    int         `json:"min_participants" gorm:"not null;check:min_participants >= 1"`
	MaxParticipants    int         `json:"max_participants" gorm:"not null;check:chk_events_participants,min_participants <= max_participants"`
	Status             EventStatus `json:"status" gorm:"type:varchar(32);not null;index;default:'draft'"`
	CancellationReason string      `json:"cancellation_reason,omitempty" gorm:"type:text"`
	PublishedAt        *time.Time  `json:"published_at,omitempty"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty"`
	FinishedAt         *time.Time  `json:"finished_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`

	Organizer *User  `json:"organizer,omitempty" gorm:"foreignKey:OrganizerID;constraint:OnDelete:RESTRICT"`
	Venue     *Venue `json:"venue,omitempty" gorm:"foreignKey:VenueID;constraint:OnDelete:RESTRICT"`
}

func (Event) TableName() string { return "events" }

func (e *Event) BeforeCreate(_ *gorm.DB) error {
	if e.PublicID == uuid.Nil {
		e.PublicID = uuid.New()
	}
	return nil
}

// Started reports whether the event start time is at or before now.
func (e *Event) Started(now time.Time) bool {
	return !e.StartTime.After(now)
}
