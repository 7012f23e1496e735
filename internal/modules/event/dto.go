package event

import (
	"time"

	"lingomeet/internal/domain"
)

type CreateEventRequest struct {
	VenueID         int64             `json:"venue_id" validate:"required,gt=0" binding:"required"`
	Language        string            `json:"language" validate:"required,max=64" binding:"required"`
	Theme           string            `json:"theme" validate:"max=255"`
	Difficulty      domain.Difficulty `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	StartTime       time.Time         `json:"start_time" validate:"required" binding:"required"`
	PriceCents      int64             `json:"price_cents" validate:"gte=0"`
	Currency        string            `json:"currency" validate:"omitempty,len=3"`
	MinParticipants int               `json:"min_participants" validate:"required,gte=1,ltefield=MaxParticipants" binding:"required"`
	MaxParticipants int               `json:"max_participants" validate:"required,gte=1" binding:"required"`
}

type CancelEventRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// EventDetails is an event with its current participation.
type EventDetails struct {
	*domain.Event
	ConfirmedParticipants int `json:"confirmed_participants"`
	ReservedPlaces        int `json:"reserved_places"`
	SpotsLeft             int `json:"spots_left"`
}

// CreateDraftResult holds the new event and the organizer's publish fee booking.
type CreateDraftResult struct {
	Event        *domain.Event   `json:"event"`
	OrganizerFee *domain.Booking `json:"organizer_booking"`
}
