package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID                   int64         `json:"-" gorm:"primaryKey"`
	PublicID             uuid.UUID     `json:"id" gorm:"type:uuid;uniqueIndex;not null"`
	UserID               int64         `json:"user_id" gorm:"not null;index"`
	EventID              int64         `json:"event_id" gorm:"not null;index"`
	Quantity             int           `json:"quantity" gorm:"not null;default:1;check:quantity >= 1"`
	AmountCents          int64         `json:"amount_cents" gorm:"not null;default:0;check:amount_cents >= 0"`
	Currency             string        `json:"currency" gorm:"type:varchar(3);not null"`
	ExpiresAt            *time.Time    `json:"expires_at,omitempty" gorm:"index"`
	PaymentIntentID      *string       `json:"payment_intent_id,omitempty" gorm:"type:varchar(255);index"`
	Status               BookingStatus `json:"status" gorm:"type:varchar(20);not null;index;default:'pending'"`
	IsOrganizerBooking   bool          `json:"is_organizer_booking" gorm:"not null;default:false"`
	ConfirmedAfterExpiry bool          `json:"confirmed_after_expiry" gorm:"not null;default:false"`
	CancellationReason   string        `json:"cancellation_reason,omitempty" gorm:"type:text"`
	ConfirmedAt          *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt          *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`

	User  *User  `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Event *Event `json:"-" gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
}

func (Booking) TableName() string { return "bookings" }

func (b *Booking) BeforeCreate(_ *gorm.DB) error {
	if b.PublicID == uuid.Nil {
		b.PublicID = uuid.New()
	}
	return nil
}

// Expired reports whether a pending hold has run past its deadline.
func (b *Booking) Expired(now time.Time) bool {
	return b.Status == BookingPending && b.ExpiresAt != nil && now.After(*b.ExpiresAt)
}

// Free bookings skip the payment step.
func (b *Booking) Free() bool {
	return b.AmountCents == 0
}

func (b *Booking) PaymentReference() string {
	if b.PaymentIntentID == nil {
		return ""
	}
	return *b.PaymentIntentID
}
