package domain

import "time"

type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "created"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is one provider-side payment attempt for a booking.
type Payment struct {
	ID            int64         `json:"id" gorm:"primaryKey"`
	BookingID     int64         `json:"booking_id" gorm:"not null;index"`
	Provider      string        `json:"provider" gorm:"type:varchar(32);not null"`
	Reference     string        `json:"reference" gorm:"type:varchar(255);uniqueIndex;not null"`
	AmountCents   int64         `json:"amount_cents" gorm:"not null;check:payment_amount_cents,amount_cents >= 0"`
	Currency      string        `json:"currency" gorm:"type:varchar(3);not null"`
	Status        PaymentStatus `json:"status" gorm:"type:varchar(20);not null;index;default:'created'"`
	FailureReason string        `json:"failure_reason,omitempty" gorm:"type:text"`
	SucceededAt   *time.Time    `json:"succeeded_at,omitempty"`
	RefundedAt    *time.Time    `json:"refunded_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	Booking *Booking `json:"-" gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`
}

func (Payment) TableName() string { return "payments" }
