package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that share one connection or one transaction.
type Store struct {
	db *gorm.DB

	Users    *UserRepository
	Venues   *VenueRepository
	Events   *EventRepository
	Bookings *BookingRepository
	Payments *PaymentRepository
	Sessions *GameSessionRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Users:    NewUserRepository(db),
		Venues:   NewVenueRepository(db),
		Events:   NewEventRepository(db),
		Bookings: NewBookingRepository(db),
		Payments: NewPaymentRepository(db),
		Sessions: NewGameSessionRepository(db),
	}
}

func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn against a Store bound to a single database transaction.
// Inside fn only the tx store may be used; the outer store would take a second connection.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
