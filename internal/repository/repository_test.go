package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lingomeet/internal/database/dbtest"
	"lingomeet/internal/domain"
	"lingomeet/internal/repository"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, *repository.Store, *domain.User, *domain.Event) {
	t.Helper()
	db := dbtest.Open(t)
	org := dbtest.CreateUser(t, db, domain.RoleOrganizer)
	user := dbtest.CreateUser(t, db, domain.RoleUser)
	venue := dbtest.CreateVenue(t, db, true)
	ev := dbtest.CreateEvent(t, db, &domain.Event{
		OrganizerID: org.ID, VenueID: venue.ID, StartTime: now.Add(48 * time.Hour),
		PriceCents: 700, MinParticipants: 1, MaxParticipants: 10,
	})
	return db, repository.NewStore(db), user, ev
}

func pending(user *domain.User, ev *domain.Event, qty int) *domain.Booking {
	expires := now.Add(15 * time.Minute)
	return &domain.Booking{
		UserID: user.ID, EventID: ev.ID, Quantity: qty, AmountCents: 700 * int64(qty),
		Currency: "eur", Status: domain.BookingPending, ExpiresAt: &expires,
	}
}

func TestBookingCreate_Constraints(t *testing.T) {
	_, store, user, ev := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Bookings.Create(ctx, pending(user, ev, 1)))
	assert.ErrorIs(t, store.Bookings.Create(ctx, pending(user, ev, 1)), domain.ErrDuplicateBooking)

	other := &domain.User{Email: "other@example.com", Role: domain.RoleUser}
	require.NoError(t, store.Users.Create(ctx, other))
	bad := pending(other, ev, 1)
	bad.AmountCents = -5
	assert.ErrorIs(t, store.Bookings.Create(ctx, bad), domain.ErrValidation)
}

func TestBookingTransitions(t *testing.T) {
	_, store, user, ev := setup(t)
	ctx := context.Background()
	b := pending(user, ev, 2)
	require.NoError(t, store.Bookings.Create(ctx, b))

	reserved, err := store.Bookings.ReservedQuantity(ctx, ev.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 2, reserved)
	reserved, err = store.Bookings.ReservedQuantity(ctx, ev.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, reserved)

	expired, err := store.Bookings.ExpireIfDue(ctx, b.ID, now)
	require.NoError(t, err)
	assert.False(t, expired, "hold is still live")

	ok, err := store.Bookings.MarkConfirmed(ctx, b.ID, "pi_1", false, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Bookings.MarkConfirmed(ctx, b.ID, "pi_2", false, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Bookings.GetByPaymentIntent(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	confirmed, err := store.Bookings.ConfirmedQuantity(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, confirmed)

	expired, err = store.Bookings.ExpireIfDue(ctx, b.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, expired, "confirmed bookings never expire")

	before, err := store.Bookings.CancelAllForEvent(ctx, ev.ID, "event cancelled", now)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, domain.BookingConfirmed, before[0].Status)

	again, err := store.Bookings.CancelAllForEvent(ctx, ev.ID, "event cancelled", now)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func newMockStore(t *testing.T) (*repository.Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return repository.NewStore(db), mock
}

func TestCancelAllForEvent_LocksAndUpdatesSelectedRows(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "event_id", "status", "quantity"}).
		AddRow(4, 9, "confirmed", 1).
		AddRow(7, 9, "pending", 2)
	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE .* ORDER BY id FOR UPDATE`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "bookings" SET .* WHERE \(id IN \(.+,.+\) AND status <> .+\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := store.Bookings.CancelAllForEvent(context.Background(), 9, "event cancelled", now)
	require.NoError(t, err)
	require.Len(t, affected, 2)
	assert.Equal(t, int64(4), affected[0].ID)
	assert.Equal(t, domain.BookingConfirmed, affected[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelAllForEvent_UpdateMissedARow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(4, "confirmed").AddRow(7, "pending"))
	mock.ExpectExec(`UPDATE "bookings"`).WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := store.Bookings.CancelAllForEvent(context.Background(), 9, "event cancelled", now)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentMarkSucceeded_Upserts(t *testing.T) {
	_, store, user, ev := setup(t)
	ctx := context.Background()
	b := pending(user, ev, 1)
	require.NoError(t, store.Bookings.Create(ctx, b))

	require.NoError(t, store.Payments.Create(ctx, &domain.Payment{
		BookingID: b.ID, Provider: "stripe", Reference: "pi_x", AmountCents: 700, Currency: "eur", Status: domain.PaymentCreated,
	}))
	for i := 0; i < 2; i++ {
		require.NoError(t, store.Payments.MarkSucceeded(ctx, &domain.Payment{
			BookingID: b.ID, Provider: "stripe", Reference: "pi_x", AmountCents: 700, Currency: "eur",
		}, now))
	}

	n, err := store.Payments.CountByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	p, err := store.Payments.GetByReference(ctx, "pi_x")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)
	require.NotNil(t, p.SucceededAt)

	failed, err := store.Payments.MarkFailed(ctx, "pi_x", "late decline")
	require.NoError(t, err)
	assert.False(t, failed)

	refunded, err := store.Payments.MarkRefunded(ctx, "pi_x", now)
	require.NoError(t, err)
	assert.True(t, refunded)
	list, err := store.Payments.ListSucceededForBookings(ctx, []int64{b.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEventTransition(t *testing.T) {
	_, store, _, ev := setup(t)
	ctx := context.Background()

	ok, err := store.Events.Transition(ctx, ev.ID, []domain.EventStatus{domain.EventDraft}, domain.EventCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Events.Transition(ctx, ev.ID, []domain.EventStatus{domain.EventPublished}, domain.EventFinished,
		map[string]interface{}{"finished_at": now})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Events.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventFinished, got.Status)
	assert.NotNil(t, got.FinishedAt)

	_, err = store.Events.GetByID(ctx, 424242)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestTransactionRollsBack(t *testing.T) {
	db, store, user, ev := setup(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.Create(ctx, pending(user, ev, 1)); err != nil {
			return err
		}
		return domain.ErrCapacityExceeded
	})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	var n int64
	db.Model(&domain.Booking{}).Count(&n)
	assert.Zero(t, n)
}

func TestVenueAndUserLookups(t *testing.T) {
	db, store, user, _ := setup(t)
	ctx := context.Background()
	closed := dbtest.CreateVenue(t, db, false)

	_, err := store.Venues.GetActive(ctx, closed.ID)
	assert.ErrorIs(t, err, domain.ErrVenueUnavailable)

	got, err := store.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)
	_, err = store.Users.GetByID(ctx, 424242)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
