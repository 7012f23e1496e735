package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lingomeet/internal/config"
	"lingomeet/internal/database/dbtest"
	"lingomeet/internal/domain"
	"lingomeet/internal/modules/event"
	"lingomeet/internal/repository"
)

type MockRefunder struct {
	mock.Mock
}

func (m *MockRefunder) RefundBookings(ctx context.Context, bookings []domain.Booking) {
	m.Called(ctx, bookings)
}

type fixture struct {
	db       *gorm.DB
	store    *repository.Store
	clock    *dbtest.Clock
	cfg      config.Lifecycle
	refunder *MockRefunder
	svc      *Service

	organizer *domain.User
	alice     *domain.User
	bob       *domain.User
	admin     *domain.User
	venue     *domain.Venue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	log, _ := test.NewNullLogger()

	f := &fixture{
		db:       db,
		store:    repository.NewStore(db),
		clock:    dbtest.NewClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)),
		cfg:      config.DefaultLifecycle(),
		refunder: &MockRefunder{},
	}
	events := event.NewService(f.store, f.refunder, f.cfg, log, event.WithClock(f.clock.Now))
	f.svc = NewService(f.store, events, f.refunder, f.cfg, log, WithClock(f.clock.Now))

	f.organizer = dbtest.CreateUser(t, db, domain.RoleOrganizer)
	f.alice = dbtest.CreateUser(t, db, domain.RoleUser)
	f.bob = dbtest.CreateUser(t, db, domain.RoleUser)
	f.admin = dbtest.CreateUser(t, db, domain.RoleAdmin)
	f.venue = dbtest.CreateVenue(t, db, true)
	return f
}

func actorOf(u *domain.User) domain.Actor {
	return domain.Actor{UserID: u.ID, Role: u.Role}
}

// publishedEvent starts in two days unless start is given.
func (f *fixture) publishedEvent(t *testing.T, price int64, max int, start ...time.Time) *domain.Event {
	t.Helper()
	st := f.clock.Now().Add(48 * time.Hour)
	if len(start) > 0 {
		st = start[0]
	}
	return dbtest.CreateEvent(t, f.db, &domain.Event{
		OrganizerID:     f.organizer.ID,
		VenueID:         f.venue.ID,
		StartTime:       st,
		PriceCents:      price,
		MinParticipants: 1,
		MaxParticipants: max,
		Status:          domain.EventPublished,
	})
}

func (f *fixture) reload(t *testing.T, id int64) *domain.Booking {
	return dbtest.Reload[domain.Booking](t, f.db, id)
}

func (f *fixture) paymentRows(t *testing.T, bookingID int64) int64 {
	n, err := f.store.Payments.CountByBooking(context.Background(), bookingID)
	require.NoError(t, err)
	return n
}

func TestCreate_PaidBookingStartsAsHold(t *testing.T) {
	f := newFixture(t)
	ev := f.publishedEvent(t, 700, 10)

	b, err := f.svc.Create(context.Background(), actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, int64(700), b.AmountCents)
	assert.Equal(t, "eur", b.Currency)
	require.NotNil(t, b.ExpiresAt)
	assert.True(t, b.ExpiresAt.Equal(f.clock.Now().Add(15*time.Minute)))
	assert.Nil(t, b.PaymentIntentID)
	assert.NotEqual(t, "", b.PublicID.String())
}

func TestCreate_AmountIsPriceTimesQuantity(t *testing.T) {
	f := newFixture(t)
	ev := f.publishedEvent(t, 700, 10)

	b, err := f.svc.Create(context.Background(), actorOf(f.alice), ev.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2100), b.AmountCents)
	assert.Equal(t, 3, b.Quantity)
}

func TestCreate_FreeEventConfirmsImmediately(t *testing.T) {
	f := newFixture(t)
	ev := f.publishedEvent(t, 0, 10)

	b, err := f.svc.Create(context.Background(), actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.NotNil(t, b.ConfirmedAt)
	assert.Nil(t, b.ExpiresAt)
	assert.Nil(t, b.PaymentIntentID)
	assert.Zero(t, f.paymentRows(t, b.ID))
}

func TestCreate_RejectsInvalidQuantity(t *testing.T) {
	f := newFixture(t)
	ev := f.publishedEvent(t, 700, 10)

	_, err := f.svc.Create(context.Background(), actorOf(f.alice), ev.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestCreate_EventMustBeOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled := f.publishedEvent(t, 700, 10)
	f.db.Model(cancelled).Update("status", domain.EventCancelled)
	_, err := f.svc.Create(ctx, actorOf(f.alice), cancelled.ID, 1)
	assert.ErrorIs(t, err, domain.ErrEventNotBookable)

	started := f.publishedEvent(t, 700, 10, f.clock.Now().Add(-time.Minute))
	_, err = f.svc.Create(ctx, actorOf(f.alice), started.ID, 1)
	assert.ErrorIs(t, err, domain.ErrEventNotBookable)

	_, err = f.svc.Create(ctx, actorOf(f.alice), 9999, 1)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestCreate_CapacityCountsLiveHoldsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 3)

	_, err := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 2)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, actorOf(f.bob), ev.ID, 2)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	// alice's hold runs out and frees the places
	f.clock.Advance(16 * time.Minute)
	b, err := f.svc.Create(ctx, actorOf(f.bob), ev.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
}

func TestCreate_OrganizerFeeDoesNotTakeAPlace(t *testing.T) {
	f := newFixture(t)
	ev := f.publishedEvent(t, 700, 1)
	now := f.clock.Now()
	dbtest.CreateBooking(t, f.db, &domain.Booking{
		UserID: f.organizer.ID, EventID: ev.ID, AmountCents: 500,
		Status: domain.BookingConfirmed, IsOrganizerBooking: true, ConfirmedAt: &now,
	})

	_, err := f.svc.Create(context.Background(), actorOf(f.alice), ev.ID, 1)
	assert.NoError(t, err)
}

func TestCreate_DuplicateLiveHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)

	first, err := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	assert.ErrorIs(t, err, domain.ErrDuplicateBooking)

	f.clock.Advance(20 * time.Minute)
	second, err := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	old := f.reload(t, first.ID)
	assert.Equal(t, domain.BookingCancelled, old.Status)
	assert.NotNil(t, old.CancelledAt)
}

func TestCreate_ConfirmedBookingDoesNotBlockAnother(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)

	first, err := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, first.ID, ConfirmInput{Reference: "pi_1", Provider: "stripe"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	assert.NoError(t, err)
}

func TestConfirm_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)
	b, err := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)

	res, err := f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_123", Provider: "stripe"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Late)
	assert.Equal(t, domain.BookingConfirmed, res.Booking.Status)
	assert.NotNil(t, res.Booking.ConfirmedAt)
	assert.Equal(t, "pi_123", res.Booking.PaymentReference())

	again, err := f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_123", Provider: "stripe"})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, int64(1), f.paymentRows(t, b.ID))

	p, err := f.store.Payments.GetByReference(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)
	assert.Equal(t, int64(700), p.AmountCents)
}

func TestConfirm_DifferentPaymentIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)
	b, _ := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)

	_, err := f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_a"})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_b"})
	assert.ErrorIs(t, err, domain.ErrPaymentMismatch)
}

func TestConfirm_CancelledBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)
	b, _ := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	_, err := f.svc.Cancel(ctx, actorOf(f.alice), b.PublicID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_x", AllowLate: true})
	assert.ErrorIs(t, err, domain.ErrBookingCancelled)
	assert.Zero(t, f.paymentRows(t, b.ID))
}

func TestConfirm_ExpiredHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)
	b, _ := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	f.clock.Advance(16 * time.Minute)

	_, err := f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_late"})
	assert.ErrorIs(t, err, domain.ErrBookingExpired)
	assert.Equal(t, domain.BookingPending, f.reload(t, b.ID).Status)

	res, err := f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_late", AllowLate: true})
	require.NoError(t, err)
	assert.True(t, res.Late)
	assert.True(t, res.Booking.ConfirmedAfterExpiry)
	assert.Equal(t, domain.BookingConfirmed, res.Booking.Status)
}

func TestConfirm_LateHoldWhosePlaceWasTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 1)

	stale, err := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)
	f.clock.Advance(16 * time.Minute)

	taken, err := f.svc.Create(ctx, actorOf(f.bob), ev.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, taken.ID, ConfirmInput{Reference: "pi_bob"})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, stale.ID, ConfirmInput{Reference: "pi_alice", AllowLate: true})
	assert.ErrorIs(t, err, domain.ErrBookingExpired)
	assert.Equal(t, domain.BookingPending, f.reload(t, stale.ID).Status)
	assert.Zero(t, f.paymentRows(t, stale.ID))

	confirmed, err := f.store.Bookings.ConfirmedQuantity(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
}

func TestConfirm_OrganizerFeePublishesDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)
	f.db.Model(ev).Update("status", domain.EventDraft)
	expires := ev.StartTime
	fee := dbtest.CreateBooking(t, f.db, &domain.Booking{
		UserID: f.organizer.ID, EventID: ev.ID, AmountCents: 500,
		Status: domain.BookingPending, IsOrganizerBooking: true, ExpiresAt: &expires,
	})

	res, err := f.svc.Confirm(ctx, fee.ID, ConfirmInput{Reference: "pi_fee", Provider: "stripe"})
	require.NoError(t, err)
	assert.True(t, res.Published)

	got := dbtest.Reload[domain.Event](t, f.db, ev.ID)
	assert.Equal(t, domain.EventPublished, got.Status)
	assert.NotNil(t, got.PublishedAt)
}

func TestCancel_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)

	pending, _ := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)

	_, err := f.svc.Cancel(ctx, actorOf(f.bob), pending.PublicID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.svc.Cancel(ctx, actorOf(f.alice), pending.PublicID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	// second cancel is a no-op
	again, err := f.svc.Cancel(ctx, actorOf(f.alice), pending.PublicID)
	require.NoError(t, err)
	assert.Equal(t, got.CancelledAt.Unix(), again.CancelledAt.Unix())
}

func TestCancel_ConfirmedNeedsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)
	b, _ := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	_, err := f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_1"})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, actorOf(f.alice), b.PublicID)
	assert.ErrorIs(t, err, domain.ErrBookingAlreadyConfirmed)

	f.refunder.On("RefundBookings", mock.Anything, mock.MatchedBy(func(bs []domain.Booking) bool {
		return len(bs) == 1 && bs[0].ID == b.ID
	})).Once()

	got, err := f.svc.Cancel(ctx, actorOf(f.admin), b.PublicID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Equal(t, reasonAdminCancelled, got.CancellationReason)
	f.refunder.AssertExpectations(t)
}

func TestCancel_Deadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10, f.clock.Now().Add(2*time.Hour))
	b, _ := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)

	_, err := f.svc.Cancel(ctx, actorOf(f.alice), b.PublicID)
	assert.ErrorIs(t, err, domain.ErrCancellationDeadline)
	assert.Equal(t, domain.BookingPending, f.reload(t, b.ID).Status)
}

func TestCancel_OrganizerFee(t *testing.T) {
	f := newFixture(t)
	ev := f.publishedEvent(t, 700, 10)
	expires := ev.StartTime
	fee := dbtest.CreateBooking(t, f.db, &domain.Booking{
		UserID: f.organizer.ID, EventID: ev.ID, AmountCents: 500,
		Status: domain.BookingPending, IsOrganizerBooking: true, ExpiresAt: &expires,
	})

	_, err := f.svc.Cancel(context.Background(), actorOf(f.organizer), fee.PublicID)
	assert.ErrorIs(t, err, domain.ErrOrganizerBooking)
}

func TestExpireDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)

	due, _ := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	past := f.clock.Now().Add(-time.Minute)
	f.db.Model(&domain.Booking{}).Where("id = ?", due.ID).Update("expires_at", past)
	live, _ := f.svc.Create(ctx, actorOf(f.bob), ev.ID, 1)

	report, err := f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Affected)
	assert.Zero(t, report.Failed())

	got := f.reload(t, due.ID)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
	assert.Equal(t, reasonExpired, got.CancellationReason)
	assert.Equal(t, domain.BookingPending, f.reload(t, live.ID).Status)

	// a second run finds nothing
	report, err = f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Affected)
}

func TestGet_ExpiresStaleHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)
	b, _ := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)

	_, err := f.svc.Get(ctx, actorOf(f.bob), b.PublicID)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	f.clock.Advance(time.Hour)
	got, err := f.svc.Get(ctx, actorOf(f.alice), b.PublicID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)
}

func TestExpireAndConfirmRace(t *testing.T) {
	for i := 0; i < 10; i++ {
		t.Run(fmt.Sprintf("round_%d", i), func(t *testing.T) {
			raceOnce(t)
		})
	}
}

func raceOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(t, 700, 10)
	b, err := f.svc.Create(ctx, actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)
	f.clock.Advance(16 * time.Minute)

	var (
		wg         sync.WaitGroup
		confirmErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.svc.ExpireDue(ctx)
	}()
	go func() {
		defer wg.Done()
		_, confirmErr = f.svc.Confirm(ctx, b.ID, ConfirmInput{Reference: "pi_race", AllowLate: true})
	}()
	wg.Wait()

	got := f.reload(t, b.ID)
	switch got.Status {
	case domain.BookingConfirmed:
		assert.NoError(t, confirmErr)
		assert.True(t, got.ConfirmedAfterExpiry)
		assert.Nil(t, got.CancelledAt)
	case domain.BookingCancelled:
		assert.ErrorIs(t, confirmErr, domain.ErrBookingCancelled)
		assert.Nil(t, got.ConfirmedAt)
		assert.Zero(t, f.paymentRows(t, b.ID))
	default:
		t.Fatalf("booking left in %s", got.Status)
	}
}
