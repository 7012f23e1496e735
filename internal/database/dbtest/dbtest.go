// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"lingomeet/internal/database"
	"lingomeet/internal/domain"
)

// Open returns a migrated in-memory database private to t.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", name)
	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{DriverName: "sqlite", DSN: dsn}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// one connection keeps the shared in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, role domain.UserRole) *domain.User {
	t.Helper()
	var n int64
	db.Model(&domain.User{}).Count(&n)
	u := &domain.User{
		Email: fmt.Sprintf("user%d@example.com", n+1),
		Name:  fmt.Sprintf("User %d", n+1),
		Role:  role,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

func CreateVenue(t *testing.T, db *gorm.DB, active bool) *domain.Venue {
	t.Helper()
	v := &domain.Venue{Name: "Café Babel", City: "Berlin", Address: "Torstraße 1", IsActive: true}
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("failed to create venue: %v", err)
	}
	if !active {
		// is_active has a default, so false must be written explicitly
		db.Model(v).Update("is_active", false)
		v.IsActive = false
	}
	return v
}

// CreateEvent inserts an event as-is, bypassing the lifecycle rules, so
// tests can start from any state.
func CreateEvent(t *testing.T, db *gorm.DB, ev *domain.Event) *domain.Event {
	t.Helper()
	if ev.Currency == "" {
		ev.Currency = "eur"
	}
	if ev.Language == "" {
		ev.Language = "Spanish"
	}
	if ev.Status == "" {
		ev.Status = domain.EventPublished
	}
	ev.StartTime = ev.StartTime.UTC()
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return ev
}

// CreateBooking inserts a booking as-is.
func CreateBooking(t *testing.T, db *gorm.DB, b *domain.Booking) *domain.Booking {
	t.Helper()
	if b.Quantity == 0 {
		b.Quantity = 1
	}
	if b.Currency == "" {
		b.Currency = "eur"
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	return b
}

// Reload reads the current row with the given primary key.
func Reload[T any](t *testing.T, db *gorm.DB, id int64) *T {
	t.Helper()
	var out T
	if err := db.First(&out, id).Error; err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	return &out
}
