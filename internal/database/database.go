package database

import (
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"lingomeet/internal/domain"
)

func Connect(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		logrus.Info("Connecting to PostgreSQL...")
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}

	logrus.WithField("dsn", dsn).Info("Using SQLite for local development")

	return gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		&gorm.Config{},
	)
}

// Models lists every persisted entity in dependency order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Venue{},
		&domain.Event{},
		&domain.Booking{},
		&domain.Payment{},
		&domain.GameSession{},
	}
}

// Migrate creates the schema, including the constraints gorm tags cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	// at most one live hold per (user, event); organizer fee bookings are separate
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_one_pending
ON bookings (user_id, event_id)
WHERE status = 'pending' AND is_organizer_booking = false`).Error
}
