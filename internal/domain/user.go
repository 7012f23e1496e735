package domain

import "time"

type UserRole string

const (
	RoleUser      UserRole = "user"
	RoleOrganizer UserRole = "organizer"
	RoleAdmin     UserRole = "admin"
)

type User struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null" validate:"required,email"`
	Name      string    `json:"name" gorm:"type:varchar(255)"`
	Role      UserRole  `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Actor is whoever triggers a transition: a request user or the system itself.
type Actor struct {
	UserID int64
	Role   UserRole
}

// SystemActor is used by reconciliation jobs.
var SystemActor = Actor{Role: RoleAdmin}

// Privileged actors may cancel confirmed bookings and any event.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin
}
