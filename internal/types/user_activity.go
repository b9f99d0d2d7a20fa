package types

import (
	"time"

	"github.com/google/uuid"
)

// UserActivity is an activity preference (study, date, work, ...) used as a
// user feature token.
type UserActivity struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   int64     `gorm:"not null;index:idx_user_activity,unique,priority:1" json:"user_id"`
	Activity string    `gorm:"not null;index:idx_user_activity,unique,priority:2;column:activity" json:"activity"`
	Count    int       `gorm:"not null;default:1;column:count" json:"count"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserActivity) TableName() string { return "user_activity" }
