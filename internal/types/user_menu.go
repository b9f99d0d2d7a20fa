package types

import (
	"time"

	"github.com/google/uuid"
)

// UserMenu is a menu item the user has ordered, used as a user feature token.
type UserMenu struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID int64     `gorm:"not null;index:idx_user_menu,unique,priority:1" json:"user_id"`
	Menu   string    `gorm:"not null;index:idx_user_menu,unique,priority:2;column:menu" json:"menu"`
	Count  int       `gorm:"not null;default:1;column:count" json:"count"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserMenu) TableName() string { return "user_menu" }
