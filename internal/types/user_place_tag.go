package types

import (
	"time"

	"github.com/google/uuid"
)

// UserPlaceTag records that a user's review of a place produced a canonical
// tag. Existence-only: repeats of the same triple are dropped on conflict.
type UserPlaceTag struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID  int64     `gorm:"not null;index:idx_user_place_tag,unique,priority:1" json:"user_id"`
	PlaceID int64     `gorm:"not null;index:idx_user_place_tag,unique,priority:2" json:"place_id"`
	TagID   string    `gorm:"not null;index:idx_user_place_tag,unique,priority:3;column:tag_id" json:"tag_id"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserPlaceTag) TableName() string { return "user_place_tag" }
