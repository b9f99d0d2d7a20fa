package types

import (
	"time"

	"github.com/google/uuid"
)

// PlaceTag is one canonical tag observed at one place, with the number of
// times any review attached it. At most min(5, N) rows per place carry
// IsRepresentative=true.
type PlaceTag struct {
	ID               uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PlaceID          int64     `gorm:"not null;index:idx_place_tag,unique,priority:1" json:"place_id"`
	TagID            string    `gorm:"not null;index:idx_place_tag,unique,priority:2;column:tag_id" json:"tag_id"`
	Count            int       `gorm:"not null;default:1;column:count" json:"count"`
	IsRepresentative bool      `gorm:"not null;default:false;column:is_representative" json:"is_representative"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PlaceTag) TableName() string { return "place_tag" }
