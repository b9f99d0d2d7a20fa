package types

import (
	"time"
)

// PlaceVisit keeps a running average of visitor age per place. AvgAge is
// updated incrementally on each visit; VisitCount is the divisor.
type PlaceVisit struct {
	PlaceID    int64   `gorm:"primaryKey" json:"place_id"`
	VisitCount int     `gorm:"not null;default:0;column:visit_count" json:"visit_count"`
	AvgAge     float64 `gorm:"not null;default:0;column:avg_age" json:"avg_age"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PlaceVisit) TableName() string { return "place_visit" }
