package types

import (
	"time"
)

// User ids come from the main service; this backend never mints them.
type User struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	Age      int    `gorm:"not null;default:0;column:age" json:"age"`
	Nickname string `gorm:"column:nickname" json:"nickname"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "user" }
