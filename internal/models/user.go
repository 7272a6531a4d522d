package models

import (
	"fmt"
	"time"
)

type User struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	TelegramID int64  `gorm:"uniqueIndex"`
	ChatID     int64

	Name        string
	Phone       string `gorm:"index"`
	Address     string
	PhotoFileID string

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (u *User) String() string {
	return fmt.Sprintf("User(%s, tg=%d, %q, %s)", u.ID, u.TelegramID, u.Name, u.Phone)
}

// BlockedPhone marks a phone number as banned from the bot. Blocking works by
// phone so it also covers people who haven't registered yet.
type BlockedPhone struct {
	Phone     string    `gorm:"primaryKey"`
	BlockedBy int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
