package models

import (
	"fmt"
	"time"
)

type PromoCode struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Code        string `gorm:"uniqueIndex;not null"`
	UserID      string `gorm:"type:uuid;index;not null"`
	SpecialCode string
	Date        time.Time `gorm:"index;not null"`

	User *User `gorm:"foreignKey:UserID"`
}

func (p *PromoCode) String() string {
	return fmt.Sprintf("PromoCode(%d, %q, %s, %s)", p.ID, p.Code, p.SpecialCode, p.Date.Format(time.RFC3339))
}

// PromoStats is what /stats reports.
type PromoStats struct {
	Users  int64
	Promos int64
}
