package models

// GlobalState is a singleton row with bot-wide bookkeeping.
type GlobalState struct {
	ID           uint `gorm:"primaryKey"`
	LastUpdateID int
}

const GlobalStateID = 1
