package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question rows form a global catalog shared by all games. Rounds 1-3 hold
// the regular questions; round 4 is the sudden-death pool.
type Question struct {
	ID           uint                        `json:"id" gorm:"primaryKey"`
	RoundNumber  int                         `json:"round_number" gorm:"not null;index"`
	Text         string                      `json:"text" gorm:"not null"`
	Options      datatypes.JSONSlice[string] `json:"options" gorm:"not null"`
	CorrectIndex int                         `json:"correct_index" gorm:"not null"`
	Points       int                         `json:"points" gorm:"not null;default:1"`
	TimeLimit    int                         `json:"time_limit" gorm:"not null;default:25"` // seconds
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}
