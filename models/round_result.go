package models

import (
	"time"

	"gorm.io/datatypes"
)

// RoundResult is the cached snapshot of one round's outcome. The composite
// unique index guarantees at most one per (game, round); the payload is
// written once and returned verbatim for every later read.
type RoundResult struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	GameID      uint           `json:"game_id" gorm:"not null;uniqueIndex:uniq_round_result"`
	RoundNumber int            `json:"round_number" gorm:"not null;uniqueIndex:uniq_round_result"`
	Payload     datatypes.JSON `json:"payload" gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// Relationships
	Game Game `json:"game,omitempty"`
}
