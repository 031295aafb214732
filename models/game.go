package models

import (
	"time"

	"gorm.io/datatypes"
)

type Game struct {
	ID                   uint                      `json:"id" gorm:"primaryKey"`
	Code                 string                    `json:"code" gorm:"uniqueIndex;not null"`
	HostToken            string                    `json:"-" gorm:"uniqueIndex;not null"`
	Status               string                    `json:"status" gorm:"not null;default:'lobby'"` // lobby, in_round, between_rounds, sudden_death, finished
	RoundNumber          int                       `json:"round_number" gorm:"not null;default:1"`
	CurrentQuestionIndex int                       `json:"current_question_index" gorm:"not null;default:0"`
	QuestionEndAt        *time.Time                `json:"question_end_at"`
	SuddenDeathPlayerIDs datatypes.JSONSlice[uint] `json:"sudden_death_player_ids"`
	SuddenDeathAttempts  int                       `json:"sudden_death_attempts" gorm:"not null;default:0"`
	SuddenDeathStartedAt *time.Time                `json:"sudden_death_started_at"`
	SDOffset             int                       `json:"sd_offset" gorm:"not null;default:0"`
	CreatedAt            time.Time                 `json:"created_at"`
	UpdatedAt            time.Time                 `json:"updated_at"`

	// Relationships
	Players     []Player     `json:"players,omitempty" gorm:"foreignKey:GameID"`
	Submissions []Submission `json:"submissions,omitempty" gorm:"foreignKey:GameID"`
}
