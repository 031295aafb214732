package models

import "time"

// Submission records one answer attempt. The composite unique index makes the
// (game, player, question) tuple the idempotency key: inserts use ON CONFLICT
// DO NOTHING, so a resubmission never creates a second row or mutates the first.
type Submission struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	GameID        uint      `json:"game_id" gorm:"not null;uniqueIndex:uniq_submission_per_q"`
	PlayerID      uint      `json:"player_id" gorm:"not null;uniqueIndex:uniq_submission_per_q"`
	QuestionID    uint      `json:"question_id" gorm:"not null;uniqueIndex:uniq_submission_per_q"`
	SelectedIndex int       `json:"selected_index" gorm:"not null"`
	Correct       bool      `json:"correct" gorm:"not null;default:false"`
	SubmittedAt   time.Time `json:"submitted_at" gorm:"not null"`
	LatencyMS     int       `json:"latency_ms" gorm:"column:latency_ms;not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relationships
	Game     Game     `json:"game,omitempty"`
	Player   Player   `json:"player,omitempty"`
	Question Question `json:"question,omitempty"`
}
