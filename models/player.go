package models

import "time"

type Player struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	GameID         uint      `json:"game_id" gorm:"not null;uniqueIndex:idx_players_game_name"`
	Name           string    `json:"name" gorm:"not null;uniqueIndex:idx_players_game_name"`
	IsHost         bool      `json:"is_host" gorm:"not null;default:false"`
	Eliminated     bool      `json:"eliminated" gorm:"not null;default:false"`
	Ready          bool      `json:"ready" gorm:"not null;default:false"`
	TotalScore     int       `json:"total_score" gorm:"not null;default:0"`
	ReconnectToken string    `json:"-" gorm:"uniqueIndex;not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relationships
	Game Game `json:"game,omitempty"`
}
