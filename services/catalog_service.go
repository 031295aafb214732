package services

import (
	"encoding/json"
	"fmt"
	"os"

	"bokquiz/game"
	"bokquiz/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// CatalogService manages the question catalog the engine reads from: rounds
// 1-3 hold five questions each, round 4 is the sudden-death pool. Content is
// seeded once from a JSON file and immutable afterwards.
type CatalogService struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewCatalogService(db *gorm.DB, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		db:  db,
		log: log.With().Str("component", "catalog").Logger(),
	}
}

type catalogQuestion struct {
	RoundNumber  int      `json:"round_number"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Points       int      `json:"points"`
	TimeLimit    int      `json:"time_limit"`
}

// SeedFromFile loads questions into an empty catalog. An already-populated
// catalog is left untouched; an empty path is a no-op.
func (s *CatalogService) SeedFromFile(path string) error {
	if path == "" {
		return nil
	}

	var existing int64
	if err := s.db.Model(&models.Question{}).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		s.log.Info().Int64("questions", existing).Msg("catalog already seeded")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read question file: %w", err)
	}

	var entries []catalogQuestion
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse question file: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for i, e := range entries {
			if e.RoundNumber < 1 || e.RoundNumber > game.SuddenDeathRound {
				return fmt.Errorf("question %d: round_number %d out of range", i, e.RoundNumber)
			}
			if len(e.Options) < 2 {
				return fmt.Errorf("question %d: needs at least two options", i)
			}
			if e.CorrectIndex < 0 || e.CorrectIndex >= len(e.Options) {
				return fmt.Errorf("question %d: correct_index %d out of range", i, e.CorrectIndex)
			}

			q := models.Question{
				RoundNumber:  e.RoundNumber,
				Text:         e.Text,
				Options:      e.Options,
				CorrectIndex: e.CorrectIndex,
				Points:       e.Points,
				TimeLimit:    e.TimeLimit,
			}
			if q.Points <= 0 {
				q.Points = 1
			}
			if q.TimeLimit <= 0 {
				q.TimeLimit = 25
			}
			if err := tx.Create(&q).Error; err != nil {
				return err
			}
		}
		s.log.Info().Int("questions", len(entries)).Str("file", path).Msg("catalog seeded")
		return nil
	})
}

// CheckRoundShape logs a warning for every regular round that does not hold
// exactly five questions. Games cannot start until the shape is right; this
// just surfaces the problem at boot instead of at the first HostStart.
func (s *CatalogService) CheckRoundShape() {
	for r := 1; r <= game.RegularRounds; r++ {
		var n int64
		if err := s.db.Model(&models.Question{}).Where("round_number = ?", r).Count(&n).Error; err != nil {
			s.log.Error().Err(err).Int("round", r).Msg("failed to count catalog round")
			return
		}
		if n != game.QuestionsPerRound {
			s.log.Warn().Int("round", r).Int64("questions", n).
				Msg("round does not hold exactly 5 questions; games cannot start")
		}
	}

	var pool int64
	if err := s.db.Model(&models.Question{}).
		Where("round_number = ?", game.SuddenDeathRound).Count(&pool).Error; err == nil && pool == 0 {
		s.log.Warn().Msg("sudden death pool is empty; ties will abort without elimination")
	}
}
