package services

import (
	"time"

	"bokquiz/game"
	"bokquiz/models"

	"gorm.io/gorm"
)

// suddenDeathNext drives one HostNext call while the game is in sudden death.
// The episode runs at most game.MaxSuddenDeathAttempts questions over a
// cyclic window into the round-4 pool; once the cap is reached the aggregate
// decision eliminates exactly one participant. Degenerate inputs abort back
// to between_rounds with a reason code instead of leaving the game stuck.
func (s *GameService) suddenDeathNext(tx *gorm.DB, g *models.Game, now time.Time, ev *eventQueue) (*AdvanceResult, error) {
	ids := dedupeIDs(g.SuddenDeathPlayerIDs)

	var participants []models.Player
	if len(ids) > 0 {
		if err := tx.Where("game_id = ? AND is_host = ? AND id IN ?", g.ID, false, ids).
			Order("id").Find(&participants).Error; err != nil {
			return nil, err
		}
	}
	if len(participants) == 0 {
		if err := s.abortSuddenDeath(tx, g); err != nil {
			return nil, err
		}
		return &AdvanceResult{SuddenDeathEnded: true, Reason: "no_participants"}, nil
	}

	var pool []models.Question
	if err := tx.Where("round_number = ?", game.SuddenDeathRound).
		Order("id").Find(&pool).Error; err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		s.log.Error().Str("code", g.Code).Msg("no sudden death questions configured")
		if err := s.abortSuddenDeath(tx, g); err != nil {
			return nil, err
		}
		return &AdvanceResult{SuddenDeathEnded: true, Reason: "no_sd_questions"}, nil
	}

	if g.QuestionEndAt == nil || !now.Before(*g.QuestionEndAt) {
		if g.QuestionEndAt != nil {
			// The open question just expired. Its submissions are read for
			// diagnostics only; elimination waits for the attempt cap.
			s.logExpiredAttempt(tx, g, participants)

			g.SuddenDeathAttempts++
			g.CurrentQuestionIndex++
			if g.SuddenDeathAttempts < game.MaxSuddenDeathAttempts {
				if err := s.openCurrentQuestion(tx, g, now, ev); err != nil {
					return nil, err
				}
				return &AdvanceResult{SuddenDeathContinue: true, Attempt: g.SuddenDeathAttempts}, nil
			}
		} else if g.SuddenDeathAttempts < game.MaxSuddenDeathAttempts {
			if g.SuddenDeathAttempts == 0 {
				g.SuddenDeathAttempts = 1
			}
			if err := s.openCurrentQuestion(tx, g, now, ev); err != nil {
				return nil, err
			}
			return &AdvanceResult{SuddenDeathStarted: true, Attempt: g.SuddenDeathAttempts}, nil
		}
	}

	attempts := g.SuddenDeathAttempts
	if attempts <= 0 {
		if err := s.abortSuddenDeath(tx, g); err != nil {
			return nil, err
		}
		return &AdvanceResult{SuddenDeathEnded: true, Reason: "no_attempts"}, nil
	}

	// Score the questions this episode actually opened. The window starts at
	// the cyclic base offset, the same arithmetic currentQuestion uses.
	window := game.PoolWindow(g.SDOffset, attempts, len(pool))
	usedIDs := make([]uint, len(window))
	for i, idx := range window {
		usedIDs[i] = pool[idx].ID
	}

	stats, err := s.suddenDeathStats(tx, g, participants, usedIDs)
	if err != nil {
		return nil, err
	}

	loserID, ok := game.ResolveSuddenDeath(stats)
	if !ok {
		if err := s.abortSuddenDeath(tx, g); err != nil {
			return nil, err
		}
		return &AdvanceResult{SuddenDeathEnded: true, Reason: "no_clear_loser", UsedQuestionIDs: usedIDs}, nil
	}

	var loser *models.Player
	for i := range participants {
		if participants[i].ID == loserID {
			loser = &participants[i]
			break
		}
	}
	if loser == nil {
		return nil, game.ErrInternal
	}

	if err := tx.Model(&models.Player{}).
		Where("id = ?", loser.ID).
		Update("eliminated", true).Error; err != nil {
		return nil, err
	}

	var remaining int64
	if err := tx.Model(&models.Player{}).
		Where("game_id = ? AND is_host = ? AND eliminated = ?", g.ID, false, false).
		Count(&remaining).Error; err != nil {
		return nil, err
	}

	// Advance the cyclic offset so the next episode starts from fresh questions.
	g.SDOffset = game.PoolIndex(g.SDOffset, attempts, len(pool))
	clearSuddenDeath(g)
	g.Status = game.StatusBetweenRounds
	if remaining <= 1 {
		g.Status = game.StatusFinished
	}
	if err := tx.Save(g).Error; err != nil {
		return nil, err
	}

	ev.add(game.EventSuddenDeathEliminated, map[string]any{
		"name":              loser.Name,
		"used_question_ids": usedIDs,
	})
	s.log.Info().Str("code", g.Code).Str("eliminated", loser.Name).
		Int("attempts", attempts).Msg("sudden death resolved")

	return &AdvanceResult{
		SuddenDeathEnded: true,
		Eliminated:       loser.Name,
		Reason:           "aggregate",
		UsedQuestionIDs:  usedIDs,
	}, nil
}

func (s *GameService) suddenDeathStats(tx *gorm.DB, g *models.Game, participants []models.Player, usedIDs []uint) ([]game.SuddenDeathStat, error) {
	stats := make([]game.SuddenDeathStat, len(participants))
	byID := make(map[uint]*game.SuddenDeathStat, len(participants))
	pids := make([]uint, len(participants))
	for i, p := range participants {
		stats[i] = game.SuddenDeathStat{PlayerID: p.ID}
		byID[p.ID] = &stats[i]
		pids[i] = p.ID
	}

	var subs []models.Submission
	if err := tx.Where("game_id = ? AND correct = ? AND question_id IN ? AND player_id IN ?",
		g.ID, true, usedIDs, pids).Find(&subs).Error; err != nil {
		return nil, err
	}
	for _, sub := range subs {
		st := byID[sub.PlayerID]
		if st == nil {
			continue
		}
		st.CorrectCount++
		st.LatencySum += sub.LatencyMS
	}
	return stats, nil
}

func (s *GameService) logExpiredAttempt(tx *gorm.DB, g *models.Game, participants []models.Player) {
	q, err := s.currentQuestion(tx, g)
	if err != nil {
		return
	}
	pids := make([]uint, len(participants))
	for i, p := range participants {
		pids[i] = p.ID
	}
	var correct int64
	if err := tx.Model(&models.Submission{}).
		Where("game_id = ? AND question_id = ? AND player_id IN ? AND correct = ?", g.ID, q.ID, pids, true).
		Count(&correct).Error; err != nil {
		return
	}
	s.log.Info().Str("code", g.Code).Int("question_index", g.CurrentQuestionIndex).
		Int64("correct", correct).Int("participants", len(participants)).
		Msg("sudden death question expired")
}

func (s *GameService) abortSuddenDeath(tx *gorm.DB, g *models.Game) error {
	clearSuddenDeath(g)
	g.Status = game.StatusBetweenRounds
	return tx.Save(g).Error
}

func clearSuddenDeath(g *models.Game) {
	g.QuestionEndAt = nil
	g.SuddenDeathPlayerIDs = nil
	g.SuddenDeathAttempts = 0
	g.SuddenDeathStartedAt = nil
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
