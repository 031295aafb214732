package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"bokquiz/game"
	"bokquiz/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// codeAlphabet avoids lookalike characters so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeLength    = 6
	tokenLength   = 32
	stateCacheTTL = 2 * time.Hour
	rfc3339ms     = "2006-01-02T15:04:05.000Z07:00"
)

// Emitter fans state-change notifications out to subscribed clients.
// Delivery is best-effort: the engine never blocks on it and never lets an
// emission failure affect a committed mutation.
type Emitter interface {
	Emit(code string, event string, payload any)
}

// GameService is the game state machine. Every mutating operation runs inside
// a transaction that first takes a row lock on the game, so all state
// transitions for one game are totally ordered; events are emitted only after
// the transaction commits.
type GameService struct {
	db      *gorm.DB
	redis   *redis.Client
	emitter Emitter
	log     zerolog.Logger

	// now is read exactly once per request and threaded through, so a single
	// call never observes two different clocks. Overridable in tests.
	now func() time.Time
}

func NewGameService(db *gorm.DB, rdb *redis.Client, emitter Emitter, log zerolog.Logger) *GameService {
	return &GameService{
		db:      db,
		redis:   rdb,
		emitter: emitter,
		log:     log.With().Str("component", "game_service").Logger(),
		now:     time.Now,
	}
}

type CreatedGame struct {
	Code         string `json:"code"`
	HostToken    string `json:"host_token"`
	HostPlayerID uint   `json:"host_player_id"`
}

type JoinedPlayer struct {
	PlayerID       uint   `json:"player_id"`
	ReconnectToken string `json:"reconnect_token"`
}

type StartResult struct {
	Started     bool `json:"started"`
	RoundNumber int  `json:"round_number"`
	Index       int  `json:"index"`
}

type AdvanceResult struct {
	Advanced            bool   `json:"advanced,omitempty"`
	Index               int    `json:"index,omitempty"`
	RoundEnded          bool   `json:"round_ended,omitempty"`
	NextRoundStarted    bool   `json:"next_round_started,omitempty"`
	RoundNumber         int    `json:"round_number,omitempty"`
	SuddenDeathStarted  bool   `json:"sudden_death_started,omitempty"`
	SuddenDeathContinue bool   `json:"sudden_death_continue,omitempty"`
	SuddenDeathEnded    bool   `json:"sudden_death_ended,omitempty"`
	Attempt             int    `json:"attempt,omitempty"`
	Eliminated          string `json:"eliminated,omitempty"`
	Reason              string `json:"reason,omitempty"`
	UsedQuestionIDs     []uint `json:"used_question_ids,omitempty"`
}

type StatePlayer struct {
	Name       string `json:"name"`
	Eliminated bool   `json:"eliminated"`
	IsHost     bool   `json:"is_host"`
	Ready      bool   `json:"ready"`
}

type SuddenDeathParticipant struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type StateView struct {
	Status                  string                   `json:"status"`
	RoundNumber             int                      `json:"round_number"`
	CurrentQuestionIndex    int                      `json:"current_question_index"`
	TimeRemainingMS         int64                    `json:"time_remaining_ms"`
	Players                 []StatePlayer            `json:"players"`
	SuddenDeathParticipants []SuddenDeathParticipant `json:"sudden_death_participants"`
}

type QuestionView struct {
	RoundNumber int      `json:"round_number"`
	Index       int      `json:"index"`
	Text        string   `json:"text"`
	Options     []string `json:"options"`
	EndsAt      string   `json:"ends_at"`
}

type MeView struct {
	Name       string `json:"name"`
	Eliminated bool   `json:"eliminated"`
	IsHost     bool   `json:"is_host"`
	TotalScore int    `json:"total_score"`
}

type RoundResultView struct {
	Round                      int                     `json:"round"`
	RoundNumber                int                     `json:"round_number"`
	Leaderboard                []game.LeaderboardEntry `json:"leaderboard"`
	EliminatedNames            []string                `json:"eliminated_names"`
	NextState                  string                  `json:"next_state"`
	SuddenDeathPlayers         []string                `json:"sudden_death_players"`
	UsedSuddenDeathQuestionIDs []uint                  `json:"used_sudden_death_question_ids"`
}

type AnswerKey struct {
	Round        int    `json:"round"`
	Text         string `json:"text"`
	CorrectIndex int    `json:"correct_index"`
}

type FinalResults struct {
	Winner  string      `json:"winner"`
	Answers []AnswerKey `json:"answers"`
}

// pendingEvent is an outbound notification queued during a transaction and
// emitted only after commit, so a client reacting to it reads committed state.
type pendingEvent struct {
	name    string
	payload any
}

type eventQueue struct {
	events []pendingEvent
}

func (q *eventQueue) add(name string, payload any) {
	q.events = append(q.events, pendingEvent{name: name, payload: payload})
}

func (q *eventQueue) reset() {
	q.events = nil
}

func (s *GameService) CreateGame(hostName string) (*CreatedGame, error) {
	name := strings.TrimSpace(hostName)
	if name == "" {
		return nil, game.NewError(game.CodeBadState, "Host name required")
	}

	g := models.Game{
		Code:        s.newCode(),
		HostToken:   s.newToken(),
		Status:      game.StatusLobby,
		RoundNumber: 1,
	}
	host := models.Player{
		Name:           name,
		IsHost:         true,
		Ready:          true,
		ReconnectToken: s.newToken(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&g).Error; err != nil {
			return err
		}
		host.GameID = g.ID
		return tx.Create(&host).Error
	})
	if err != nil {
		return nil, err
	}

	s.cacheState(g.Code)
	s.log.Info().Str("code", g.Code).Msg("game created")
	return &CreatedGame{Code: g.Code, HostToken: g.HostToken, HostPlayerID: host.ID}, nil
}

func (s *GameService) Join(code, name string) (*JoinedPlayer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, game.NewError(game.CodeBadState, "Name required")
	}

	var res *JoinedPlayer
	err := s.withGame(code, func(tx *gorm.DB, g *models.Game, ev *eventQueue) error {
		var nonHosts int64
		if err := tx.Model(&models.Player{}).
			Where("game_id = ? AND is_host = ?", g.ID, false).
			Count(&nonHosts).Error; err != nil {
			return err
		}
		if nonHosts >= game.MaxContestants {
			return game.ErrFull
		}

		var taken int64
		if err := tx.Model(&models.Player{}).
			Where("game_id = ? AND name = ?", g.ID, name).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return game.ErrNameTaken
		}

		if g.Status != game.StatusLobby {
			return game.NewError(game.CodeBadState, "Join only in lobby")
		}

		p := models.Player{
			GameID:         g.ID,
			Name:           name,
			Ready:          true,
			ReconnectToken: s.newToken(),
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}

		ev.add(game.EventPlayerJoined, map[string]any{"name": p.Name})
		if allReady, err := s.allNonHostsReady(tx, g.ID); err != nil {
			return err
		} else if allReady {
			ev.add(game.EventAllReady, map[string]any{})
		}

		res = &JoinedPlayer{PlayerID: p.ID, ReconnectToken: p.ReconnectToken}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *GameService) Rename(code string, playerID uint, token, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return game.NewError(game.CodeBadState, "Name required")
	}

	return s.withGame(code, func(tx *gorm.DB, g *models.Game, ev *eventQueue) error {
		if g.Status != game.StatusLobby {
			return game.NewError(game.CodeBadState, "Rename only in lobby")
		}

		p, err := s.findPlayer(tx, g.ID, playerID)
		if err != nil {
			return err
		}
		if p.ReconnectToken != token {
			return game.ErrAuth
		}

		var taken int64
		if err := tx.Model(&models.Player{}).
			Where("game_id = ? AND name = ? AND id <> ?", g.ID, newName, p.ID).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return game.ErrNameTaken
		}

		oldName := p.Name
		if err := tx.Model(p).Update("name", newName).Error; err != nil {
			return err
		}

		ev.add(game.EventPlayerRenamed, map[string]any{"old_name": oldName, "new_name": newName})
		return nil
	})
}

func (s *GameService) SetReady(code string, playerID uint, token string, ready bool) error {
	return s.withGame(code, func(tx *gorm.DB, g *models.Game, ev *eventQueue) error {
		if g.Status != game.StatusLobby {
			return game.NewError(game.CodeBadState, "Ready only in lobby")
		}

		p, err := s.findPlayer(tx, g.ID, playerID)
		if err != nil {
			return err
		}
		if p.ReconnectToken != token {
			return game.ErrAuth
		}

		if err := tx.Model(p).Update("ready", ready).Error; err != nil {
			return err
		}

		ev.add(game.EventPlayerReady, map[string]any{"name": p.Name, "ready": ready})
		if allReady, err := s.allNonHostsReady(tx, g.ID); err != nil {
			return err
		} else if allReady {
			ev.add(game.EventAllReady, map[string]any{})
		}
		return nil
	})
}

func (s *GameService) HostStart(code, hostToken string) (*StartResult, error) {
	var res *StartResult
	err := s.withGame(code, func(tx *gorm.DB, g *models.Game, ev *eventQueue) error {
		if err := requireHost(g, hostToken); err != nil {
			return err
		}
		if g.Status != game.StatusLobby {
			return game.NewError(game.CodeBadState, "Not in lobby")
		}

		for r := 1; r <= game.RegularRounds; r++ {
			var n int64
			if err := tx.Model(&models.Question{}).
				Where("round_number = ?", r).
				Count(&n).Error; err != nil {
				return err
			}
			if n != game.QuestionsPerRound {
				return game.NewError(game.CodeBadSetup, "Each round must have exactly 5 questions")
			}
		}

		g.Status = game.StatusInRound
		g.RoundNumber = 1
		g.CurrentQuestionIndex = 0
		if err := s.openCurrentQuestion(tx, g, s.now(), ev); err != nil {
			return err
		}

		res = &StartResult{Started: true, RoundNumber: g.RoundNumber, Index: g.CurrentQuestionIndex}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *GameService) HostNext(code, hostToken string) (*AdvanceResult, error) {
	var res *AdvanceResult
	err := s.withGame(code, func(tx *gorm.DB, g *models.Game, ev *eventQueue) error {
		if err := requireHost(g, hostToken); err != nil {
			return err
		}

		now := s.now()
		switch g.Status {
		case game.StatusSuddenDeath:
			r, err := s.suddenDeathNext(tx, g, now, ev)
			if err != nil {
				return err
			}
			res = r
			return nil

		case game.StatusInRound:
			if g.CurrentQuestionIndex >= game.LastQuestionIndex {
				g.Status = game.StatusBetweenRounds
				g.QuestionEndAt = nil
				if err := tx.Save(g).Error; err != nil {
					return err
				}
				ev.add(game.EventRoundEnded, map[string]any{"round_number": g.RoundNumber})
				res = &AdvanceResult{RoundEnded: true, RoundNumber: g.RoundNumber}
				return nil
			}
			g.CurrentQuestionIndex++
			if err := s.openCurrentQuestion(tx, g, now, ev); err != nil {
				return err
			}
			res = &AdvanceResult{Advanced: true, Index: g.CurrentQuestionIndex}
			return nil

		case game.StatusBetweenRounds:
			g.RoundNumber++
			g.CurrentQuestionIndex = 0
			g.Status = game.StatusInRound
			if err := s.openCurrentQuestion(tx, g, now, ev); err != nil {
				return err
			}
			ev.add(game.EventNextRoundStarted, map[string]any{"round_number": g.RoundNumber})
			res = &AdvanceResult{NextRoundStarted: true, RoundNumber: g.RoundNumber}
			return nil

		default:
			return game.NewError(game.CodeBadState, "Not in round or between rounds")
		}
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *GameService) Submit(code string, playerID uint, token string, selectedIndex int) error {
	return s.withGame(code, func(tx *gorm.DB, g *models.Game, ev *eventQueue) error {
		now := s.now()

		p, err := s.findPlayer(tx, g.ID, playerID)
		if err != nil {
			return err
		}
		if p.ReconnectToken != token {
			return game.ErrAuth
		}
		if p.Eliminated {
			return game.ErrEliminated
		}
		if p.IsHost {
			return game.ErrHostSubmit
		}
		if g.QuestionEndAt == nil || now.After(*g.QuestionEndAt) {
			return game.ErrClosed
		}

		if g.Status == game.StatusSuddenDeath && !containsID(g.SuddenDeathPlayerIDs, p.ID) {
			return game.ErrNotParticipant
		}

		q, err := s.currentQuestion(tx, g)
		if err != nil {
			return err
		}

		window := game.WindowFor(*g.QuestionEndAt, q.TimeLimit)
		sub := models.Submission{
			GameID:        g.ID,
			PlayerID:      p.ID,
			QuestionID:    q.ID,
			SelectedIndex: selectedIndex,
			Correct:       selectedIndex == q.CorrectIndex,
			SubmittedAt:   now,
			LatencyMS:     window.LatencyMS(now),
		}

		// First write wins; a resubmission for the same question is a no-op.
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "game_id"}, {Name: "player_id"}, {Name: "question_id"},
			},
			DoNothing: true,
		}).Create(&sub).Error
	})
}

func (s *GameService) GetRoundResult(code string) (*RoundResultView, error) {
	var view *RoundResultView
	err := s.withGame(code, func(tx *gorm.DB, g *models.Game, ev *eventQueue) error {
		if g.Status != game.StatusBetweenRounds {
			return game.NewError(game.CodeBadState, "Not between rounds")
		}

		round := g.RoundNumber

		var existing models.RoundResult
		err := tx.Where("game_id = ? AND round_number = ?", g.ID, round).First(&existing).Error
		if err == nil {
			view = s.decodeRoundResult(&existing, g.Status)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		stats, err := s.roundStats(tx, g, round)
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			s.log.Warn().Str("code", g.Code).Int("round", round).Msg("round result with no active players")
			v := emptyRoundResult(round, g.Status)
			return s.persistRoundResult(tx, g, v, ev, &view)
		}

		outcome := game.ResolveRound(stats)

		if len(outcome.EliminatedIDs) == 1 {
			if err := tx.Model(&models.Player{}).
				Where("id = ?", outcome.EliminatedIDs[0]).
				Update("eliminated", true).Error; err != nil {
				return err
			}
		}

		sdNames := []string{}
		if len(outcome.SuddenDeathIDs) > 0 {
			now := s.now()
			g.SuddenDeathPlayerIDs = datatypes.NewJSONSlice(outcome.SuddenDeathIDs)
			g.CurrentQuestionIndex = 0
			g.QuestionEndAt = nil
			g.SuddenDeathAttempts = 0
			g.SuddenDeathStartedAt = &now

			var tied []models.Player
			if err := tx.Where("game_id = ? AND id IN ?", g.ID, outcome.SuddenDeathIDs).
				Order("id").Find(&tied).Error; err != nil {
				return err
			}
			for _, p := range tied {
				sdNames = append(sdNames, p.Name)
			}
		}

		for _, st := range stats {
			if err := tx.Model(&models.Player{}).
				Where("id = ?", st.PlayerID).
				Update("total_score", gorm.Expr("total_score + ?", st.RoundScore)).Error; err != nil {
				return err
			}
		}

		g.Status = outcome.NextStatus
		if err := tx.Save(g).Error; err != nil {
			return err
		}

		eliminated := outcome.EliminatedNames
		if eliminated == nil {
			eliminated = []string{}
		}
		v := &RoundResultView{
			Round:                      round,
			RoundNumber:                round,
			Leaderboard:                outcome.Leaderboard,
			EliminatedNames:            eliminated,
			NextState:                  outcome.NextStatus,
			SuddenDeathPlayers:         sdNames,
			UsedSuddenDeathQuestionIDs: []uint{},
		}
		return s.persistRoundResult(tx, g, v, ev, &view)
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *GameService) HostFinish(code, hostToken string) error {
	return s.withGame(code, func(tx *gorm.DB, g *models.Game, ev *eventQueue) error {
		if err := requireHost(g, hostToken); err != nil {
			return err
		}
		g.Status = game.StatusFinished
		g.QuestionEndAt = nil
		return tx.Save(g).Error
	})
}

func (s *GameService) GetState(code string) (*StateView, error) {
	now := s.now()

	snap, err := s.loadStateSnapshot(code)
	if err != nil {
		return nil, err
	}

	return &StateView{
		Status:                  snap.Status,
		RoundNumber:             snap.RoundNumber,
		CurrentQuestionIndex:    snap.CurrentQuestionIndex,
		TimeRemainingMS:         game.RemainingMS(snap.QuestionEndAt, now),
		Players:                 snap.Players,
		SuddenDeathParticipants: snap.SuddenDeathParticipants,
	}, nil
}

func (s *GameService) GetCurrentQuestion(code string) (*QuestionView, error) {
	now := s.now()

	g, err := s.findGame(code)
	if err != nil {
		return nil, err
	}

	open := (g.Status == game.StatusInRound || g.Status == game.StatusSuddenDeath) &&
		g.QuestionEndAt != nil && now.Before(*g.QuestionEndAt)
	if !open {
		return nil, game.NewError(game.CodeBadState, "No open question")
	}

	q, err := s.currentQuestion(s.db, g)
	if err != nil {
		return nil, err
	}

	return &QuestionView{
		RoundNumber: displayRound(g),
		Index:       g.CurrentQuestionIndex,
		Text:        q.Text,
		Options:     []string(q.Options),
		EndsAt:      g.QuestionEndAt.UTC().Format(rfc3339ms),
	}, nil
}

func (s *GameService) GetMe(code string, playerID uint, token string) (*MeView, error) {
	g, err := s.findGame(code)
	if err != nil {
		return nil, err
	}

	p, err := s.findPlayer(s.db, g.ID, playerID)
	if err != nil {
		return nil, err
	}
	if p.ReconnectToken != token {
		return nil, game.ErrAuth
	}

	return &MeView{
		Name:       p.Name,
		Eliminated: p.Eliminated,
		IsHost:     p.IsHost,
		TotalScore: p.TotalScore,
	}, nil
}

func (s *GameService) GetResults(code string) (*FinalResults, error) {
	g, err := s.findGame(code)
	if err != nil {
		return nil, err
	}
	if g.Status != game.StatusFinished {
		return nil, game.NewError(game.CodeBadState, "Not finished")
	}

	var questions []models.Question
	if err := s.db.Order("round_number, id").Find(&questions).Error; err != nil {
		return nil, err
	}
	answers := make([]AnswerKey, len(questions))
	for i, q := range questions {
		answers[i] = AnswerKey{Round: q.RoundNumber, Text: q.Text, CorrectIndex: q.CorrectIndex}
	}

	var remaining []models.Player
	if err := s.db.Where("game_id = ? AND is_host = ? AND eliminated = ?", g.ID, false, false).
		Order("id").Find(&remaining).Error; err != nil {
		return nil, err
	}
	winner := ""
	if len(remaining) > 0 {
		winner = remaining[0].Name
	}

	return &FinalResults{Winner: winner, Answers: answers}, nil
}

// withGame runs fn inside a transaction holding an exclusive row lock on the
// game, then emits queued events and refreshes the state cache after commit.
func (s *GameService) withGame(code string, fn func(tx *gorm.DB, g *models.Game, ev *eventQueue) error) error {
	var ev eventQueue
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ev.reset()
		var g models.Game
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).First(&g).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return game.ErrNotFound
			}
			return err
		}
		return fn(tx, &g, &ev)
	})
	if err != nil {
		return err
	}

	for _, e := range ev.events {
		s.emit(code, e.name, e.payload)
	}
	s.cacheState(code)
	return nil
}

func (s *GameService) emit(code, event string, payload any) {
	if s.emitter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("code", code).Str("event", event).
				Interface("panic", r).Msg("event emission failed")
		}
	}()
	s.emitter.Emit(code, event, payload)
}

func (s *GameService) findGame(code string) (*models.Game, error) {
	var g models.Game
	if err := s.db.Where("code = ?", code).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, game.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *GameService) findPlayer(tx *gorm.DB, gameID, playerID uint) (*models.Player, error) {
	var p models.Player
	if err := tx.Where("game_id = ? AND id = ?", gameID, playerID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, game.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *GameService) allNonHostsReady(tx *gorm.DB, gameID uint) (bool, error) {
	var total, ready int64
	if err := tx.Model(&models.Player{}).
		Where("game_id = ? AND is_host = ?", gameID, false).
		Count(&total).Error; err != nil {
		return false, err
	}
	if err := tx.Model(&models.Player{}).
		Where("game_id = ? AND is_host = ? AND ready = ?", gameID, false, true).
		Count(&ready).Error; err != nil {
		return false, err
	}
	return total > 0 && ready == total, nil
}

// currentQuestion resolves the question the game is pointing at. In sudden
// death the pointer is an index into a cyclic window over the round-4 pool.
func (s *GameService) currentQuestion(tx *gorm.DB, g *models.Game) (*models.Question, error) {
	if g.Status == game.StatusSuddenDeath {
		var pool []models.Question
		if err := tx.Where("round_number = ?", game.SuddenDeathRound).
			Order("id").Find(&pool).Error; err != nil {
			return nil, err
		}
		idx := game.PoolIndex(g.SDOffset, g.CurrentQuestionIndex, len(pool))
		if idx < 0 {
			return nil, game.ErrNotFound
		}
		q := pool[idx]
		return &q, nil
	}

	var q models.Question
	err := tx.Where("round_number = ?", g.RoundNumber).
		Order("id").Offset(g.CurrentQuestionIndex).First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, game.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

// openCurrentQuestion sets the deadline for the game's current question,
// persists, and queues the question_started event. The correct index is never
// part of the payload.
func (s *GameService) openCurrentQuestion(tx *gorm.DB, g *models.Game, now time.Time, ev *eventQueue) error {
	q, err := s.currentQuestion(tx, g)
	if err != nil {
		return err
	}

	endsAt := now.Add(time.Duration(q.TimeLimit) * time.Second)
	g.QuestionEndAt = &endsAt
	if g.Status != game.StatusSuddenDeath {
		g.Status = game.StatusInRound
	}
	if err := tx.Save(g).Error; err != nil {
		return err
	}

	ev.add(game.EventQuestionStarted, map[string]any{
		"round_number": displayRound(g),
		"index":        g.CurrentQuestionIndex,
		"text":         q.Text,
		"options":      []string(q.Options),
		"ends_at":      endsAt.UTC().Format(rfc3339ms),
	})
	return nil
}

func (s *GameService) roundStats(tx *gorm.DB, g *models.Game, round int) ([]game.PlayerRoundStat, error) {
	var questions []models.Question
	if err := tx.Where("round_number = ?", round).Find(&questions).Error; err != nil {
		return nil, err
	}
	points := make(map[uint]int, len(questions))
	qids := make([]uint, 0, len(questions))
	for _, q := range questions {
		points[q.ID] = q.Points
		qids = append(qids, q.ID)
	}

	var active []models.Player
	if err := tx.Where("game_id = ? AND is_host = ? AND eliminated = ?", g.ID, false, false).
		Order("id").Find(&active).Error; err != nil {
		return nil, err
	}
	if len(active) == 0 || len(qids) == 0 {
		stats := make([]game.PlayerRoundStat, 0, len(active))
		for _, p := range active {
			stats = append(stats, game.PlayerRoundStat{PlayerID: p.ID, Name: p.Name})
		}
		return stats, nil
	}

	ids := make([]uint, len(active))
	byID := make(map[uint]*game.PlayerRoundStat, len(active))
	stats := make([]game.PlayerRoundStat, len(active))
	for i, p := range active {
		ids[i] = p.ID
		stats[i] = game.PlayerRoundStat{PlayerID: p.ID, Name: p.Name}
		byID[p.ID] = &stats[i]
	}

	var subs []models.Submission
	if err := tx.Where("game_id = ? AND correct = ? AND question_id IN ? AND player_id IN ?",
		g.ID, true, qids, ids).Find(&subs).Error; err != nil {
		return nil, err
	}
	for _, sub := range subs {
		st := byID[sub.PlayerID]
		if st == nil {
			continue
		}
		st.RoundScore += points[sub.QuestionID]
		st.LatencySum += sub.LatencyMS
	}
	return stats, nil
}

func (s *GameService) persistRoundResult(tx *gorm.DB, g *models.Game, v *RoundResultView, ev *eventQueue, out **RoundResultView) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rr := models.RoundResult{
		GameID:      g.ID,
		RoundNumber: v.Round,
		Payload:     datatypes.JSON(payload),
	}
	if err := tx.Create(&rr).Error; err != nil {
		return err
	}

	ev.add(game.EventRoundResult, roundResultEvent{
		RoundResultView: *v,
		Final:           true,
		ResultID:        rr.ID,
		Timestamp:       s.now().Unix(),
	})
	*out = v
	return nil
}

type roundResultEvent struct {
	RoundResultView
	Final     bool  `json:"final"`
	ResultID  uint  `json:"result_id"`
	Timestamp int64 `json:"timestamp"`
}

// decodeRoundResult returns a cached snapshot verbatim. A corrupt payload is
// logged and degraded to an empty result rather than failing the read.
func (s *GameService) decodeRoundResult(rr *models.RoundResult, status string) *RoundResultView {
	var v RoundResultView
	if err := json.Unmarshal(rr.Payload, &v); err != nil {
		s.log.Error().Err(err).Uint("round_result_id", rr.ID).Msg("corrupt round result payload")
		return emptyRoundResult(rr.RoundNumber, status)
	}
	v.Round = rr.RoundNumber
	v.RoundNumber = rr.RoundNumber
	if v.Leaderboard == nil {
		v.Leaderboard = []game.LeaderboardEntry{}
	}
	if v.EliminatedNames == nil {
		v.EliminatedNames = []string{}
	}
	if v.NextState == "" {
		v.NextState = status
	}
	if v.SuddenDeathPlayers == nil {
		v.SuddenDeathPlayers = []string{}
	}
	if v.UsedSuddenDeathQuestionIDs == nil {
		v.UsedSuddenDeathQuestionIDs = []uint{}
	}
	return &v
}

func emptyRoundResult(round int, status string) *RoundResultView {
	return &RoundResultView{
		Round:                      round,
		RoundNumber:                round,
		Leaderboard:                []game.LeaderboardEntry{},
		EliminatedNames:            []string{},
		NextState:                  status,
		SuddenDeathPlayers:         []string{},
		UsedSuddenDeathQuestionIDs: []uint{},
	}
}

func requireHost(g *models.Game, hostToken string) error {
	if hostToken == "" || hostToken != g.HostToken {
		return game.ErrHostAuth
	}
	return nil
}

func displayRound(g *models.Game) int {
	if g.Status == game.StatusSuddenDeath {
		return game.SuddenDeathRound
	}
	return g.RoundNumber
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (s *GameService) newCode() string {
	code, err := gonanoid.Generate(codeAlphabet, codeLength)
	if err != nil {
		// gonanoid only fails if the platform randomness source does.
		panic(err)
	}
	return code
}

func (s *GameService) newToken() string {
	token, err := gonanoid.New(tokenLength)
	if err != nil {
		panic(err)
	}
	return token
}

// stateSnapshot is the redis-cached public view of one game, refreshed after
// every committed mutation. Time remaining is derived at read time so the
// cache never goes stale within a question window.
type stateSnapshot struct {
	Status                  string                   `json:"status"`
	RoundNumber             int                      `json:"round_number"`
	CurrentQuestionIndex    int                      `json:"current_question_index"`
	QuestionEndAt           *time.Time               `json:"question_end_at"`
	Players                 []StatePlayer            `json:"players"`
	SuddenDeathParticipants []SuddenDeathParticipant `json:"sudden_death_participants"`
}

func stateCacheKey(code string) string {
	return "game:state:" + code
}

func (s *GameService) loadStateSnapshot(code string) (*stateSnapshot, error) {
	if s.redis != nil {
		data, err := s.redis.Get(context.Background(), stateCacheKey(code)).Result()
		if err == nil {
			var snap stateSnapshot
			if uerr := json.Unmarshal([]byte(data), &snap); uerr == nil {
				return &snap, nil
			}
			s.log.Warn().Str("code", code).Msg("discarding unreadable state cache entry")
		} else if err != redis.Nil {
			s.log.Warn().Err(err).Str("code", code).Msg("redis read failed, falling back to database")
		}
	}

	snap, err := s.buildStateSnapshot(code)
	if err != nil {
		return nil, err
	}
	s.storeStateSnapshot(code, snap)
	return snap, nil
}

func (s *GameService) buildStateSnapshot(code string) (*stateSnapshot, error) {
	g, err := s.findGame(code)
	if err != nil {
		return nil, err
	}

	var players []models.Player
	if err := s.db.Where("game_id = ?", g.ID).Order("id").Find(&players).Error; err != nil {
		return nil, err
	}

	snap := &stateSnapshot{
		Status:                  g.Status,
		RoundNumber:             g.RoundNumber,
		CurrentQuestionIndex:    g.CurrentQuestionIndex,
		QuestionEndAt:           g.QuestionEndAt,
		Players:                 make([]StatePlayer, 0, len(players)),
		SuddenDeathParticipants: []SuddenDeathParticipant{},
	}
	for _, p := range players {
		snap.Players = append(snap.Players, StatePlayer{
			Name:       p.Name,
			Eliminated: p.Eliminated,
			IsHost:     p.IsHost,
			Ready:      p.Ready,
		})
	}
	if g.Status == game.StatusSuddenDeath {
		for _, p := range players {
			if containsID(g.SuddenDeathPlayerIDs, p.ID) {
				snap.SuddenDeathParticipants = append(snap.SuddenDeathParticipants,
					SuddenDeathParticipant{ID: p.ID, Name: p.Name})
			}
		}
	}
	return snap, nil
}

func (s *GameService) storeStateSnapshot(code string, snap *stateSnapshot) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.redis.Set(context.Background(), stateCacheKey(code), data, stateCacheTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("code", code).Msg("failed to cache game state")
	}
}

func (s *GameService) cacheState(code string) {
	snap, err := s.buildStateSnapshot(code)
	if err != nil {
		s.log.Warn().Err(err).Str("code", code).Msg("failed to rebuild state cache")
		return
	}
	s.storeStateSnapshot(code, snap)
}
