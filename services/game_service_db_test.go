package services

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"bokquiz/game"
	"bokquiz/models"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingEmitter captures every post-commit emission so tests can assert
// which events a mutation produced and how many times.
type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	code    string
	event   string
	payload any
}

func (r *recordingEmitter) Emit(code, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{code: code, event: event, payload: payload})
}

func (r *recordingEmitter) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

// newDBService builds a GameService over an in-memory sqlite database. The
// sqlite dialector drops the FOR UPDATE clause, so the row-lock paths run
// unchanged; everything else (unique indexes, ON CONFLICT) behaves as in
// postgres.
func newDBService(t *testing.T) (*GameService, *recordingEmitter) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&models.Game{}, &models.Player{}, &models.Question{},
		&models.Submission{}, &models.RoundResult{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	em := &recordingEmitter{}
	return NewGameService(db, nil, em, zerolog.Nop()), em
}

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	for round := 1; round <= game.RegularRounds; round++ {
		for i := 0; i < game.QuestionsPerRound; i++ {
			q := models.Question{
				RoundNumber:  round,
				Text:         fmt.Sprintf("round %d question %d", round, i+1),
				Options:      datatypes.NewJSONSlice([]string{"a", "b", "c", "d"}),
				CorrectIndex: 1,
				Points:       1,
				TimeLimit:    25,
			}
			if err := db.Create(&q).Error; err != nil {
				t.Fatalf("seed question: %v", err)
			}
		}
	}
}

func TestSubmitResubmissionKeepsFirstAnswer(t *testing.T) {
	s, _ := newDBService(t)
	base := time.Date(2026, 5, 12, 19, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	created, err := s.CreateGame("Hosta")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	joined, err := s.Join(created.Code, "Amy")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	seedCatalog(t, s.db)
	if _, err := s.HostStart(created.Code, created.HostToken); err != nil {
		t.Fatalf("host start: %v", err)
	}

	if err := s.Submit(created.Code, joined.PlayerID, joined.ReconnectToken, 1); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	// The resubmission changes the answer but must neither error nor
	// overwrite the stored row.
	if err := s.Submit(created.Code, joined.PlayerID, joined.ReconnectToken, 2); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	var subs []models.Submission
	if err := s.db.Where("player_id = ?", joined.PlayerID).Find(&subs).Error; err != nil {
		t.Fatalf("load submissions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("submission rows = %d, want 1", len(subs))
	}
	if subs[0].SelectedIndex != 1 || !subs[0].Correct {
		t.Fatalf("stored submission = index %d correct %v, want the first answer (1, true)",
			subs[0].SelectedIndex, subs[0].Correct)
	}
}

func TestGetRoundResultSecondReadReturnsCachedSnapshot(t *testing.T) {
	s, em := newDBService(t)
	base := time.Date(2026, 5, 12, 19, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	created, err := s.CreateGame("Hosta")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	var players []*JoinedPlayer
	for _, name := range []string{"Amy", "Bo", "Cy"} {
		p, err := s.Join(created.Code, name)
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		players = append(players, p)
	}
	seedCatalog(t, s.db)
	if _, err := s.HostStart(created.Code, created.HostToken); err != nil {
		t.Fatalf("host start: %v", err)
	}

	// Amy and Bo answer the opening question correctly; Cy stays silent and
	// will be the unique minimum.
	for _, p := range players[:2] {
		if err := s.Submit(created.Code, p.PlayerID, p.ReconnectToken, 1); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	for i := 0; i < game.LastQuestionIndex; i++ {
		if _, err := s.HostNext(created.Code, created.HostToken); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	adv, err := s.HostNext(created.Code, created.HostToken)
	if err != nil {
		t.Fatalf("close round: %v", err)
	}
	if !adv.RoundEnded {
		t.Fatalf("expected round end, got %+v", adv)
	}

	first, err := s.GetRoundResult(created.Code)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if len(first.EliminatedNames) != 1 || first.EliminatedNames[0] != "Cy" {
		t.Fatalf("eliminated = %v, want [Cy]", first.EliminatedNames)
	}

	second, err := s.GetRoundResult(created.Code)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second read diverged:\nfirst  %+v\nsecond %+v", first, second)
	}

	var rows int64
	if err := s.db.Model(&models.RoundResult{}).Count(&rows).Error; err != nil {
		t.Fatalf("count results: %v", err)
	}
	if rows != 1 {
		t.Fatalf("round result rows = %d, want 1", rows)
	}
	if n := em.count(game.EventRoundResult); n != 1 {
		t.Fatalf("round_result emissions = %d, want 1", n)
	}

	// Scores were applied once; the cached read must not re-add them.
	var amy models.Player
	if err := s.db.First(&amy, players[0].PlayerID).Error; err != nil {
		t.Fatalf("load player: %v", err)
	}
	if amy.TotalScore != 1 {
		t.Fatalf("total score after cached read = %d, want 1", amy.TotalScore)
	}
}

func TestSuddenDeathAggregateScoresOpenedWindow(t *testing.T) {
	s, em := newDBService(t)
	base := time.Date(2026, 5, 12, 19, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	g := models.Game{
		Code:                "WRAPSD",
		HostToken:           "host-token",
		Status:              game.StatusSuddenDeath,
		RoundNumber:         2,
		SDOffset:            3,
		SuddenDeathAttempts: game.MaxSuddenDeathAttempts,
	}
	if err := s.db.Create(&g).Error; err != nil {
		t.Fatalf("create game: %v", err)
	}
	mk := func(name string, host bool) models.Player {
		p := models.Player{GameID: g.ID, Name: name, IsHost: host, Ready: true, ReconnectToken: "tok-" + name}
		if err := s.db.Create(&p).Error; err != nil {
			t.Fatalf("create player %s: %v", name, err)
		}
		return p
	}
	mk("Hosta", true)
	amy := mk("Amy", false)
	bo := mk("Bo", false)
	mk("Cy", false)

	if err := s.db.Model(&g).Update("sudden_death_player_ids",
		datatypes.NewJSONSlice([]uint{amy.ID, bo.ID})).Error; err != nil {
		t.Fatalf("set participants: %v", err)
	}

	pool := make([]models.Question, 4)
	for i := range pool {
		pool[i] = models.Question{
			RoundNumber:  game.SuddenDeathRound,
			Text:         fmt.Sprintf("tiebreak %d", i+1),
			Options:      datatypes.NewJSONSlice([]string{"a", "b"}),
			CorrectIndex: 0,
			Points:       1,
			TimeLimit:    10,
		}
		if err := s.db.Create(&pool[i]).Error; err != nil {
			t.Fatalf("create pool question: %v", err)
		}
	}

	// With offset 3 the episode opened pool positions 3, 0, 1. Amy answered
	// the first of those; only a window-aware aggregate credits her for it.
	sub := models.Submission{
		GameID:      g.ID,
		PlayerID:    amy.ID,
		QuestionID:  pool[3].ID,
		Correct:     true,
		SubmittedAt: base,
		LatencyMS:   1200,
	}
	if err := s.db.Create(&sub).Error; err != nil {
		t.Fatalf("create submission: %v", err)
	}

	res, err := s.HostNext(g.Code, g.HostToken)
	if err != nil {
		t.Fatalf("host next: %v", err)
	}
	if !res.SuddenDeathEnded || res.Reason != "aggregate" {
		t.Fatalf("result = %+v, want an aggregate decision", res)
	}
	if res.Eliminated != "Bo" {
		t.Fatalf("eliminated %q, want Bo", res.Eliminated)
	}
	wantUsed := []uint{pool[3].ID, pool[0].ID, pool[1].ID}
	if !reflect.DeepEqual(res.UsedQuestionIDs, wantUsed) {
		t.Fatalf("used question ids = %v, want %v", res.UsedQuestionIDs, wantUsed)
	}

	var after models.Game
	if err := s.db.First(&after, g.ID).Error; err != nil {
		t.Fatalf("reload game: %v", err)
	}
	if after.Status != game.StatusBetweenRounds {
		t.Fatalf("status = %s, want between_rounds", after.Status)
	}
	if after.SDOffset != 2 {
		t.Fatalf("sd offset = %d, want 2", after.SDOffset)
	}
	if n := em.count(game.EventSuddenDeathEliminated); n != 1 {
		t.Fatalf("sudden_death_eliminated emissions = %d, want 1", n)
	}

	var amyAfter models.Player
	if err := s.db.First(&amyAfter, amy.ID).Error; err != nil {
		t.Fatalf("reload player: %v", err)
	}
	if amyAfter.Eliminated {
		t.Fatal("the participant who answered an opened question was eliminated")
	}
}
