package game

// Game statuses. finished is terminal.
const (
	StatusLobby         = "lobby"
	StatusInRound       = "in_round"
	StatusBetweenRounds = "between_rounds"
	StatusSuddenDeath   = "sudden_death"
	StatusFinished      = "finished"
)

const (
	// MaxContestants is the number of non-host seats per game.
	MaxContestants = 4

	// RegularRounds and QuestionsPerRound define the shape of the catalog a
	// game needs before it may start.
	RegularRounds     = 3
	QuestionsPerRound = 5
	LastQuestionIndex = QuestionsPerRound - 1

	// SuddenDeathRound is the catalog round number of the tie-break pool.
	SuddenDeathRound = 4

	// MaxSuddenDeathAttempts bounds one sudden-death episode.
	MaxSuddenDeathAttempts = 3
)

// Outbound event names. Delivery is best-effort; clients treat every event as
// a hint to refetch canonical state.
const (
	EventPlayerJoined          = "player_joined"
	EventPlayerRenamed         = "player_renamed"
	EventPlayerReady           = "player_ready"
	EventAllReady              = "all_ready"
	EventQuestionStarted       = "question_started"
	EventRoundEnded            = "round_ended"
	EventNextRoundStarted      = "next_round_started"
	EventRoundResult           = "round_result"
	EventSuddenDeathEliminated = "sudden_death_eliminated"
)
