package game

// Error codes surfaced to callers. Everything the engine rejects maps to one
// of these; internal failures surface as CodeInternal with a generic message.
const (
	CodeBadState       = "bad_state"
	CodeBadSetup       = "bad_setup"
	CodeFull           = "full"
	CodeNameTaken      = "name_taken"
	CodeNotFound       = "not_found"
	CodeAuth           = "auth"
	CodeEliminated     = "eliminated"
	CodeHost           = "host"
	CodeClosed         = "closed"
	CodeNotParticipant = "not_participant"
	CodeInternal       = "internal"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrFull           = NewError(CodeFull, "Game is full")
	ErrNameTaken      = NewError(CodeNameTaken, "Name already in use")
	ErrNotFound       = NewError(CodeNotFound, "Not found")
	ErrAuth           = NewError(CodeAuth, "Bad token")
	ErrHostAuth       = NewError(CodeAuth, "Host token required")
	ErrEliminated     = NewError(CodeEliminated, "Player eliminated")
	ErrHostSubmit     = NewError(CodeHost, "Host cannot submit")
	ErrClosed         = NewError(CodeClosed, "Question closed")
	ErrNotParticipant = NewError(CodeNotParticipant, "Not in sudden death")
	ErrInternal       = NewError(CodeInternal, "Something went wrong")
)
