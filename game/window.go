package game

import "time"

// QuestionWindow is the validity window of one open question. There is no
// background timer: expiry is evaluated lazily against a single clock read
// taken once per request, so a submission cannot pass one check and fail
// another within the same call.
type QuestionWindow struct {
	OpensAt time.Time
	EndsAt  time.Time
}

// WindowFor reconstructs the window from the stored deadline and the
// question's time limit.
func WindowFor(endsAt time.Time, timeLimitSec int) QuestionWindow {
	return QuestionWindow{
		OpensAt: endsAt.Add(-time.Duration(timeLimitSec) * time.Second),
		EndsAt:  endsAt,
	}
}

// Open reports whether a submission at now falls inside the window. Anything
// strictly after the deadline is closed.
func (w QuestionWindow) Open(now time.Time) bool {
	return !now.After(w.EndsAt)
}

// LatencyMS is the elapsed time since the question opened, in milliseconds.
func (w QuestionWindow) LatencyMS(now time.Time) int {
	ms := now.Sub(w.OpensAt) / time.Millisecond
	if ms < 0 {
		ms = 0
	}
	return int(ms)
}

// RemainingMS is the time left before the deadline, clamped at zero.
func RemainingMS(endsAt *time.Time, now time.Time) int64 {
	if endsAt == nil {
		return 0
	}
	ms := endsAt.Sub(now) / time.Millisecond
	if ms < 0 {
		ms = 0
	}
	return int64(ms)
}
