package game

import (
	"testing"
	"time"
)

func TestWindowOpenBoundary(t *testing.T) {
	endsAt := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	w := WindowFor(endsAt, 30)

	if !w.Open(endsAt.Add(-time.Millisecond)) {
		t.Fatal("one ms before the deadline must be open")
	}
	if !w.Open(endsAt) {
		t.Fatal("the deadline instant itself is accepted")
	}
	if w.Open(endsAt.Add(time.Millisecond)) {
		t.Fatal("one ms after the deadline must be closed")
	}
}

func TestWindowLatency(t *testing.T) {
	endsAt := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	w := WindowFor(endsAt, 30)

	if got := w.OpensAt; !got.Equal(endsAt.Add(-30 * time.Second)) {
		t.Fatalf("opens at %v, want 30s before deadline", got)
	}
	if got := w.LatencyMS(w.OpensAt.Add(1250 * time.Millisecond)); got != 1250 {
		t.Fatalf("latency = %d, want 1250", got)
	}
	if got := w.LatencyMS(w.OpensAt.Add(-time.Second)); got != 0 {
		t.Fatalf("latency before open = %d, want clamped to 0", got)
	}
}

func TestRemainingMS(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	if got := RemainingMS(nil, now); got != 0 {
		t.Fatalf("remaining with no deadline = %d, want 0", got)
	}

	future := now.Add(2500 * time.Millisecond)
	if got := RemainingMS(&future, now); got != 2500 {
		t.Fatalf("remaining = %d, want 2500", got)
	}

	past := now.Add(-time.Second)
	if got := RemainingMS(&past, now); got != 0 {
		t.Fatalf("remaining past deadline = %d, want 0", got)
	}
}
