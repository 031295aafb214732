package game

import "testing"

func TestResolveSuddenDeathUniqueMinimumLoses(t *testing.T) {
	stats := []SuddenDeathStat{
		{PlayerID: 1, CorrectCount: 2, LatencySum: 4000},
		{PlayerID: 2, CorrectCount: 1, LatencySum: 1000},
		{PlayerID: 3, CorrectCount: 3, LatencySum: 9000},
	}

	loser, ok := ResolveSuddenDeath(stats)
	if !ok {
		t.Fatal("expected a decision")
	}
	if loser != 2 {
		t.Fatalf("loser = %d, want 2", loser)
	}
}

func TestResolveSuddenDeathLatencyBreaksTie(t *testing.T) {
	// Both at 1 correct; the slower of the two loses.
	stats := []SuddenDeathStat{
		{PlayerID: 1, CorrectCount: 1, LatencySum: 7000},
		{PlayerID: 2, CorrectCount: 1, LatencySum: 3000},
		{PlayerID: 3, CorrectCount: 2, LatencySum: 500},
	}

	loser, ok := ResolveSuddenDeath(stats)
	if !ok || loser != 1 {
		t.Fatalf("loser = %d ok=%v, want 1 true", loser, ok)
	}
}

func TestResolveSuddenDeathFullTieFallsBackToLowestID(t *testing.T) {
	stats := []SuddenDeathStat{
		{PlayerID: 7, CorrectCount: 0, LatencySum: 0},
		{PlayerID: 4, CorrectCount: 0, LatencySum: 0},
		{PlayerID: 9, CorrectCount: 0, LatencySum: 0},
	}

	loser, ok := ResolveSuddenDeath(stats)
	if !ok || loser != 4 {
		t.Fatalf("loser = %d ok=%v, want 4 true", loser, ok)
	}
}

func TestResolveSuddenDeathEmpty(t *testing.T) {
	if _, ok := ResolveSuddenDeath(nil); ok {
		t.Fatal("empty participant set must not produce a loser")
	}
}

func TestPoolWindowStartsAtOffsetAndWraps(t *testing.T) {
	// Episode of three questions starting at the tail of a four-question pool.
	got := PoolWindow(3, 3, 4)
	want := []int{3, 0, 1}
	if len(got) != len(want) {
		t.Fatalf("window = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window = %v, want %v", got, want)
		}
	}
}

func TestPoolWindowClampsToPoolSize(t *testing.T) {
	got := PoolWindow(1, 5, 3)
	if len(got) != 3 {
		t.Fatalf("window length = %d, want 3", len(got))
	}
	seen := map[int]bool{}
	for _, idx := range got {
		if seen[idx] {
			t.Fatalf("window %v repeats index %d", got, idx)
		}
		seen[idx] = true
	}
}

func TestPoolWindowEmptyInputs(t *testing.T) {
	if got := PoolWindow(0, 3, 0); got != nil {
		t.Fatalf("empty pool window = %v, want nil", got)
	}
	if got := PoolWindow(2, 0, 4); got != nil {
		t.Fatalf("zero-count window = %v, want nil", got)
	}
}

func TestPoolIndexWrapsCyclically(t *testing.T) {
	cases := []struct {
		offset, index, size, want int
	}{
		{0, 0, 5, 0},
		{0, 4, 5, 4},
		{0, 5, 5, 0},
		{3, 4, 5, 2},
		{7, 1, 5, 3},
		{0, 0, 0, -1},
	}
	for _, c := range cases {
		if got := PoolIndex(c.offset, c.index, c.size); got != c.want {
			t.Fatalf("PoolIndex(%d, %d, %d) = %d, want %d", c.offset, c.index, c.size, got, c.want)
		}
	}
}
