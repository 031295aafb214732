package game

import "sort"

// PlayerRoundStat is one active player's aggregate for a completed round:
// points from correct submissions and the latency sum of those submissions.
type PlayerRoundStat struct {
	PlayerID   uint
	Name       string
	RoundScore int
	LatencySum int
}

type LeaderboardEntry struct {
	Name       string `json:"name"`
	RoundScore int    `json:"round_score"`
}

// RoundOutcome is the result of resolving one round. NextStatus is empty when
// the status must stay unchanged (the zero-active-players case).
type RoundOutcome struct {
	Leaderboard     []LeaderboardEntry
	EliminatedIDs   []uint
	EliminatedNames []string
	SuddenDeathIDs  []uint
	NextStatus      string
}

// ResolveRound computes the outcome of a completed round from the active
// players' stats. Exactly one player at the minimum round score is
// eliminated; a tie at the minimum eliminates nobody and instead marks the
// tied players as sudden-death participants. If one or zero players would
// remain afterwards the game is finished.
func ResolveRound(stats []PlayerRoundStat) RoundOutcome {
	out := RoundOutcome{Leaderboard: []LeaderboardEntry{}}
	if len(stats) == 0 {
		return out
	}

	minScore := stats[0].RoundScore
	for _, s := range stats[1:] {
		if s.RoundScore < minScore {
			minScore = s.RoundScore
		}
	}

	var lowest []PlayerRoundStat
	for _, s := range stats {
		if s.RoundScore == minScore {
			lowest = append(lowest, s)
		}
	}

	out.NextStatus = StatusBetweenRounds
	remaining := len(stats)
	if len(lowest) == 1 {
		out.EliminatedIDs = []uint{lowest[0].PlayerID}
		out.EliminatedNames = []string{lowest[0].Name}
		remaining--
	} else {
		out.NextStatus = StatusSuddenDeath
		for _, s := range lowest {
			out.SuddenDeathIDs = append(out.SuddenDeathIDs, s.PlayerID)
		}
	}

	if remaining <= 1 {
		out.NextStatus = StatusFinished
	}

	out.Leaderboard = Leaderboard(stats)
	return out
}

// Leaderboard orders stats for display: descending round score, ties broken
// by ascending latency sum. This is display ordering only and does not feed
// the elimination rule.
func Leaderboard(stats []PlayerRoundStat) []LeaderboardEntry {
	sorted := make([]PlayerRoundStat, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RoundScore != sorted[j].RoundScore {
			return sorted[i].RoundScore > sorted[j].RoundScore
		}
		return sorted[i].LatencySum < sorted[j].LatencySum
	})

	entries := make([]LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		entries[i] = LeaderboardEntry{Name: s.Name, RoundScore: s.RoundScore}
	}
	return entries
}
