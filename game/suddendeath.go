package game

// SuddenDeathStat is one participant's aggregate over the used sudden-death
// questions.
type SuddenDeathStat struct {
	PlayerID     uint
	CorrectCount int
	LatencySum   int
}

// ResolveSuddenDeath picks the participant to eliminate after the attempt cap
// is reached: the minimum correct count loses; a tie at the minimum is broken
// by the maximum latency sum (slowest among the worst loses); a remaining tie
// falls back to the lowest player id, which is deterministic but carries no
// fairness meaning. ok is false only for an empty participant set.
func ResolveSuddenDeath(stats []SuddenDeathStat) (loserID uint, ok bool) {
	if len(stats) == 0 {
		return 0, false
	}

	minCorrect := stats[0].CorrectCount
	for _, s := range stats[1:] {
		if s.CorrectCount < minCorrect {
			minCorrect = s.CorrectCount
		}
	}

	var worst []SuddenDeathStat
	for _, s := range stats {
		if s.CorrectCount == minCorrect {
			worst = append(worst, s)
		}
	}
	if len(worst) == 1 {
		return worst[0].PlayerID, true
	}

	maxLatency := worst[0].LatencySum
	for _, s := range worst[1:] {
		if s.LatencySum > maxLatency {
			maxLatency = s.LatencySum
		}
	}

	loserID = 0
	for _, s := range worst {
		if s.LatencySum != maxLatency {
			continue
		}
		if loserID == 0 || s.PlayerID < loserID {
			loserID = s.PlayerID
		}
	}
	return loserID, true
}

// PoolIndex maps a sudden-death question index onto the round-4 pool through
// the game's cyclic base offset, so repeated episodes in the same game start
// from different questions. Returns -1 for an empty pool.
func PoolIndex(offset, index, poolSize int) int {
	if poolSize <= 0 {
		return -1
	}
	i := (offset + index) % poolSize
	if i < 0 {
		i += poolSize
	}
	return i
}

// PoolWindow lists the pool indices one episode consumed: count consecutive
// cyclic positions starting at the base offset, clamped to the pool size so
// no question is counted twice. The aggregate decision must score exactly
// this window, since these are the questions the episode actually opened.
func PoolWindow(offset, count, poolSize int) []int {
	if poolSize <= 0 || count <= 0 {
		return nil
	}
	if count > poolSize {
		count = poolSize
	}
	out := make([]int, count)
	for i := range out {
		out[i] = PoolIndex(offset, i, poolSize)
	}
	return out
}
