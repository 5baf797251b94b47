// Package analysis accumulates ranked engine lines for one search and turns
// them into an ordered candidate list.
package analysis

import (
	"sort"
	"sync"
)

// mateScore is the centipawn magnitude assigned to a forced mate. A mate in
// n maps to +/-(mateScore-n) so faster mates order first and any mate
// outranks any centipawn score.
const mateScore = 100000

// InfoUpdate is one parsed multipv info line from the engine.
type InfoUpdate struct {
	Rank    int
	Depth   int
	ScoreCP *int
	Mate    *int
	PV      []string
}

// CandidateLine is the best line seen so far for one rank.
//
// ScoreCP is the evaluation in centipawns from the side to move, nil when the
// line is a forced mate. Mate is the number of moves until mate, positive
// when the side to move delivers it, nil otherwise.
type CandidateLine struct {
	Rank    int
	Depth   int
	ScoreCP *int
	Mate    *int
	PV      []string
}

// Score collapses the evaluation to a single comparable centipawn value.
func (c CandidateLine) Score() int {
	if c.Mate != nil {
		if *c.Mate >= 0 {
			return mateScore - *c.Mate
		}
		return -mateScore - *c.Mate
	}
	if c.ScoreCP != nil {
		return *c.ScoreCP
	}
	return 0
}

// IsMate reports whether the line ends in a forced mate.
func (c CandidateLine) IsMate() bool {
	return c.Mate != nil
}

// First returns the first move of the line in UCI notation, or "".
func (c CandidateLine) First() string {
	if len(c.PV) == 0 {
		return ""
	}
	return c.PV[0]
}

// Loss is the non-negative centipawn loss of the line relative to best.
func (c CandidateLine) Loss(best CandidateLine) int {
	loss := best.Score() - c.Score()
	if loss < 0 {
		loss = 0
	}
	return loss
}

// Aggregator maintains the rank->best-line mapping for one search
// generation. Updates for a rank replace the stored line only at equal or
// greater depth; lower-depth stragglers are dropped. Safe for one writer and
// concurrent snapshot readers.
type Aggregator struct {
	mu        sync.Mutex
	requested int
	byRank    map[int]CandidateLine
	finalized bool
	bestMove  string
}

// NewAggregator returns an aggregator that keeps at most requested ranks.
func NewAggregator(requested int) *Aggregator {
	if requested < 1 {
		requested = 1
	}
	return &Aggregator{
		requested: requested,
		byRank:    make(map[int]CandidateLine, requested),
	}
}

// Update merges one info line. Updates past the requested rank count, with an
// empty pv, or arriving after finalization are ignored.
func (a *Aggregator) Update(u InfoUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return
	}
	if u.Rank < 0 || u.Rank >= a.requested || len(u.PV) == 0 {
		return
	}
	if cur, ok := a.byRank[u.Rank]; ok && u.Depth < cur.Depth {
		return
	}
	a.byRank[u.Rank] = CandidateLine{
		Rank:    u.Rank,
		Depth:   u.Depth,
		ScoreCP: u.ScoreCP,
		Mate:    u.Mate,
		PV:      append([]string(nil), u.PV...),
	}
}

// Finalize records the engine's bestmove and freezes the list.
func (a *Aggregator) Finalize(bestMove string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	a.bestMove = bestMove
}

// Finalized reports whether the search has completed.
func (a *Aggregator) Finalized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalized
}

// BestMove returns the engine's reported bestmove, or "" before Finalize.
func (a *Aggregator) BestMove() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bestMove
}

// Snapshot returns the current candidate list ordered by descending
// evaluation from the side to move, ties broken by the rank the engine
// originally reported. Partial results are returned before finalization.
func (a *Aggregator) Snapshot() []CandidateLine {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines := make([]CandidateLine, 0, len(a.byRank))
	for _, line := range a.byRank {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		si, sj := lines[i].Score(), lines[j].Score()
		if si != sj {
			return si > sj
		}
		return lines[i].Rank < lines[j].Rank
	})
	return lines
}
