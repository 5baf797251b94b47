package analysis

import "testing"

func cp(v int) *int {
	return &v
}

func TestUpdateKeepsHigherDepth(t *testing.T) {
	a := NewAggregator(3)
	a.Update(InfoUpdate{Rank: 0, Depth: 10, ScoreCP: cp(50), PV: []string{"e2e4"}})
	a.Update(InfoUpdate{Rank: 0, Depth: 8, ScoreCP: cp(99), PV: []string{"d2d4"}})

	snap := a.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot len = %d, want 1", len(snap))
	}
	if snap[0].Depth != 10 || snap[0].First() != "e2e4" {
		t.Fatalf("low-depth straggler replaced the stored line: %+v", snap[0])
	}
}

func TestUpdateReplacesAtEqualDepth(t *testing.T) {
	a := NewAggregator(3)
	a.Update(InfoUpdate{Rank: 0, Depth: 10, ScoreCP: cp(50), PV: []string{"e2e4"}})
	a.Update(InfoUpdate{Rank: 0, Depth: 10, ScoreCP: cp(60), PV: []string{"d2d4"}})

	snap := a.Snapshot()
	if snap[0].First() != "d2d4" {
		t.Fatalf("equal-depth update dropped, got %+v", snap[0])
	}
}

func TestSnapshotSortedByScoreThenRank(t *testing.T) {
	a := NewAggregator(4)
	a.Update(InfoUpdate{Rank: 0, Depth: 12, ScoreCP: cp(80), PV: []string{"e2e4"}})
	a.Update(InfoUpdate{Rank: 1, Depth: 12, ScoreCP: cp(80), PV: []string{"d2d4"}})
	a.Update(InfoUpdate{Rank: 2, Depth: 12, Mate: cp(2), PV: []string{"d1h5"}})
	a.Update(InfoUpdate{Rank: 3, Depth: 12, ScoreCP: cp(-30), PV: []string{"g2g4"}})

	snap := a.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("snapshot len = %d, want 4", len(snap))
	}
	if snap[0].First() != "d1h5" {
		t.Fatalf("mate line should sort first, got %s", snap[0].First())
	}
	if snap[1].First() != "e2e4" || snap[2].First() != "d2d4" {
		t.Fatalf("score tie should break by rank: %s then %s", snap[1].First(), snap[2].First())
	}
	if snap[3].First() != "g2g4" {
		t.Fatalf("worst line should sort last, got %s", snap[3].First())
	}
}

func TestSnapshotNeverExceedsRequested(t *testing.T) {
	a := NewAggregator(2)
	a.Update(InfoUpdate{Rank: 0, Depth: 10, ScoreCP: cp(10), PV: []string{"e2e4"}})
	a.Update(InfoUpdate{Rank: 1, Depth: 10, ScoreCP: cp(5), PV: []string{"d2d4"}})
	a.Update(InfoUpdate{Rank: 5, Depth: 10, ScoreCP: cp(99), PV: []string{"g1f3"}})

	if snap := a.Snapshot(); len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}
}

func TestFinalizeFreezesList(t *testing.T) {
	a := NewAggregator(2)
	a.Update(InfoUpdate{Rank: 0, Depth: 10, ScoreCP: cp(10), PV: []string{"e2e4"}})
	a.Finalize("e2e4")

	if !a.Finalized() {
		t.Fatalf("Finalized() = false after Finalize")
	}
	if a.BestMove() != "e2e4" {
		t.Fatalf("BestMove() = %q, want e2e4", a.BestMove())
	}

	a.Update(InfoUpdate{Rank: 0, Depth: 30, ScoreCP: cp(500), PV: []string{"d2d4"}})
	if snap := a.Snapshot(); snap[0].First() != "e2e4" {
		t.Fatalf("update after Finalize was applied: %+v", snap[0])
	}
}

func TestMateScoreOrdering(t *testing.T) {
	mate1 := CandidateLine{Mate: cp(1)}
	mate3 := CandidateLine{Mate: cp(3)}
	big := CandidateLine{ScoreCP: cp(900)}
	mated := CandidateLine{Mate: cp(-2)}
	bad := CandidateLine{ScoreCP: cp(-900)}

	if mate1.Score() <= mate3.Score() {
		t.Fatalf("mate in 1 (%d) should outrank mate in 3 (%d)", mate1.Score(), mate3.Score())
	}
	if mate3.Score() <= big.Score() {
		t.Fatalf("any mate should outrank a cp score")
	}
	if mated.Score() >= bad.Score() {
		t.Fatalf("getting mated (%d) should rank below any cp score (%d)", mated.Score(), bad.Score())
	}
}

func TestLossNeverNegative(t *testing.T) {
	best := CandidateLine{ScoreCP: cp(10)}
	better := CandidateLine{ScoreCP: cp(40)}
	if got := better.Loss(best); got != 0 {
		t.Fatalf("Loss = %d, want 0", got)
	}
	worse := CandidateLine{ScoreCP: cp(-20)}
	if got := worse.Loss(best); got != 30 {
		t.Fatalf("Loss = %d, want 30", got)
	}
}
