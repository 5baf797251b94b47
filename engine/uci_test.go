package engine

import "testing"

func TestParseBestMoveLine(t *testing.T) {
	best, ponder, ok := parseBestMoveLine("bestmove e2e4 ponder e7e5")
	if !ok {
		t.Fatalf("parseBestMoveLine returned ok=false")
	}
	if best != "e2e4" {
		t.Fatalf("best = %q, want e2e4", best)
	}
	if ponder != "e7e5" {
		t.Fatalf("ponder = %q, want e7e5", ponder)
	}
}

func TestParseBestMoveLineRejectsInfo(t *testing.T) {
	if _, _, ok := parseBestMoveLine("info depth 10 score cp 5 pv e2e4"); ok {
		t.Fatalf("info line parsed as bestmove")
	}
}

func TestParseInfoLineCP(t *testing.T) {
	update, ok := parseInfoLine("info multipv 2 depth 18 score cp 34 pv e2e4 e7e5 g1f3")
	if !ok {
		t.Fatalf("parseInfoLine returned ok=false")
	}
	if update.Rank != 1 {
		t.Fatalf("rank = %d, want 1", update.Rank)
	}
	if update.Depth != 18 {
		t.Fatalf("depth = %d, want 18", update.Depth)
	}
	if update.ScoreCP == nil || *update.ScoreCP != 34 {
		t.Fatalf("score cp = %v, want 34", update.ScoreCP)
	}
	if len(update.PV) != 3 {
		t.Fatalf("pv len = %d, want 3", len(update.PV))
	}
}

func TestParseInfoLineMate(t *testing.T) {
	update, ok := parseInfoLine("info depth 22 score mate -3 pv h7h8q")
	if !ok {
		t.Fatalf("parseInfoLine returned ok=false")
	}
	if update.Rank != 0 {
		t.Fatalf("rank = %d, want 0 when multipv is absent", update.Rank)
	}
	if update.Mate == nil || *update.Mate != -3 {
		t.Fatalf("mate = %v, want -3", update.Mate)
	}
}

func TestParseInfoLineSkipsProgressChatter(t *testing.T) {
	for _, line := range []string{
		"info depth 5 currmove e2e4 currmovenumber 1",
		"info string NNUE evaluation using nn-abc.nnue",
		"info nodes 123456 nps 100000",
	} {
		if _, ok := parseInfoLine(line); ok {
			t.Fatalf("line without score+pv parsed as update: %q", line)
		}
	}
}
