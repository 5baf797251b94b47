package position

import (
	"errors"
	"testing"
)

const (
	foolsMateFEN  = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	stalemateFEN  = "k7/8/1Q6/8/8/8/8/7K b - - 0 1"
	promotionFEN  = "8/P7/8/8/8/8/8/K1k5 w - - 0 1"
	oneEscapeFEN  = "7k/5K2/6R1/8/8/8/8/8 b - - 0 1"
	fiftyClockFEN = "8/8/8/8/8/5k2/8/5K1R w - - 100 80"
	bareKingsFEN  = "k7/8/8/8/8/8/8/K7 w - - 0 1"
	kingKnightFEN = "k7/8/8/8/8/8/8/KN6 w - - 0 1"
)

func TestLoadEmptyIsStartingPosition(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := len(p.LegalMoves()); got != 20 {
		t.Fatalf("starting position has %d legal moves, want 20", got)
	}
	if p.SideToMove() != "w" {
		t.Fatalf("SideToMove() = %q, want w", p.SideToMove())
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load("definitely not a fen"); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("Load() error = %v, want ErrInvalidPosition", err)
	}
}

func TestLoadRejectsMultiLine(t *testing.T) {
	if _, err := Load("8/8/8/8/8/8/8/8 w - - 0 1\nisready"); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("Load() error = %v, want ErrInvalidPosition", err)
	}
}

func TestApplyLegalMove(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	next, err := p.Apply(Move{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("Apply(e2e4) error = %v", err)
	}
	if next.SideToMove() != "b" {
		t.Fatalf("side to move after e2e4 = %q, want b", next.SideToMove())
	}
	// The original position is untouched.
	if p.SideToMove() != "w" {
		t.Fatalf("Apply mutated the source position")
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	p, _ := Load("")
	if _, err := p.Apply(Move{From: "e2", To: "e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("Apply(e2e5) error = %v, want ErrIllegalMove", err)
	}
}

func TestApplyRejectsPromotionWithoutPiece(t *testing.T) {
	p, err := Load(promotionFEN)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := p.Apply(Move{From: "a7", To: "a8"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("promotion without piece: error = %v, want ErrIllegalMove", err)
	}
	if _, err := p.Apply(Move{From: "a7", To: "a8", Promotion: "q"}); err != nil {
		t.Fatalf("Apply(a7a8q) error = %v", err)
	}
}

func TestTerminalDetection(t *testing.T) {
	cases := []struct {
		fen  string
		want Terminal
	}{
		{"", TerminalNone},
		{foolsMateFEN, TerminalCheckmate},
		{stalemateFEN, TerminalStalemate},
		{fiftyClockFEN, TerminalDraw},
		{bareKingsFEN, TerminalDraw},
		{kingKnightFEN, TerminalDraw},
	}
	for _, tc := range cases {
		p, err := Load(tc.fen)
		if err != nil {
			t.Fatalf("Load(%q) error = %v", tc.fen, err)
		}
		if got := p.Terminal(); got != tc.want {
			t.Fatalf("Terminal(%q) = %v, want %v", tc.fen, got, tc.want)
		}
	}
}

func TestSingleLegalMove(t *testing.T) {
	p, err := Load(oneEscapeFEN)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	moves := p.LegalMoves()
	if len(moves) != 1 {
		t.Fatalf("legal moves = %d, want 1 (%v)", len(moves), moves)
	}
	if moves[0].UCI() != "h8h7" {
		t.Fatalf("forced move = %s, want h8h7", moves[0].UCI())
	}
}

func TestParseMove(t *testing.T) {
	m, err := ParseMove("e7e8q")
	if err != nil {
		t.Fatalf("ParseMove(e7e8q) error = %v", err)
	}
	if m.From != "e7" || m.To != "e8" || m.Promotion != "q" {
		t.Fatalf("ParseMove(e7e8q) = %+v", m)
	}
	if m.UCI() != "e7e8q" {
		t.Fatalf("UCI() = %q", m.UCI())
	}

	for _, bad := range []string{"", "e2", "zz11", "e2e9", "e7e8k", "e2e4e5"} {
		if _, err := ParseMove(bad); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("ParseMove(%q) error = %v, want ErrIllegalMove", bad, err)
		}
	}
}

func TestIsLegal(t *testing.T) {
	p, _ := Load("")
	if !p.IsLegal(Move{From: "g1", To: "f3"}) {
		t.Fatalf("g1f3 should be legal in the starting position")
	}
	if p.IsLegal(Move{From: "e1", To: "e2"}) {
		t.Fatalf("e1e2 should not be legal in the starting position")
	}
}
