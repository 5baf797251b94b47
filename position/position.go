// Package position tracks a chess position: FEN decoding, legal move
// generation, move application and terminal-state detection.
package position

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

var (
	ErrInvalidPosition = errors.New("position: invalid notation")
	ErrIllegalMove     = errors.New("position: illegal move")
	ErrNoLegalMoves    = errors.New("position: no legal moves")
)

// InvalidPositionError reports a notation string that could not be decoded.
type InvalidPositionError struct {
	Notation string
	Reason   error
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("position: invalid notation %q: %v", e.Notation, e.Reason)
}

func (e *InvalidPositionError) Unwrap() error {
	return ErrInvalidPosition
}

// Terminal classifies a position with no continuation.
type Terminal int

const (
	TerminalNone Terminal = iota
	TerminalCheckmate
	TerminalStalemate
	TerminalDraw
)

func (t Terminal) String() string {
	switch t {
	case TerminalCheckmate:
		return "checkmate"
	case TerminalStalemate:
		return "stalemate"
	case TerminalDraw:
		return "draw"
	default:
		return "none"
	}
}

// Move is an immutable origin/destination pair with an optional promotion
// piece ("q", "r", "b" or "n").
type Move struct {
	From      string
	To        string
	Promotion string
}

// UCI encodes the move in long algebraic notation, e.g. "e2e4" or "e7e8q".
func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}

// ParseMove decodes long algebraic notation into a Move. It checks shape
// only; legality is the board's concern.
func ParseMove(uci string) (Move, error) {
	s := strings.ToLower(strings.TrimSpace(uci))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, uci)
	}
	if !validSquare(s[0:2]) || !validSquare(s[2:4]) {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, uci)
	}
	m := Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
			m.Promotion = s[4:5]
		default:
			return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, uci)
		}
	}
	return m, nil
}

func validSquare(sq string) bool {
	return sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}

// Position wraps a legally reachable chess position. It is immutable from
// the caller's point of view; Apply returns a fresh Position.
type Position struct {
	game *chess.Game
}

// Load decodes a FEN string. An empty notation loads the standard starting
// position. Multi-line input is rejected before it can reach an engine.
func Load(notation string) (*Position, error) {
	trimmed := strings.TrimSpace(notation)
	if strings.ContainsAny(trimmed, "\r\n") {
		return nil, &InvalidPositionError{Notation: notation, Reason: errors.New("must be single-line")}
	}
	if trimmed == "" {
		return &Position{game: chess.NewGame()}, nil
	}
	opt, err := chess.FEN(trimmed)
	if err != nil {
		return nil, &InvalidPositionError{Notation: trimmed, Reason: err}
	}
	return &Position{game: chess.NewGame(opt)}, nil
}

// FEN returns the position's notation.
func (p *Position) FEN() string {
	return p.game.Position().String()
}

// SideToMove returns "w" or "b".
func (p *Position) SideToMove() string {
	return p.game.Position().Turn().String()
}

// LegalMoves returns every legal move in UCI encoding.
func (p *Position) LegalMoves() []Move {
	valid := p.game.ValidMoves()
	moves := make([]Move, 0, len(valid))
	for _, vm := range valid {
		if m, err := ParseMove(vm.String()); err == nil {
			moves = append(moves, m)
		}
	}
	return moves
}

// IsLegal reports whether m is legal here. A promoting pawn move without an
// explicit promotion piece is not legal.
func (p *Position) IsLegal(m Move) bool {
	uci := m.UCI()
	for _, vm := range p.game.ValidMoves() {
		if vm.String() == uci {
			return true
		}
	}
	return false
}

// Apply plays m and returns the resulting position. Moves not present in
// LegalMoves are rejected with ErrIllegalMove.
func (p *Position) Apply(m Move) (*Position, error) {
	next, err := Load(p.FEN())
	if err != nil {
		return nil, err
	}
	uci := m.UCI()
	for _, vm := range next.game.ValidMoves() {
		if vm.String() == uci {
			if err := next.game.Move(vm); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
			}
			return next, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
}

// Terminal reports whether the position has ended and how. Draw covers the
// rules decidable from a lone FEN: insufficient material, the seventy-five
// move rule and the halfmove clock. Repetition needs game history and is out
// of reach here.
func (p *Position) Terminal() Terminal {
	switch p.game.Position().Status() {
	case chess.Checkmate:
		return TerminalCheckmate
	case chess.Stalemate:
		return TerminalStalemate
	}
	if p.game.Outcome() == chess.Draw {
		return TerminalDraw
	}
	if halfMoveClock(p.FEN()) >= 100 {
		return TerminalDraw
	}
	return TerminalNone
}

func halfMoveClock(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	clock, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return clock
}
