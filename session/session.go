// Package session binds one live engine process to one logical caller and
// exposes the analysis surface: start, analyze, poll, cancel, humanized
// selection.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendigo0/stockfish-local-analysis-web/analysis"
	"github.com/vendigo0/stockfish-local-analysis-web/engine"
	"github.com/vendigo0/stockfish-local-analysis-web/human"
	"github.com/vendigo0/stockfish-local-analysis-web/position"
	"github.com/vendigo0/stockfish-local-analysis-web/preset"
)

var (
	ErrSessionClosed = errors.New("session: closed")
	ErrNotFinalized  = errors.New("session: search not finalized")
)

// Config configures a session and its engine process.
type Config struct {
	Engine engine.Options
	Logger zerolog.Logger
}

// Session owns exactly one engine process. All searches on it are
// serialized; concurrent callers should each hold their own session or go
// through a Pool.
type Session struct {
	log zerolog.Logger
	eng *engine.Engine

	mu     sync.Mutex
	handle *Handle
	closed bool
}

// Start validates the preset table and launches the engine process.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if err := preset.Validate(); err != nil {
		return nil, err
	}
	engOpts := cfg.Engine
	engOpts.Logger = cfg.Logger
	eng, err := engine.Start(ctx, engOpts)
	if err != nil {
		return nil, err
	}
	return &Session{log: cfg.Logger, eng: eng}, nil
}

// Handle tracks one Analyze call from issue to finalization, including the
// position it was issued for.
type Handle struct {
	fen string
	pos *position.Position
	cfg engine.SearchConfig

	mu        sync.Mutex
	cur       *engine.Search
	cancelled bool

	done  chan struct{}
	lines []analysis.CandidateLine
	best  string
	err   error
}

func (h *Handle) current() *engine.Search {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

func (h *Handle) setCurrent(s *engine.Search) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cur = s
}

func (h *Handle) markCancelled() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
}

func (h *Handle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *Handle) complete(lines []analysis.CandidateLine, best string, err error) {
	h.mu.Lock()
	h.lines, h.best, h.err = lines, best, err
	h.mu.Unlock()
	close(h.done)
}

// State is the coarse progress of a search handle.
type State int

const (
	StatePending State = iota
	StatePartial
	StateDone
)

// Status is one Poll observation.
type Status struct {
	State State
	Lines []analysis.CandidateLine
	Err   error
}

// Analyze validates the position, refuses terminal ones, configures the
// engine and begins an asynchronous search. The returned handle is the only
// way to observe or cancel the search.
func (s *Session) Analyze(ctx context.Context, notation string, cfg engine.SearchConfig) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if prev := s.handle; prev != nil {
		select {
		case <-prev.done:
		default:
			if !prev.isCancelled() {
				return nil, engine.ErrSearchActive
			}
			// A cancelled search drains within the stop grace.
			<-prev.done
		}
	}

	pos, err := position.Load(notation)
	if err != nil {
		return nil, err
	}
	if t := pos.Terminal(); t != position.TerminalNone {
		return nil, fmt.Errorf("%w: position is %s", position.ErrNoLegalMoves, t)
	}

	if err := s.eng.Configure(ctx, cfg); err != nil {
		return nil, err
	}
	srch, err := s.eng.Search(ctx, pos.FEN(), cfg)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		fen:  pos.FEN(),
		pos:  pos,
		cfg:  cfg,
		cur:  srch,
		done: make(chan struct{}),
	}
	s.handle = h
	go s.watch(ctx, h)
	return h, nil
}

// AnalyzePreset is Analyze with the search half of a named preset.
func (s *Session) AnalyzePreset(ctx context.Context, notation, presetName string) (*Handle, error) {
	p, err := preset.Resolve(presetName)
	if err != nil {
		return nil, err
	}
	return s.Analyze(ctx, notation, p.Engine)
}

// watch finalizes the handle when its search completes. A search that
// stalls is reissued once; the second failure is surfaced.
func (s *Session) watch(ctx context.Context, h *Handle) {
	cur := h.current()
	<-cur.Done()
	err := cur.Err()

	if errors.Is(err, engine.ErrEngineTimeout) && s.eng.Alive() && !h.isCancelled() {
		s.log.Warn().Str("fen", h.fen).Msg("search stalled, reissuing once")
		if retryErr := s.eng.Configure(ctx, h.cfg); retryErr == nil {
			if next, searchErr := s.eng.Search(ctx, h.fen, h.cfg); searchErr == nil {
				h.setCurrent(next)
				// Cancel may have landed between the check above and the
				// reissue; its Stop hit the finished search, so stop the
				// fresh one here instead of letting it run out.
				if h.isCancelled() {
					_ = s.eng.Stop(context.Background(), next)
				}
				<-next.Done()
				cur, err = next, next.Err()
			}
		}
	}

	h.complete(cur.Snapshot(), cur.BestMove(), err)
}

// Poll reports the handle's progress without blocking.
func (s *Session) Poll(h *Handle) Status {
	select {
	case <-h.done:
		return Status{State: StateDone, Lines: h.lines, Err: h.err}
	default:
	}
	snap := h.current().Snapshot()
	if len(snap) == 0 {
		return Status{State: StatePending}
	}
	return Status{State: StatePartial, Lines: snap}
}

// Wait blocks until the search finalizes or ctx expires.
func (s *Session) Wait(ctx context.Context, h *Handle) ([]analysis.CandidateLine, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.lines, h.err
	}
}

// Cancel requests early termination and blocks until the session is ready
// for a new Analyze. Idempotent; results from the cancelled search never
// leak into the next one. The stall retry can swap a fresh search into the
// handle concurrently, so Cancel keeps stopping whichever search is current
// until the handle finalizes.
func (s *Session) Cancel(h *Handle) {
	h.markCancelled()
	for {
		_ = s.eng.Stop(context.Background(), h.current())
		select {
		case <-h.done:
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// SelectHumanMove runs the humanization policy over the finalized candidate
// list and validates the pick against the analyzed position. A single legal
// move is returned unconditionally; selection failures are surfaced, never
// papered over with the engine line.
func (s *Session) SelectHumanMove(h *Handle, cfg human.Config) (position.Move, error) {
	select {
	case <-h.done:
	default:
		return position.Move{}, ErrNotFinalized
	}
	if h.err != nil {
		return position.Move{}, h.err
	}

	legal := h.pos.LegalMoves()
	if len(legal) == 0 {
		return position.Move{}, position.ErrNoLegalMoves
	}
	if len(legal) == 1 {
		return legal[0], nil
	}

	uci, err := human.Select(h.lines, cfg)
	if err != nil {
		return position.Move{}, err
	}
	mv, err := position.ParseMove(uci)
	if err != nil {
		return position.Move{}, err
	}
	if !h.pos.IsLegal(mv) {
		return position.Move{}, fmt.Errorf("%w: policy picked %s", position.ErrIllegalMove, uci)
	}
	return mv, nil
}

// EngineBest returns the engine's own bestmove for a finalized handle.
func (s *Session) EngineBest(h *Handle) (position.Move, error) {
	select {
	case <-h.done:
	default:
		return position.Move{}, ErrNotFinalized
	}
	if h.err != nil {
		return position.Move{}, h.err
	}
	if h.best == "" || h.best == "(none)" {
		return position.Move{}, position.ErrNoLegalMoves
	}
	return position.ParseMove(h.best)
}

// Healthy reports whether the engine process is still usable.
func (s *Session) Healthy() bool {
	return s.eng.Alive()
}

// Close cancels any in-flight search and shuts the engine down.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h := s.handle
	s.mu.Unlock()

	if h != nil {
		select {
		case <-h.done:
		default:
			s.Cancel(h)
		}
	}
	return s.eng.Close(ctx)
}
