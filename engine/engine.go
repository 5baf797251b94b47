// Package engine owns a single external UCI engine process: it serializes
// commands to the process, streams its output through a reader goroutine and
// exposes searches as asynchronous handles feeding an analysis aggregator.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendigo0/stockfish-local-analysis-web/analysis"
)

// Engine is one live engine process. At most one search is active at a
// time; Search rejects callers until the previous search has fully stopped.
type Engine struct {
	opts options
	log  zerolog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	lines     chan string
	readErr   chan error
	waitDone  chan struct{}
	waitErrMu sync.RWMutex
	waitErr   error

	stopCh chan struct{}

	mu      sync.Mutex // guards the command stream and active
	active  *Search
	writeMu sync.Mutex

	closeOnce sync.Once
	alive     atomic.Bool
}

// Search is a handle on one asynchronous search.
type Search struct {
	agg    *analysis.Aggregator
	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}
	err  error // written once before done is closed
}

// Done is closed when the search has fully stopped.
func (s *Search) Done() <-chan struct{} { return s.done }

// Err reports how the search ended. Nil while still running and for a clean
// completion; context.Canceled after Stop.
func (s *Search) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Snapshot returns the candidate lines accumulated so far.
func (s *Search) Snapshot() []analysis.CandidateLine { return s.agg.Snapshot() }

// Finalized reports whether the engine has produced its bestmove.
func (s *Search) Finalized() bool { return s.agg.Finalized() }

// BestMove returns the engine's reported bestmove, or "" before completion.
func (s *Search) BestMove() string { return s.agg.BestMove() }

// Start launches and handshakes an engine process. Failures to spawn or to
// complete the handshake within StartTimeout report ErrEngineUnavailable.
func Start(ctx context.Context, o Options) (*Engine, error) {
	opts, err := validateOptions(o)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := exec.Command(opts.path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	e := &Engine{
		opts:     opts,
		log:      o.Logger,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		lines:    make(chan string, 1024),
		readErr:  make(chan error, 1),
		waitDone: make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
	e.alive.Store(true)

	go e.readLoop()
	go func() {
		err := cmd.Wait()
		e.alive.Store(false)
		if err != nil {
			e.setWaitErr(&OpError{Op: "wait process", Err: err})
		}
		close(e.waitDone)
	}()

	bootCtx, cancel := context.WithTimeout(ctx, opts.startTimeout)
	defer cancel()
	if err := e.bootstrap(bootCtx); err != nil {
		_ = e.Close(context.Background())
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	e.log.Debug().Str("path", opts.path).Msg("engine started")
	return e, nil
}

func (e *Engine) bootstrap(ctx context.Context) error {
	if err := e.send("uci"); err != nil {
		return err
	}
	if err := e.waitFor(ctx, func(line string) bool { return line == "uciok" }); err != nil {
		return &OpError{Op: "wait uciok", Err: err}
	}

	if err := e.send(fmt.Sprintf("setoption name Threads value %d", e.opts.threads)); err != nil {
		return err
	}
	if err := e.send(fmt.Sprintf("setoption name Hash value %d", e.opts.hashMB)); err != nil {
		return err
	}
	if err := e.send("setoption name Ponder value false"); err != nil {
		return err
	}
	return e.sync(ctx)
}

// sync sends isready and blocks until readyok.
func (e *Engine) sync(ctx context.Context) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	if err := e.waitFor(ctx, func(line string) bool { return line == "readyok" }); err != nil {
		return &OpError{Op: "wait readyok", Err: err}
	}
	return nil
}

// Configure applies the strength and line-count options for the next search
// and waits for the engine to acknowledge them. It is rejected while a
// search is active.
func (e *Engine) Configure(ctx context.Context, cfg SearchConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return ErrSearchActive
	}
	if !e.alive.Load() {
		return ErrEngineCrashed
	}
	cfg = cfg.normalized()
	if cfg.Lines > e.opts.maxLines {
		return fmt.Errorf("requested %d lines exceeds configured max %d", cfg.Lines, e.opts.maxLines)
	}

	if cfg.SkillLevel != nil {
		if err := e.send("setoption name Skill Level value " + strconv.Itoa(*cfg.SkillLevel)); err != nil {
			return err
		}
	}
	if err := e.send(fmt.Sprintf("setoption name UCI_LimitStrength value %t", cfg.LimitStrength)); err != nil {
		return err
	}
	if cfg.LimitStrength && cfg.Elo != 0 {
		if err := e.send("setoption name UCI_Elo value " + strconv.Itoa(cfg.Elo)); err != nil {
			return err
		}
	}
	if err := e.send("setoption name Contempt value " + strconv.Itoa(cfg.Contempt)); err != nil {
		return err
	}
	if err := e.send("setoption name MultiPV value " + strconv.Itoa(cfg.Lines)); err != nil {
		return err
	}
	return e.sync(ctx)
}

// Search begins an asynchronous search on the given FEN and returns
// immediately. Exactly one search may be active; the handle's Done channel
// closes once the engine has produced its bestmove or the search aborted.
func (e *Engine) Search(ctx context.Context, fen string, cfg SearchConfig) (*Search, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return nil, ErrSearchActive
	}
	if !e.alive.Load() {
		return nil, ErrEngineCrashed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fen, err := normalizeFEN(fen)
	if err != nil {
		return nil, err
	}
	cfg = cfg.normalized()
	if cfg.Lines > e.opts.maxLines {
		return nil, fmt.Errorf("requested %d lines exceeds configured max %d", cfg.Lines, e.opts.maxLines)
	}

	if err := e.send("position fen " + fen); err != nil {
		return nil, err
	}
	if cfg.Depth > 0 {
		if err := e.send("go depth " + strconv.Itoa(cfg.Depth)); err != nil {
			return nil, err
		}
	} else {
		moveMillis := int(cfg.MoveTime.Milliseconds())
		if moveMillis < 1 {
			moveMillis = 1
		}
		if err := e.send("go movetime " + strconv.Itoa(moveMillis)); err != nil {
			return nil, err
		}
	}

	searchCtx, cancel := context.WithCancel(ctx)
	s := &Search{
		agg:    analysis.NewAggregator(cfg.Lines),
		ctx:    searchCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.active = s

	e.log.Debug().Str("fen", fen).Int("lines", cfg.Lines).Int("depth", cfg.Depth).Msg("search started")
	go e.runSearch(s)
	return s, nil
}

// runSearch is the sole consumer of engine output while a search is active.
// Events reach the aggregator in the exact order the process emitted them.
func (e *Engine) runSearch(s *Search) {
	stall := time.NewTimer(e.opts.stallTimeout)
	defer stall.Stop()

	for {
		select {
		case <-s.ctx.Done():
			e.abortSearch(s, s.ctx.Err())
			return
		case <-stall.C:
			e.log.Warn().Dur("stall", e.opts.stallTimeout).Msg("search stalled")
			e.abortSearch(s, ErrEngineTimeout)
			return
		case err := <-e.readErr:
			e.alive.Store(false)
			if err != nil {
				e.finishSearch(s, fmt.Errorf("%w: %v", ErrEngineCrashed, err))
			} else {
				e.finishSearch(s, ErrEngineCrashed)
			}
			return
		case <-e.waitDone:
			e.finishSearch(s, e.crashError())
			return
		case line, ok := <-e.lines:
			if !ok {
				e.alive.Store(false)
				e.finishSearch(s, ErrEngineCrashed)
				return
			}
			if !stall.Stop() {
				select {
				case <-stall.C:
				default:
				}
			}
			stall.Reset(e.opts.stallTimeout)

			if update, matched := parseInfoLine(line); matched {
				s.agg.Update(update)
				continue
			}
			if bestMove, _, matched := parseBestMoveLine(line); matched {
				s.agg.Finalize(bestMove)
				e.log.Debug().Str("bestmove", bestMove).Msg("search done")
				e.finishSearch(s, nil)
				return
			}
		}
	}
}

// abortSearch asks the engine to stop and drains output until the pending
// bestmove arrives, so the process is ready for the next search. Overrunning
// the grace period means the process is wedged: it is declared dead rather
// than risk interleaving two searches.
func (e *Engine) abortSearch(s *Search, cause error) {
	if err := e.send("stop"); err != nil {
		e.finishSearch(s, fmt.Errorf("%w: %v", ErrEngineCrashed, err))
		return
	}

	grace := time.NewTimer(e.opts.stopGrace)
	defer grace.Stop()
	for {
		select {
		case <-grace.C:
			e.alive.Store(false)
			e.log.Error().Dur("grace", e.opts.stopGrace).Msg("engine did not stop in time")
			e.finishSearch(s, ErrEngineTimeout)
			return
		case <-e.waitDone:
			e.finishSearch(s, e.crashError())
			return
		case line, ok := <-e.lines:
			if !ok {
				e.alive.Store(false)
				e.finishSearch(s, ErrEngineCrashed)
				return
			}
			if update, matched := parseInfoLine(line); matched {
				s.agg.Update(update)
				continue
			}
			if bestMove, _, matched := parseBestMoveLine(line); matched {
				s.agg.Finalize(bestMove)
				e.finishSearch(s, cause)
				return
			}
		}
	}
}

func (e *Engine) finishSearch(s *Search, err error) {
	e.mu.Lock()
	if e.active == s {
		e.active = nil
	}
	e.mu.Unlock()

	// Release the search context so completed searches do not stay
	// registered with a long-lived parent.
	s.cancel()
	s.err = err
	close(s.done)
}

func (e *Engine) crashError() error {
	e.alive.Store(false)
	if waitErr := e.getWaitErr(); waitErr != nil {
		return fmt.Errorf("%w: %v", ErrEngineCrashed, waitErr)
	}
	return ErrEngineCrashed
}

// Stop requests early termination of s and blocks until the engine is ready
// for a new search. Idempotent. A stop that overruns the grace period
// reports ErrEngineTimeout.
func (e *Engine) Stop(ctx context.Context, s *Search) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.cancel()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
	}
	switch {
	case s.err == nil, s.err == context.Canceled:
		return nil
	case !e.alive.Load():
		return s.err
	default:
		return nil
	}
}

// Alive reports whether the process is still running and usable.
func (e *Engine) Alive() bool {
	return e.alive.Load()
}

// Close shuts the process down: quit, then kill once ctx expires.
func (e *Engine) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active != nil {
		active.cancel()
		<-active.done
	}

	var closeErr error
	e.closeOnce.Do(func() {
		_ = e.send("quit")
		close(e.stopCh)

		select {
		case <-ctx.Done():
			if e.cmd.Process != nil {
				if killErr := e.cmd.Process.Kill(); killErr != nil {
					closeErr = &OpError{Op: "kill process", Err: killErr}
				}
			}
			<-e.waitDone
		case <-e.waitDone:
		}

		e.alive.Store(false)
		_ = e.stdin.Close()
		_ = e.stdout.Close()
		e.log.Debug().Msg("engine closed")
	})
	return closeErr
}

func (e *Engine) send(command string) error {
	if !e.alive.Load() {
		return ErrEngineCrashed
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if _, err := io.WriteString(e.stdin, command+"\n"); err != nil {
		e.alive.Store(false)
		return &OpError{Op: "write command", Err: err}
	}
	return nil
}

func (e *Engine) waitFor(ctx context.Context, match func(string) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-e.readErr:
			if err == nil {
				return ErrEngineCrashed
			}
			return err
		case <-e.waitDone:
			waitErr := e.getWaitErr()
			if waitErr == nil {
				return ErrEngineCrashed
			}
			return waitErr
		case line, ok := <-e.lines:
			if !ok {
				return ErrEngineCrashed
			}
			if match(line) {
				return nil
			}
		}
	}
}

func (e *Engine) readLoop() {
	scanner := bufio.NewScanner(e.stdout)
	buffer := make([]byte, 0, 64*1024)
	scanner.Buffer(buffer, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		select {
		case <-e.stopCh:
			close(e.lines)
			return
		case e.lines <- line:
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case e.readErr <- &OpError{Op: "read output", Err: err}:
		default:
		}
	} else {
		select {
		case e.readErr <- nil:
		default:
		}
	}
	close(e.lines)
}

func (e *Engine) setWaitErr(err error) {
	e.waitErrMu.Lock()
	defer e.waitErrMu.Unlock()
	e.waitErr = err
}

func (e *Engine) getWaitErr() error {
	e.waitErrMu.RLock()
	defer e.waitErrMu.RUnlock()
	return e.waitErr
}

func normalizeFEN(fen string) (string, error) {
	trimmed := strings.TrimSpace(fen)
	if trimmed == "" {
		return "", fmt.Errorf("fen must not be empty")
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("fen must be single-line")
	}
	return trimmed, nil
}
