package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vendigo0/stockfish-local-analysis-web/engine"
	"github.com/vendigo0/stockfish-local-analysis-web/position"
	"github.com/vendigo0/stockfish-local-analysis-web/preset"
)

var (
	ErrQueueFull  = errors.New("session: pool queue is full")
	ErrPoolClosed = errors.New("session: pool is closed")
)

const (
	defaultQueueMultiplier = 4
	defaultMaxRestarts     = 1
	defaultRequestTimeout  = 30 * time.Second
)

// PoolConfig sizes a pool of independent sessions for concurrent callers.
type PoolConfig struct {
	Sessions  int
	QueueSize int
	// RequestTimeout bounds one BestHumanMove call end to end.
	RequestTimeout time.Duration
	// MaxRestarts caps engine restarts after a crash, per worker.
	MaxRestarts int

	Engine engine.Options
	Logger zerolog.Logger

	// AllowUnsafeCPUOvercommit permits more engine threads than CPUs.
	AllowUnsafeCPUOvercommit bool
}

type poolJob struct {
	ctx      context.Context
	notation string
	preset   string
	seed     int64
	response chan poolResult
}

type poolResult struct {
	move position.Move
	err  error
}

// Pool runs N sessions, each owning its own engine process, behind a
// bounded job queue. Sessions share no mutable state.
type Pool struct {
	cfg  PoolConfig
	log  zerolog.Logger
	jobs chan poolJob

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPool starts all sessions concurrently; if any engine fails to come up
// the whole pool is torn down and the startup error returned.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Sessions <= 0 {
		cfg.Sessions = 1
	}
	cpuCount := runtime.NumCPU()
	threads := cfg.Engine.Threads
	if threads <= 0 {
		threads = 1
	}
	if !cfg.AllowUnsafeCPUOvercommit && cfg.Sessions*threads > cpuCount {
		return nil, fmt.Errorf("sessions*threads exceeds CPU count (%d > %d)", cfg.Sessions*threads, cpuCount)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Sessions * defaultQueueMultiplier
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxRestarts < 0 {
		return nil, fmt.Errorf("max restarts must be >= 0")
	}
	if cfg.MaxRestarts == 0 {
		cfg.MaxRestarts = defaultMaxRestarts
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		cfg:    cfg,
		log:    cfg.Logger,
		jobs:   make(chan poolJob, cfg.QueueSize),
		ctx:    poolCtx,
		cancel: cancel,
	}

	sessions := make([]*Session, cfg.Sessions)
	g, gctx := errgroup.WithContext(poolCtx)
	for i := range sessions {
		i := i
		g.Go(func() error {
			sess, err := Start(gctx, Config{Engine: cfg.Engine, Logger: cfg.Logger})
			if err != nil {
				return err
			}
			sessions[i] = sess
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cancel()
		close(p.jobs)
		for _, sess := range sessions {
			if sess != nil {
				_ = sess.Close(context.Background())
			}
		}
		return nil, err
	}

	for _, sess := range sessions {
		p.wg.Add(1)
		go p.worker(sess)
	}
	p.log.Debug().Int("sessions", cfg.Sessions).Msg("pool started")
	return p, nil
}

// BestHumanMove resolves the preset, analyzes the position on a pooled
// session and returns the humanized move. The seed makes the pick
// reproducible for a given finalized candidate list.
func (p *Pool) BestHumanMove(ctx context.Context, notation, presetName string, seed int64) (position.Move, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	job := poolJob{
		ctx:      jobCtx,
		notation: notation,
		preset:   presetName,
		seed:     seed,
		response: make(chan poolResult, 1),
	}

	select {
	case <-p.ctx.Done():
		return position.Move{}, ErrPoolClosed
	case p.jobs <- job:
	default:
		return position.Move{}, ErrQueueFull
	}

	select {
	case res := <-job.response:
		return res.move, res.err
	case <-jobCtx.Done():
		return position.Move{}, jobCtx.Err()
	case <-p.ctx.Done():
		return position.Move{}, ErrPoolClosed
	}
}

func (p *Pool) worker(sess *Session) {
	defer p.wg.Done()
	defer func() {
		_ = sess.Close(context.Background())
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}

			move, err := p.analyzeHuman(sess, job)
			if !sess.Healthy() {
				// Crashes are surfaced to the caller and the process is
				// replaced for subsequent jobs, never retried silently.
				replacement, restartErr := p.restartSession(sess)
				if restartErr != nil {
					p.log.Error().Err(restartErr).Msg("session restart failed")
					job.response <- poolResult{err: errorOr(err, restartErr)}
					return
				}
				sess = replacement
			}
			job.response <- poolResult{move: move, err: err}
		}
	}
}

func (p *Pool) analyzeHuman(sess *Session, job poolJob) (position.Move, error) {
	pr, err := preset.Resolve(job.preset)
	if err != nil {
		return position.Move{}, err
	}

	h, err := sess.Analyze(job.ctx, job.notation, pr.Engine)
	if err != nil {
		return position.Move{}, err
	}
	if _, err := sess.Wait(job.ctx, h); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			sess.Cancel(h)
		}
		return position.Move{}, err
	}

	humanCfg := pr.Human
	humanCfg.Seed = job.seed
	return sess.SelectHumanMove(h, humanCfg)
}

func (p *Pool) restartSession(old *Session) (*Session, error) {
	_ = old.Close(context.Background())

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRestarts; attempt++ {
		if p.ctx.Err() != nil {
			return nil, ErrPoolClosed
		}
		sess, err := Start(p.ctx, Config{Engine: p.cfg.Engine, Logger: p.cfg.Logger})
		if err == nil {
			p.log.Warn().Int("attempt", attempt+1).Msg("session restarted after crash")
			return sess, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("session restart failed after %d attempts: %w", p.cfg.MaxRestarts+1, lastErr)
}

// Close drains the workers and shuts every engine down.
func (p *Pool) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var closeErr error
	p.closeOnce.Do(func() {
		p.cancel()
		close(p.jobs)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			closeErr = ctx.Err()
		}
	})
	return closeErr
}

func errorOr(primary, fallback error) error {
	if primary != nil {
		return primary
	}
	return fallback
}
