package engine

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrEngineUnavailable = errors.New("engine: binary unavailable or failed to start")
	ErrEngineCrashed     = errors.New("engine: process is not running")
	ErrEngineTimeout     = errors.New("engine: timed out")
	ErrSearchActive      = errors.New("engine: a search is already active")
)

// OpError wraps a failure of a single process or pipe operation.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

const (
	defaultThreads      = 1
	defaultHashMB       = 16
	defaultMaxLines     = 10
	maxAllowedLines     = 256
	defaultStartTimeout = 5 * time.Second
	defaultStallTimeout = 10 * time.Second
	defaultStopGrace    = 2 * time.Second

	minDepth = 1
	maxDepth = 24
	minSkill = 0
	maxSkill = 20
	minElo   = 800
	maxElo   = 2850

	defaultDepth = 16
	defaultLines = 3
)

// Options configures one engine process.
type Options struct {
	// Path to the engine binary. Empty falls back to $STOCKFISH_PATH and
	// then to "stockfish" on PATH.
	Path string

	Threads  int
	HashMB   int
	MaxLines int

	// StartTimeout bounds the initial uci/isready handshake.
	StartTimeout time.Duration
	// StallTimeout aborts a search when the process emits nothing for this
	// long.
	StallTimeout time.Duration
	// StopGrace bounds how long a stop request may take to produce the
	// final bestmove before the process is declared wedged.
	StopGrace time.Duration

	Logger zerolog.Logger
}

type options struct {
	path         string
	threads      int
	hashMB       int
	maxLines     int
	startTimeout time.Duration
	stallTimeout time.Duration
	stopGrace    time.Duration
}

func validateOptions(o Options) (options, error) {
	threads := o.Threads
	if threads <= 0 {
		threads = defaultThreads
	}
	hashMB := o.HashMB
	if hashMB <= 0 {
		hashMB = defaultHashMB
	}
	maxLines := o.MaxLines
	if maxLines < 0 {
		return options{}, fmt.Errorf("max lines must be >= 0")
	}
	if maxLines == 0 {
		maxLines = defaultMaxLines
	}
	if maxLines > maxAllowedLines {
		return options{}, fmt.Errorf("max lines must be <= %d", maxAllowedLines)
	}

	startTimeout := o.StartTimeout
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}
	stallTimeout := o.StallTimeout
	if stallTimeout <= 0 {
		stallTimeout = defaultStallTimeout
	}
	stopGrace := o.StopGrace
	if stopGrace <= 0 {
		stopGrace = defaultStopGrace
	}

	path, err := resolveBinaryPath(o.Path)
	if err != nil {
		return options{}, err
	}

	return options{
		path:         path,
		threads:      threads,
		hashMB:       hashMB,
		maxLines:     maxLines,
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		stopGrace:    stopGrace,
	}, nil
}

func resolveBinaryPath(configuredPath string) (string, error) {
	trimmed := strings.TrimSpace(configuredPath)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	}
	if trimmed != "" {
		if found, err := exec.LookPath(trimmed); err == nil {
			return found, nil
		}
	}

	if found, err := exec.LookPath("stockfish"); err == nil {
		return found, nil
	}

	if trimmed == "" {
		return "", fmt.Errorf("%w: stockfish binary not found in PATH", ErrEngineUnavailable)
	}
	return "", fmt.Errorf("%w: binary not found at %q and default lookup failed", ErrEngineUnavailable, trimmed)
}

// SearchConfig describes one search: limits, line count and the engine's
// strength knobs. Immutable once a search starts.
type SearchConfig struct {
	// Depth in plies. When zero and MoveTime is zero, a default depth is
	// used; clamped to 1..24.
	Depth int
	// MoveTime limits the search by wall clock instead of depth.
	MoveTime time.Duration
	// Lines is the number of ranked lines to request, clamped to 1..10.
	Lines int

	// SkillLevel is Stockfish's "Skill Level" option, 0..20. Nil keeps the
	// engine default (full strength).
	SkillLevel *int
	// LimitStrength toggles UCI_LimitStrength; Elo applies only when set.
	LimitStrength bool
	Elo           int
	// Contempt biases the playing style; negative is passive, positive
	// aggressive. ParseStyle maps the named styles onto it.
	Contempt int
}

// Named playing styles and their Contempt values.
const (
	ContemptPassive    = -20
	ContemptNormal     = 0
	ContemptAggressive = 20
)

// ParseStyle resolves a named playing style to its Contempt value. An empty
// name means normal.
func ParseStyle(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "passive":
		return ContemptPassive, nil
	case "normal", "":
		return ContemptNormal, nil
	case "aggressive":
		return ContemptAggressive, nil
	default:
		return 0, fmt.Errorf("unknown playing style %q", name)
	}
}

func (c SearchConfig) normalized() SearchConfig {
	if c.Depth == 0 && c.MoveTime == 0 {
		c.Depth = defaultDepth
	}
	if c.Depth != 0 {
		c.Depth = clamp(c.Depth, minDepth, maxDepth)
	}
	if c.Lines == 0 {
		c.Lines = defaultLines
	}
	c.Lines = clamp(c.Lines, 1, defaultMaxLines)
	if c.SkillLevel != nil {
		skill := clamp(*c.SkillLevel, minSkill, maxSkill)
		c.SkillLevel = &skill
	}
	if c.Elo != 0 {
		c.Elo = clamp(c.Elo, minElo, maxElo)
	}
	return c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
