// Package human selects a move from a finalized candidate list using a
// seeded randomized policy, so the recommendation plays like a person
// instead of always parroting the engine's top line.
package human

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/vendigo0/stockfish-local-analysis-web/analysis"
)

var (
	ErrConfigOutOfRange = errors.New("human: config out of range")
	ErrNoLegalMoves     = errors.New("human: no candidate moves")
)

// Mode names the behavioral variant of the selection policy.
type Mode int

const (
	// ModeDontBlunder restricts choice to lines within a hard loss ceiling.
	ModeDontBlunder Mode = iota
	// ModeNatural draws from all lines with loss-weighted probabilities.
	ModeNatural
	// ModeChaotic widens the temperature and keeps a probability floor under
	// every line, so clearly worse moves stay possible.
	ModeChaotic
)

func (m Mode) String() string {
	switch m {
	case ModeDontBlunder:
		return "dont_blunder"
	case ModeNatural:
		return "natural"
	case ModeChaotic:
		return "chaotic"
	default:
		return "unknown"
	}
}

// ParseMode resolves a mode by name.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dont_blunder", "dont-blunder":
		return ModeDontBlunder, nil
	case "natural", "":
		return ModeNatural, nil
	case "chaotic":
		return ModeChaotic, nil
	default:
		return 0, fmt.Errorf("%w: mode %q", ErrConfigOutOfRange, name)
	}
}

const (
	MinLevel = 0
	MaxLevel = 100

	// maxBlunderLoss caps the don't-blunder threshold at every level.
	maxBlunderLoss = 150
	// winningScore is the point past which losing candidates are pruned.
	winningScore = 220
	// chaoticFloor is the relative weight floor kept under every candidate
	// in chaotic mode.
	chaoticFloor = 0.02
)

// Config controls one selection call. Identical Seed, Level, Mode and
// candidate list always produce the identical move.
type Config struct {
	Level int
	Mode  Mode
	Seed  int64
}

// Select picks one move from the finalized candidate list and returns it in
// UCI notation. The list must already be legal for the position under
// analysis; Select never invents moves outside it.
func Select(cands []analysis.CandidateLine, cfg Config) (string, error) {
	if cfg.Level < MinLevel || cfg.Level > MaxLevel {
		return "", fmt.Errorf("%w: level %d", ErrConfigOutOfRange, cfg.Level)
	}
	if cfg.Mode < ModeDontBlunder || cfg.Mode > ModeChaotic {
		return "", fmt.Errorf("%w: mode %d", ErrConfigOutOfRange, int(cfg.Mode))
	}

	pool := make([]analysis.CandidateLine, 0, len(cands))
	for _, c := range cands {
		if len(c.PV) > 0 {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return "", ErrNoLegalMoves
	}
	sort.Slice(pool, func(i, j int) bool {
		si, sj := pool[i].Score(), pool[j].Score()
		if si != sj {
			return si > sj
		}
		return pool[i].Rank < pool[j].Rank
	})
	// Forced or single-line searches bypass the policy entirely.
	if len(pool) == 1 {
		return pool[0].First(), nil
	}

	best := pool[0]
	var temperature, safeMargin int
	switch cfg.Mode {
	case ModeDontBlunder:
		threshold := 3 * cfg.Level / 2
		if threshold > maxBlunderLoss {
			threshold = maxBlunderLoss
		}
		kept := pool[:0]
		for _, c := range pool {
			if c.Loss(best) <= threshold {
				kept = append(kept, c)
			}
		}
		pool = kept
		temperature = 10 + 28*cfg.Level/10
		safeMargin = 40
	case ModeNatural:
		temperature = 18 + 6*cfg.Level
		safeMargin = -40
	case ModeChaotic:
		temperature = 25 + 15*cfg.Level/2
		safeMargin = -140
	}

	// When clearly winning, do not humanize the win away: prefer lines that
	// stay above the mode's safety margin if any exist.
	if best.Score() > winningScore {
		safe := make([]analysis.CandidateLine, 0, len(pool))
		for _, c := range pool {
			if c.Score() > safeMargin {
				safe = append(safe, c)
			}
		}
		if len(safe) > 0 {
			pool = safe
		}
	}

	weights := make([]float64, len(pool))
	for i, c := range pool {
		weights[i] = math.Exp(-float64(c.Loss(best)) / float64(temperature))
		if cfg.Mode == ModeChaotic && weights[i] < chaoticFloor {
			weights[i] = chaoticFloor
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	return pool[weightedPick(rng, weights)].First(), nil
}

func weightedPick(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	return len(weights) - 1
}
