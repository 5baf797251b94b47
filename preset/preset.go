// Package preset maps named configuration bundles to concrete search and
// humanization parameters. The table is fixed at build time; unknown names
// fail loudly instead of falling back.
package preset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vendigo0/stockfish-local-analysis-web/engine"
	"github.com/vendigo0/stockfish-local-analysis-web/human"
)

var ErrUnknownPreset = errors.New("preset: unknown preset")

// UnknownPresetError reports a lookup for a name not in the table.
type UnknownPresetError struct {
	Name string
}

func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("preset: unknown preset %q", e.Name)
}

func (e *UnknownPresetError) Unwrap() error {
	return ErrUnknownPreset
}

// Preset is a named bundle of engine-search and humanization settings.
type Preset struct {
	Name   string
	Engine engine.SearchConfig
	Human  human.Config
}

var table = map[string]Preset{
	"beginner": {
		Name: "beginner",
		Engine: engine.SearchConfig{
			Depth: 8, Lines: 6,
			SkillLevel: skill(3), LimitStrength: true, Elo: 1000,
			Contempt: engine.ContemptAggressive,
		},
		Human: human.Config{Level: 85, Mode: human.ModeChaotic},
	},
	"casual": {
		Name: "casual",
		Engine: engine.SearchConfig{
			Depth: 10, Lines: 5,
			SkillLevel: skill(8), LimitStrength: true, Elo: 1400,
		},
		Human: human.Config{Level: 60, Mode: human.ModeNatural},
	},
	"club": {
		Name: "club",
		Engine: engine.SearchConfig{
			Depth: 14, Lines: 4,
			SkillLevel: skill(14), LimitStrength: true, Elo: 1900,
		},
		Human: human.Config{Level: 35, Mode: human.ModeNatural},
	},
	"expert": {
		Name:   "expert",
		Engine: engine.SearchConfig{Depth: 18, Lines: 3},
		Human:  human.Config{Level: 15, Mode: human.ModeDontBlunder},
	},
	"maximum": {
		Name:   "maximum",
		Engine: engine.SearchConfig{Depth: 22, Lines: 3},
		Human:  human.Config{Level: 0, Mode: human.ModeDontBlunder},
	},
}

func skill(level int) *int {
	return &level
}

// Resolve looks a preset up by name, case-insensitively.
func Resolve(name string) (Preset, error) {
	p, ok := table[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, &UnknownPresetError{Name: name}
	}
	return p, nil
}

// Names lists all preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every table entry against the bounds the engine and
// policy packages enforce. Run at session startup so a bad table is caught
// before any search.
func Validate() error {
	for name, p := range table {
		if p.Name != name {
			return fmt.Errorf("preset %q: name mismatch %q", name, p.Name)
		}
		if p.Engine.Depth < 1 || p.Engine.Depth > 24 {
			return fmt.Errorf("preset %q: depth %d out of range", name, p.Engine.Depth)
		}
		if p.Engine.Lines < 1 || p.Engine.Lines > 10 {
			return fmt.Errorf("preset %q: lines %d out of range", name, p.Engine.Lines)
		}
		if p.Engine.SkillLevel != nil && (*p.Engine.SkillLevel < 0 || *p.Engine.SkillLevel > 20) {
			return fmt.Errorf("preset %q: skill %d out of range", name, *p.Engine.SkillLevel)
		}
		if p.Engine.LimitStrength && (p.Engine.Elo < 800 || p.Engine.Elo > 2850) {
			return fmt.Errorf("preset %q: elo %d out of range", name, p.Engine.Elo)
		}
		if p.Engine.Contempt < -100 || p.Engine.Contempt > 100 {
			return fmt.Errorf("preset %q: contempt %d out of range", name, p.Engine.Contempt)
		}
		if p.Human.Level < human.MinLevel || p.Human.Level > human.MaxLevel {
			return fmt.Errorf("preset %q: humanization level %d out of range", name, p.Human.Level)
		}
		if p.Human.Mode < human.ModeDontBlunder || p.Human.Mode > human.ModeChaotic {
			return fmt.Errorf("preset %q: bad humanization mode", name)
		}
	}
	return nil
}
