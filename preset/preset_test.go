package preset

import (
	"errors"
	"sort"
	"testing"

	"github.com/vendigo0/stockfish-local-analysis-web/engine"
)

func TestResolveKnownPresets(t *testing.T) {
	for _, name := range Names() {
		p, err := Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", name, err)
		}
		if p.Name != name {
			t.Fatalf("Resolve(%q).Name = %q", name, p.Name)
		}
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	p, err := Resolve("  Club ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Name != "club" {
		t.Fatalf("Resolve(Club).Name = %q, want club", p.Name)
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("grandmaster9000")
	if !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownPreset", err)
	}
	var typed *UnknownPresetError
	if !errors.As(err, &typed) || typed.Name != "grandmaster9000" {
		t.Fatalf("error does not carry the requested name: %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	if len(names) == 0 {
		t.Fatalf("Names() returned nothing")
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("Names() not sorted: %v", names)
	}
}

func TestTableValidates(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestBeginnerPlaysAggressively(t *testing.T) {
	p, err := Resolve("beginner")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want, err := engine.ParseStyle("aggressive")
	if err != nil {
		t.Fatalf("ParseStyle() error = %v", err)
	}
	if p.Engine.Contempt != want {
		t.Fatalf("beginner contempt = %d, want %d", p.Engine.Contempt, want)
	}
}
