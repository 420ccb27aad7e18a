package analysis

import (
	"testing"

	"srcweb/internal/errors"
)

func prelude(name string, externs ...ExternalCrate) *Prelude {
	return &Prelude{CrateName: name, ExternalCrates: externs}
}

func TestRemapper_ReusesGlobalIDs(t *testing.T) {
	table := NewCrateTable()

	a, err := NewRemapper(table, prelude("app",
		ExternalCrate{Name: "std", Num: 2},
		ExternalCrate{Name: "util", Num: 1},
	))
	if err != nil {
		t.Fatalf("NewRemapper(app) error: %v", err)
	}
	b, err := NewRemapper(table, prelude("util", ExternalCrate{Name: "std", Num: 1}))
	if err != nil {
		t.Fatalf("NewRemapper(util) error: %v", err)
	}

	// app=0, util=1, std=2 regardless of which crate mentions them.
	if got := a.Translate(CompilerID{Krate: 1, Index: 5}); got != MakeDefID(1, 5) {
		t.Errorf("app view of util:5 = %v, want %v", got, MakeDefID(1, 5))
	}
	if got := b.Translate(CompilerID{Krate: 0, Index: 5}); got != MakeDefID(1, 5) {
		t.Errorf("util view of util:5 = %v, want %v", got, MakeDefID(1, 5))
	}
	if a.Translate(CompilerID{Krate: 2, Index: 9}) != b.Translate(CompilerID{Krate: 1, Index: 9}) {
		t.Error("std definitions should translate identically from both crates")
	}
	if table.Len() != 3 {
		t.Errorf("table has %d crates, want 3", table.Len())
	}
}

func TestRemapper_Translate(t *testing.T) {
	r, err := NewRemapper(NewCrateTable(), prelude("app", ExternalCrate{Name: "core", Num: 1}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		id   CompilerID
		want DefID
	}{
		{"local", CompilerID{Krate: 0, Index: 42}, MakeDefID(0, 42)},
		{"external", CompilerID{Krate: 1, Index: 7}, MakeDefID(1, 7)},
		{"index masked to 24 bits", CompilerID{Krate: 0, Index: 0x01000003}, MakeDefID(0, 3)},
		{"null krate", CompilerID{Krate: 0xFFFFFFFF, Index: 1}, NullID},
		{"null index", CompilerID{Krate: 0, Index: 0xFFFFFFFF}, NullID},
		{"unknown crate number", CompilerID{Krate: 5, Index: 1}, NullID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Translate(tt.id); got != tt.want {
				t.Errorf("Translate(%+v) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestRemapper_InjectiveWithinCrate(t *testing.T) {
	r, err := NewRemapper(NewCrateTable(), prelude("app",
		ExternalCrate{Name: "a", Num: 1},
		ExternalCrate{Name: "b", Num: 2},
	))
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[DefID]CompilerID)
	for krate := uint32(0); krate < 3; krate++ {
		for index := uint32(0); index < 50; index++ {
			in := CompilerID{Krate: krate, Index: index}
			out := r.Translate(in)
			if prev, dup := seen[out]; dup {
				t.Fatalf("%+v and %+v both map to %v", prev, in, out)
			}
			seen[out] = in
		}
	}
}

func TestRemapper_NonDenseNumbering(t *testing.T) {
	_, err := NewRemapper(NewCrateTable(), prelude("app",
		ExternalCrate{Name: "a", Num: 1},
		ExternalCrate{Name: "b", Num: 3},
	))
	if !errors.Is(err, errors.InvariantViolation) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
}

func TestDefID_Parts(t *testing.T) {
	id := MakeDefID(3, 0x1234)
	if id.Crate() != 3 || id.Local() != 0x1234 {
		t.Errorf("parts of %v = (%d, %#x)", id, id.Crate(), id.Local())
	}
	parsed, err := ParseDefID(id.String())
	if err != nil || parsed != id {
		t.Errorf("ParseDefID(%q) = %v, %v", id.String(), parsed, err)
	}
}
