package analysis

import (
	"slices"

	"srcweb/internal/errors"
)

// CrateTable assigns global crate ids by name for one ingestion. A name seen
// before keeps its id; a new name takes the next unused id. More than 256
// distinct crates wrap around and collide.
type CrateTable struct {
	ids   map[string]uint8
	names []string
}

func NewCrateTable() *CrateTable {
	return &CrateTable{ids: make(map[string]uint8)}
}

// Intern returns the global id for name, allocating one if needed.
func (t *CrateTable) Intern(name string) uint8 {
	if id, ok := t.ids[name]; ok {
		return id
	}
	id := uint8(len(t.ids))
	t.ids[name] = id
	t.names = append(t.names, name)
	return id
}

// Lookup returns the global id for name without allocating.
func (t *CrateTable) Lookup(name string) (uint8, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Names returns crate names in allocation order.
func (t *CrateTable) Names() []string {
	return slices.Clone(t.names)
}

func (t *CrateTable) Len() int { return len(t.ids) }

// Remapper translates one crate's compiler ids into DefIDs.
type Remapper struct {
	crate  string
	global []uint8 // local crate number -> global crate id
}

// NewRemapper interns the crate described by prelude and its external
// crates. External crate numbers must be dense starting at 1; otherwise an
// InvariantViolation is returned and table is not modified.
func NewRemapper(table *CrateTable, prelude *Prelude) (*Remapper, error) {
	if prelude == nil {
		return nil, errors.Newf(errors.ParseError, "analysis record has no prelude")
	}

	externs := slices.Clone(prelude.ExternalCrates)
	slices.SortStableFunc(externs, func(a, b ExternalCrate) int {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	})
	for i, c := range externs {
		if c.Num != uint32(i+1) {
			return nil, errors.Newf(errors.InvariantViolation,
				"crate %s: external crate %s has number %d, expected %d",
				prelude.CrateName, c.Name, c.Num, i+1)
		}
	}

	r := &Remapper{
		crate:  prelude.CrateName,
		global: make([]uint8, 0, len(externs)+1),
	}
	r.global = append(r.global, table.Intern(prelude.CrateName))
	for _, c := range externs {
		r.global = append(r.global, table.Intern(c.Name))
	}
	return r, nil
}

// Translate maps a compiler id to a DefID, or NullID when the id is null or
// refers to a crate number outside the prelude's list.
func (r *Remapper) Translate(id CompilerID) DefID {
	if id.IsNull() || int64(id.Krate) >= int64(len(r.global)) {
		return NullID
	}
	return MakeDefID(r.global[id.Krate], id.Index)
}

// Crate returns the name of the crate this remapper was built for.
func (r *Remapper) Crate() string { return r.crate }
