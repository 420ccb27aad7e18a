package analysis

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"srcweb/internal/errors"
	"srcweb/internal/span"
)

// Def is an ingested definition.
type Def struct {
	ID        DefID     `json:"id"`
	Kind      DefKind   `json:"kind"`
	Name      string    `json:"name"`
	QualName  string    `json:"qualname"`
	Value     string    `json:"value,omitempty"`
	Docs      string    `json:"docs,omitempty"`
	Signature string    `json:"sig,omitempty"`
	Span      span.Span `json:"span"`
	Parent    *DefID    `json:"parent,omitempty"`
	Crate     string    `json:"crate"`
}

// Root is the top-level module of a crate.
type Root struct {
	ID    DefID  `json:"id"`
	Crate string `json:"crate"`
}

// Stats summarizes an index.
type Stats struct {
	Crates int       `json:"crates"`
	Defs   int       `json:"defs"`
	Refs   int       `json:"refs"`
	Files  int       `json:"files"`
	Built  time.Time `json:"built"`
	// SoftErrors counts artifacts and records skipped while building.
	SoftErrors int `json:"softErrors"`
}

// Index is the cross-reference index of one build. It is immutable once
// Ingest returns and safe for concurrent reads.
type Index struct {
	crates   *CrateTable
	defs     map[DefID]*Def
	titles   map[span.Span]string
	classIDs map[span.Span]DefID
	defNames map[string][]DefID
	refs     map[span.Span]DefID
	refSpans map[DefID][]span.Span
	children map[DefID][]DefID
	fileDefs map[string][]DefID
	roots    []Root
	built    time.Time
	soft     int
}

// IngestOptions configures Ingest.
type IngestOptions struct {
	// ProjectDir is joined onto relative file names.
	ProjectDir string
	// Blacklist names crates whose records are skipped.
	Blacklist []string
	Logger    *slog.Logger
}

func newIndex() *Index {
	return &Index{
		crates:   NewCrateTable(),
		defs:     make(map[DefID]*Def),
		titles:   make(map[span.Span]string),
		classIDs: make(map[span.Span]DefID),
		defNames: make(map[string][]DefID),
		refs:     make(map[span.Span]DefID),
		refSpans: make(map[DefID][]span.Span),
		children: make(map[DefID][]DefID),
		fileDefs: make(map[string][]DefID),
	}
}

type crateInput struct {
	record *CrateRecord
	remap  *Remapper
}

// Ingest builds an index from crate records, in order. A record that cannot
// be remapped is skipped and its error returned; the others are still
// ingested.
//
// Each record's definitions are ingested before its references, and a
// reference is kept only when its target is already indexed. A reference
// into a crate that appears later in records is dropped.
func Ingest(records []CrateRecord, opts IngestOptions) (*Index, []error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idx := newIndex()
	var errs []error

	for i := range records {
		rec := &records[i]
		if rec.Prelude != nil && slices.Contains(opts.Blacklist, rec.Prelude.CrateName) {
			logger.Debug("Skipping blacklisted crate", "crate", rec.Prelude.CrateName)
			continue
		}
		remap, err := NewRemapper(idx.crates, rec.Prelude)
		if err != nil {
			logger.Warn("Skipping analysis record", "source", rec.Source, "error", err)
			errs = append(errs, err)
			continue
		}
		in := crateInput{record: rec, remap: remap}
		idx.ingestDefs(in, opts.ProjectDir)
		idx.ingestRefs(in, opts.ProjectDir)
	}
	idx.built = time.Now()

	logger.Debug("Ingested analysis",
		"crates", idx.crates.Len(),
		"defs", len(idx.defs),
		"refs", len(idx.refs),
		"skipped", len(errs),
	)
	return idx, errs
}

func (idx *Index) ingestDefs(in crateInput, projectDir string) {
	rec, remap := in.record, in.remap

	for _, imp := range rec.Imports {
		idx.titles[imp.Span.Lower(projectDir)] = imp.Value
	}

	for _, d := range rec.Defs {
		sp := d.Span.Lower(projectDir)
		if d.Value != "" {
			idx.titles[sp] = d.Value
		}
		id := remap.Translate(d.ID)
		if id == NullID {
			continue
		}
		if _, dup := idx.defs[id]; dup {
			continue
		}

		def := &Def{
			ID:       id,
			Kind:     d.Kind,
			Name:     d.Name,
			QualName: d.QualName,
			Value:    d.Value,
			Docs:     d.Docs,
			Span:     sp,
			Crate:    remap.Crate(),
		}
		if d.Sig != nil {
			def.Signature = d.Sig.Text
		}
		if d.Parent != nil {
			if parent := remap.Translate(*d.Parent); parent != NullID {
				def.Parent = &parent
				idx.children[parent] = append(idx.children[parent], id)
			}
		}

		idx.defs[id] = def
		idx.classIDs[sp] = id
		idx.defNames[d.Name] = append(idx.defNames[d.Name], id)
		idx.fileDefs[sp.File] = append(idx.fileDefs[sp.File], id)

		if d.Kind == DefKindMod && d.Parent == nil && d.ID.Krate == 0 && d.ID.Index == 0 {
			idx.roots = append(idx.roots, Root{ID: id, Crate: remap.Crate()})
		}
	}
}

func (idx *Index) ingestRefs(in crateInput, projectDir string) {
	for _, r := range in.record.Refs {
		id := in.remap.Translate(r.RefID)
		if id == NullID {
			continue
		}
		if _, ok := idx.defs[id]; !ok {
			continue
		}
		sp := r.Span.Lower(projectDir)
		if _, dup := idx.refs[sp]; dup {
			continue
		}
		idx.classIDs[sp] = id
		idx.refs[sp] = id
		idx.refSpans[id] = append(idx.refSpans[id], sp)
	}
}

func notFound(id DefID) error {
	return errors.Newf(errors.NotFound, "no definition with id %s", id)
}

// Definition returns the definition for id.
func (idx *Index) Definition(id DefID) (*Def, error) {
	def, ok := idx.defs[id]
	if !ok {
		return nil, notFound(id)
	}
	copied := *def
	return &copied, nil
}

// References returns the reference spans of id in ingestion order.
func (idx *Index) References(id DefID) ([]span.Span, error) {
	if _, ok := idx.defs[id]; !ok {
		return nil, notFound(id)
	}
	return slices.Clone(idx.refSpans[id]), nil
}

// AllSpans returns the definition span of id followed by its reference spans.
func (idx *Index) AllSpans(id DefID) ([]span.Span, error) {
	def, ok := idx.defs[id]
	if !ok {
		return nil, notFound(id)
	}
	refs := idx.refSpans[id]
	out := make([]span.Span, 0, len(refs)+1)
	out = append(out, def.Span)
	return append(out, refs...), nil
}

// Search returns the ids of every definition named name. An unknown name
// yields an empty slice.
func (idx *Index) Search(name string) []DefID {
	ids := idx.defNames[name]
	if ids == nil {
		return []DefID{}
	}
	return slices.Clone(ids)
}

// Children returns the ids of definitions whose parent is id.
func (idx *Index) Children(id DefID) ([]DefID, error) {
	if _, ok := idx.defs[id]; !ok {
		return nil, notFound(id)
	}
	kids := idx.children[id]
	if kids == nil {
		return []DefID{}, nil
	}
	return slices.Clone(kids), nil
}

// Roots returns crate root modules sorted by crate name. When crates is
// non-empty only roots of those crates are returned.
func (idx *Index) Roots(crates []string) []Root {
	out := make([]Root, 0, len(idx.roots))
	for _, r := range idx.roots {
		if len(crates) > 0 && !slices.Contains(crates, r.Crate) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Root) int { return cmp.Compare(a.Crate, b.Crate) })
	return out
}

// FileDefs returns definitions located in file.
func (idx *Index) FileDefs(file string) []DefID {
	return slices.Clone(idx.fileDefs[file])
}

// Title returns hover text for an identifier span: an explicit title, or
// the value of the definition the span refers to.
func (idx *Index) Title(sp span.Span) (string, bool) {
	if t, ok := idx.titles[sp]; ok {
		return t, true
	}
	if id, ok := idx.refs[sp]; ok {
		if def := idx.defs[id]; def != nil && def.Value != "" {
			return def.Value, true
		}
	}
	return "", false
}

// GotoDef returns the definition span a reference span points at.
func (idx *Index) GotoDef(sp span.Span) (span.Span, bool) {
	id, ok := idx.refs[sp]
	if !ok {
		return span.Span{}, false
	}
	return idx.defs[id].Span, true
}

// ClassID returns the definition shared by every occurrence of an identifier.
func (idx *Index) ClassID(sp span.Span) (DefID, bool) {
	id, ok := idx.classIDs[sp]
	return id, ok
}

// Crates returns crate names in global id order.
func (idx *Index) Crates() []string {
	return idx.crates.Names()
}

func (idx *Index) Stats() Stats {
	return Stats{
		Crates: idx.crates.Len(),
		Defs:   len(idx.defs),
		Refs:   len(idx.refs),
		Files:  len(idx.fileDefs),
		Built:  idx.built,

		SoftErrors: idx.soft,
	}
}
