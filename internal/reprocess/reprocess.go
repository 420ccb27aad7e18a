// Package reprocess turns a build's diagnostics into highlighted source
// snippets once analysis for the build is available.
package reprocess

import (
	"encoding/json"
	"log/slog"
	"slices"

	"srcweb/internal/diagnostics"
)

// FileSource provides highlighted and plain source text.
type FileSource interface {
	// Highlighted returns one HTML line per source line.
	Highlighted(path string) ([]string, error)
	// Lines returns the plain text of rows [start, end), zero-indexed.
	Lines(path string, start, end int) (string, error)
}

// Highlight is a rectangle of source text. Lines and columns are 1-based.
type Highlight struct {
	LineStart int `json:"line_start"`
	LineEnd   int `json:"line_end"`
	ColStart  int `json:"column_start"`
	ColEnd    int `json:"column_end"`
}

func highlightOf(s *diagnostics.Span) Highlight {
	return Highlight{LineStart: s.LineStart, LineEnd: s.LineEnd, ColStart: s.ColStart, ColEnd: s.ColEnd}
}

// LabeledHighlight encodes as a two element array, [highlight, label].
type LabeledHighlight struct {
	Highlight Highlight
	Label     string
}

func (l LabeledHighlight) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{l.Highlight, l.Label})
}

func (l *LabeledHighlight) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) > 0 {
		if err := json.Unmarshal(pair[0], &l.Highlight); err != nil {
			return err
		}
	}
	if len(pair) > 1 {
		return json.Unmarshal(pair[1], &l.Label)
	}
	return nil
}

// Snippet is a window of source around a group of nearby spans of one
// diagnostic.
type Snippet struct {
	ParentID     *uint32            `json:"parent_id"`
	DiagnosticID uint32             `json:"diagnostic_id"`
	SpanIDs      []uint32           `json:"span_ids"`
	Text         []string           `json:"text"`
	File         string             `json:"file_name"`
	LineStart    int                `json:"line_start"` // 1-based
	LineEnd      int                `json:"line_end"`
	Highlights   []LabeledHighlight `json:"highlights"`
	PlainText    string             `json:"plain_text"`
	PrimarySpan  Highlight          `json:"primary_span"`
}

// Result is the payload published for a build.
type Result struct {
	Snippets []Snippet `json:"snippets"`
	Key      string    `json:"key"`
}

// Reprocessor builds snippets.
type Reprocessor struct {
	ContextLines int
	Source       FileSource
	Logger       *slog.Logger
}

// Run reprocesses every diagnostic, children after their parent.
func (r *Reprocessor) Run(key string, diags []*diagnostics.Diagnostic) Result {
	res := Result{Key: key, Snippets: []Snippet{}}
	for _, d := range diags {
		r.diagnostic(d, nil, &res)
	}
	return res
}

func (r *Reprocessor) diagnostic(d *diagnostics.Diagnostic, parent *uint32, res *Result) {
	spans := slices.Clone(d.Spans)
	slices.SortFunc(spans, diagnostics.CompareSpans)

	for _, group := range Partition(spans, func(a, b *diagnostics.Span) bool {
		return a.IsClose(b, r.ContextLines)
	}) {
		res.Snippets = append(res.Snippets, r.snippet(d.ID, parent, group))
	}

	id := d.ID
	for _, c := range d.Children {
		r.diagnostic(c, &id, res)
	}
}

func (r *Reprocessor) snippet(diagID uint32, parent *uint32, group []*diagnostics.Span) Snippet {
	first, last := group[0], group[len(group)-1]
	ctx := r.ContextLines

	// Zero-indexed window [start, end).
	start := 0
	if first.LineStart > 0 {
		start = first.LineStart - 1
	}
	if start <= ctx {
		start = 0
	} else {
		start -= ctx
	}
	end := last.LineEnd + ctx

	// The window is clamped to the file; an unreadable file leaves it empty
	// (LineEnd == LineStart-1).
	text := []string{}
	plain := ""
	if lines, err := r.Source.Highlighted(first.File); err != nil {
		r.logger().Debug("No highlighted source for snippet", "file", first.File, "error", err)
		end = start
	} else {
		end = min(end, len(lines))
		start = min(start, end)
		text = slices.Clone(lines[start:end])
		if p, err := r.Source.Lines(first.File, start, end); err == nil {
			plain = p
		}
	}

	primary := first
	for _, s := range group {
		if s.IsPrimary {
			primary = s
			break
		}
	}

	ids := make([]uint32, len(group))
	highlights := make([]LabeledHighlight, len(group))
	for i, s := range group {
		ids[i] = s.ID
		highlights[i] = LabeledHighlight{Highlight: highlightOf(s), Label: s.Label}
	}

	return Snippet{
		ParentID:     parent,
		DiagnosticID: diagID,
		SpanIDs:      ids,
		Text:         text,
		File:         first.File,
		LineStart:    start + 1,
		LineEnd:      end,
		Highlights:   highlights,
		PlainText:    plain,
		PrimarySpan:  highlightOf(primary),
	}
}

func (r *Reprocessor) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Partition splits sorted items into maximal runs in which every item is
// close to the one before it. Closeness is only checked pairwise, so a run
// can span more than one context window.
func Partition[T any](items []T, close func(prev, next T) bool) [][]T {
	var out [][]T
	if len(items) == 0 {
		return out
	}
	first := 0
	for i := 1; i < len(items); i++ {
		if !close(items[i-1], items[i]) {
			out = append(out, items[first:i])
			first = i
		}
	}
	return append(out, items[first:])
}
