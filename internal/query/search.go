package query

import (
	"cmp"
	"slices"

	"srcweb/internal/analysis"
	"srcweb/internal/span"
)

// SearchResult is the answer to an identifier or id search: one entry per
// matching definition.
type SearchResult struct {
	Defs []DefResult `json:"defs"`
}

// DefResult is a definition with its references bucketed by file.
type DefResult struct {
	ID   analysis.DefID `json:"id"`
	File string         `json:"file"`
	Line LineResult     `json:"line"`
	Refs []FileResult   `json:"refs"`
}

// FileResult holds every result line in one file.
type FileResult struct {
	FileName string       `json:"file_name"`
	Lines    []LineResult `json:"lines"`
}

// LineResult is one highlighted result line.
type LineResult struct {
	LineStart   int    `json:"line_start"`
	ColumnStart int    `json:"column_start"`
	ColumnEnd   int    `json:"column_end"`
	Line        string `json:"line"`
	PreContext  string `json:"pre_context"`
	PostContext string `json:"post_context"`
}

func compareLines(a, b LineResult) int {
	if c := cmp.Compare(a.LineStart, b.LineStart); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ColumnStart, b.ColumnStart); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ColumnEnd, b.ColumnEnd); c != 0 {
		return c
	}
	return cmp.Compare(a.Line, b.Line)
}

// IdentSearch finds every definition named name. An unknown name gives an
// empty result.
func (e *Engine) IdentSearch(name string) (*SearchResult, error) {
	idx, err := e.index.Index()
	if err != nil {
		return nil, err
	}
	return e.idsSearch(idx, idx.Search(name))
}

// IDSearch returns the definition id with its references.
func (e *Engine) IDSearch(id analysis.DefID) (*SearchResult, error) {
	idx, err := e.index.Index()
	if err != nil {
		return nil, err
	}
	if _, err := idx.Definition(id); err != nil {
		return nil, err
	}
	return e.idsSearch(idx, []analysis.DefID{id})
}

func (e *Engine) idsSearch(idx *analysis.Index, ids []analysis.DefID) (*SearchResult, error) {
	res := &SearchResult{Defs: make([]DefResult, 0, len(ids))}
	for _, id := range ids {
		spans, err := idx.AllSpans(id)
		if err != nil {
			return nil, err
		}
		def := spans[0]
		line, _ := e.lineResult(def)
		res.Defs = append(res.Defs, DefResult{
			ID:   id,
			File: e.relPath(def.File),
			Line: line,
			Refs: e.bucket(spans[1:]),
		})
	}
	return res, nil
}

// bucket groups spans by file. Files are sorted by name and lines by
// position; spans whose line cannot be rendered are dropped.
func (e *Engine) bucket(spans []span.Span) []FileResult {
	byFile := make(map[string][]LineResult)
	for _, sp := range spans {
		line, ok := e.lineResult(sp)
		if !ok {
			continue
		}
		name := e.relPath(sp.File)
		byFile[name] = append(byFile[name], line)
	}

	out := make([]FileResult, 0, len(byFile))
	for name, lines := range byFile {
		slices.SortFunc(lines, compareLines)
		out = append(out, FileResult{FileName: name, Lines: lines})
	}
	slices.SortFunc(out, func(a, b FileResult) int { return cmp.Compare(a.FileName, b.FileName) })
	return out
}
