// Package diagnostics lowers the compiler's line-delimited JSON diagnostics
// into the structures streamed to clients.
package diagnostics

import (
	"cmp"
	"encoding/json"

	"srcweb/internal/span"
)

// Level is the severity of a diagnostic.
type Level string

const (
	LevelICE         Level = "error: internal compiler error"
	LevelError       Level = "error"
	LevelWarning     Level = "warning"
	LevelNote        Level = "note"
	LevelHelp        Level = "help"
	LevelFailureNote Level = "failure-note"
	LevelUnknown     Level = "unknown"
)

func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch lv := Level(s); lv {
	case LevelICE, LevelError, LevelWarning, LevelNote, LevelHelp, LevelFailureNote:
		*l = lv
	default:
		*l = LevelUnknown
	}
	return nil
}

// IsError reports whether the level fails the build.
func (l Level) IsError() bool {
	return l == LevelError || l == LevelICE
}

// Diagnostic is a lowered compiler diagnostic.
type Diagnostic struct {
	ID uint32 `json:"id"`
	// Message is the markup-expanded HTML message; RawMessage the original text.
	Message    string        `json:"message"`
	RawMessage string        `json:"raw_message"`
	Code       *Code         `json:"code,omitempty"`
	Level      Level         `json:"level"`
	Spans      []*Span       `json:"spans"`
	Children   []*Diagnostic `json:"children"`
	// Rendered is the compiler's own terminal rendering, when provided.
	Rendered string `json:"rendered,omitempty"`
}

// Code is an error code such as E0308 and its long explanation.
type Code struct {
	Code        string  `json:"code"`
	Explanation *string `json:"explanation"`
}

// Span is a lowered diagnostic span.
type Span struct {
	ID        uint32 `json:"id"`
	File      string `json:"file_name"`
	ByteStart uint32 `json:"byte_start"`
	ByteEnd   uint32 `json:"byte_end"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	ColStart  int    `json:"column_start"`
	ColEnd    int    `json:"column_end"`
	IsPrimary bool   `json:"is_primary"`
	// Text holds one HTML line per source line, highlighted range wrapped.
	Text      []string `json:"text"`
	PlainText string   `json:"plain_text"`
	Label     string   `json:"label"`
}

// Location returns the span as a span.Span.
func (s *Span) Location() span.Span {
	return span.New(s.File, s.LineStart, s.ColStart, s.LineEnd, s.ColEnd)
}

// CompareSpans orders spans by location, breaking ties by id so sorting is
// deterministic.
func CompareSpans(a, b *Span) int {
	if c := span.Compare(a.Location(), b.Location()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// IsClose reports whether next, which sorts after s, belongs in the same
// snippet: same file and the line ranges overlap or are at most maxLines apart.
func (s *Span) IsClose(next *Span, maxLines int) bool {
	if s.File != next.File {
		return false
	}
	if next.LineStart <= s.LineEnd {
		return true
	}
	return next.LineStart-s.LineEnd <= maxLines
}

// Walk calls fn for d and every descendant, parents before children.
func (d *Diagnostic) Walk(fn func(*Diagnostic)) {
	fn(d)
	for _, c := range d.Children {
		c.Walk(fn)
	}
}
