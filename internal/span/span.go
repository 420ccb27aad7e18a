// Package span defines source locations as emitted by the Rust compiler.
package span

import (
	"cmp"
	"fmt"
)

// Span is a source range. Rows and columns are 1-based as the compiler emits
// them; ColEnd is exclusive. Span is comparable and used as a map key.
type Span struct {
	File     string `json:"file_name"`
	RowStart int    `json:"line_start"`
	ColStart int    `json:"column_start"`
	RowEnd   int    `json:"line_end"`
	ColEnd   int    `json:"column_end"`
}

// New builds a Span.
func New(file string, rowStart, colStart, rowEnd, colEnd int) Span {
	return Span{File: file, RowStart: rowStart, ColStart: colStart, RowEnd: rowEnd, ColEnd: colEnd}
}

// Compare orders spans by file, then start row and column, then end row and column.
func Compare(a, b Span) int {
	if c := cmp.Compare(a.File, b.File); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RowStart, b.RowStart); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ColStart, b.ColStart); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RowEnd, b.RowEnd); c != 0 {
		return c
	}
	return cmp.Compare(a.ColEnd, b.ColEnd)
}

// Less reports whether a sorts before b.
func Less(a, b Span) bool { return Compare(a, b) < 0 }

// Contains reports whether the position (row, col) lies inside s.
func (s Span) Contains(row, col int) bool {
	if row < s.RowStart || row > s.RowEnd {
		return false
	}
	if row == s.RowStart && col < s.ColStart {
		return false
	}
	if row == s.RowEnd && col >= s.ColEnd {
		return false
	}
	return true
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File, s.RowStart, s.ColStart, s.RowEnd, s.ColEnd)
}
