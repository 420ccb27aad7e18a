package highlight

import (
	"context"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"srcweb/internal/analysis"
	"srcweb/internal/span"
)

// Lookup answers the per-identifier questions the renderer asks of the
// analysis index. *analysis.Host satisfies it.
type Lookup interface {
	Title(sp span.Span) (string, bool)
	GotoDef(sp span.Span) (span.Span, bool)
	ClassID(sp span.Span) (analysis.DefID, bool)
}

// Renderer turns source files into highlighted HTML lines.
type Renderer struct {
	Classifier Classifier
	// ProjectDir is stripped from link targets so links are project relative.
	ProjectDir string
}

// NewRenderer returns a renderer using the default classifier for this build.
func NewRenderer(projectDir string) *Renderer {
	return &Renderer{Classifier: DefaultClassifier(), ProjectDir: projectDir}
}

// Render returns one HTML line per source line of src. path must be the
// same absolute path the analysis index uses for the file. lookup may be
// nil, in which case identifiers are styled but not annotated.
func (r *Renderer) Render(ctx context.Context, path string, src []byte, lookup Lookup) ([]string, error) {
	toks, err := r.Classifier.Classify(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", path, err)
	}

	w := lineWriter{}
	pos := position{row: 1, col: 1}
	off := 0
	for _, t := range toks {
		if t.Start < off || t.End > len(src) || t.End <= t.Start {
			continue
		}
		w.write(src[off:t.Start], "")
		pos = pos.advance(src[off:t.Start])

		end := pos.advance(src[t.Start:t.End])
		open := r.openTag(path, t.Class, span.New(path, pos.row, pos.col, end.row, end.col), lookup)
		w.write(src[t.Start:t.End], open)

		pos = end
		off = t.End
	}
	w.write(src[off:], "")
	return w.finish(len(src) > 0 && src[len(src)-1] == '\n'), nil
}

func (r *Renderer) openTag(path string, class Class, sp span.Span, lookup Lookup) string {
	var b strings.Builder
	b.WriteString("<span class='")
	b.WriteString(string(class))
	if lookup == nil || (class != ClassIdent && class != ClassPreludeType && class != ClassSelf) {
		b.WriteString("'>")
		return b.String()
	}

	var link string
	if def, ok := lookup.GotoDef(sp); ok && def != sp {
		link = r.link(def)
	}
	if id, ok := lookup.ClassID(sp); ok {
		fmt.Fprintf(&b, " class_id class_id_%s", id)
		if link == "" {
			link = "search:" + id.String()
		}
	}
	if link != "" && !strings.HasPrefix(link, "search:") {
		b.WriteString(" src_link")
	}
	b.WriteString("'")
	if title, ok := lookup.Title(sp); ok && title != "" {
		b.WriteString(" title='")
		b.WriteString(html.EscapeString(title))
		b.WriteString("'")
	}
	if link != "" {
		b.WriteString(" link='")
		b.WriteString(html.EscapeString(link))
		b.WriteString("'")
	}
	b.WriteString(">")
	return b.String()
}

// link formats file:line_start:col_start:line_end:col_end.
func (r *Renderer) link(sp span.Span) string {
	file := sp.File
	if r.ProjectDir != "" {
		if rel, err := filepath.Rel(r.ProjectDir, file); err == nil && !strings.HasPrefix(rel, "..") {
			file = rel
		}
	}
	return fmt.Sprintf("%s:%d:%d:%d:%d", file, sp.RowStart, sp.ColStart, sp.RowEnd, sp.ColEnd)
}

// position is a 1-based row and character column.
type position struct {
	row, col int
}

func (p position) advance(b []byte) position {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r == '\n' {
			p.row++
			p.col = 1
			continue
		}
		p.col++
	}
	return p
}

// lineWriter accumulates HTML, splitting multi-line tokens so every output
// line has balanced tags.
type lineWriter struct {
	lines []string
	cur   strings.Builder
}

func (w *lineWriter) write(text []byte, open string) {
	for i, seg := range strings.Split(string(text), "\n") {
		if i > 0 {
			w.lines = append(w.lines, w.cur.String())
			w.cur.Reset()
		}
		seg = strings.TrimSuffix(seg, "\r")
		if seg == "" {
			continue
		}
		if open == "" {
			w.cur.WriteString(html.EscapeString(seg))
			continue
		}
		w.cur.WriteString(open)
		w.cur.WriteString(html.EscapeString(seg))
		w.cur.WriteString("</span>")
	}
}

func (w *lineWriter) finish(trailingNewline bool) []string {
	if !trailingNewline || w.cur.Len() > 0 {
		w.lines = append(w.lines, w.cur.String())
	}
	return w.lines
}
