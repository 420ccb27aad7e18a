package diagnostics

import (
	"encoding/json"
	"html"
	"strings"

	"srcweb/internal/errors"
)

// Counter hands out diagnostic and span ids. The first id is 1. One Counter
// is shared by every line of a build so ids never repeat within it.
type Counter struct {
	n uint32
}

func (c *Counter) Next() uint32 {
	c.n++
	return c.n
}

// LineKind classifies one line of compiler output.
type LineKind int

const (
	// KindBlank lines produce nothing.
	KindBlank LineKind = iota
	KindDiagnostic
	// KindMessage is plain text such as cargo's "Compiling foo" progress.
	KindMessage
	// KindSoftError is a line that looked like JSON but did not decode.
	KindSoftError
)

func (k LineKind) String() string {
	switch k {
	case KindDiagnostic:
		return "diagnostic"
	case KindMessage:
		return "message"
	case KindSoftError:
		return "soft_error"
	default:
		return "blank"
	}
}

// ParsedLine is the result of LowerLine.
type ParsedLine struct {
	Kind       LineKind
	Diagnostic *Diagnostic
	Message    string
	Err        error
}

type rawDiagnostic struct {
	Message  string           `json:"message"`
	Code     *Code            `json:"code"`
	Level    Level            `json:"level"`
	Spans    []rawSpan        `json:"spans"`
	Children []*rawDiagnostic `json:"children"`
	Rendered *string          `json:"rendered"`
}

type rawSpan struct {
	FileName    string        `json:"file_name"`
	ByteStart   uint32        `json:"byte_start"`
	ByteEnd     uint32        `json:"byte_end"`
	LineStart   int           `json:"line_start"`
	LineEnd     int           `json:"line_end"`
	ColumnStart int           `json:"column_start"`
	ColumnEnd   int           `json:"column_end"`
	IsPrimary   bool          `json:"is_primary"`
	Text        []rawSpanLine `json:"text"`
	Label       *string       `json:"label"`
}

type rawSpanLine struct {
	Text           string `json:"text"`
	HighlightStart int    `json:"highlight_start"` // 1-based character offset
	HighlightEnd   int    `json:"highlight_end"`
}

// envelope detects cargo's --message-format=json wrapper and rustc's
// artifact notifications.
type envelope struct {
	Reason      string          `json:"reason"`
	Message     json.RawMessage `json:"message"`
	MessageType string          `json:"$message_type"`
}

// LowerLine classifies and lowers one line of compiler stderr.
func LowerLine(line string, counter *Counter) ParsedLine {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return ParsedLine{Kind: KindBlank}
	}
	if !strings.HasPrefix(line, "{") {
		return ParsedLine{Kind: KindMessage, Message: line}
	}

	payload := []byte(line)
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return softError(line, err)
	}
	if env.Reason != "" {
		if env.Reason != "compiler-message" || len(env.Message) == 0 {
			return ParsedLine{Kind: KindBlank}
		}
		payload = env.Message
	} else if env.MessageType != "" && env.MessageType != "diagnostic" {
		return ParsedLine{Kind: KindBlank}
	}

	var raw rawDiagnostic
	if err := json.Unmarshal(payload, &raw); err != nil {
		return softError(line, err)
	}
	if raw.Message == "" && raw.Level == "" {
		return softError(line, nil)
	}
	return ParsedLine{Kind: KindDiagnostic, Diagnostic: raw.lower(counter)}
}

func softError(line string, cause error) ParsedLine {
	if len(line) > 200 {
		line = line[:200] + "…"
	}
	return ParsedLine{
		Kind: KindSoftError,
		Err:  errors.New(errors.ParseError, "malformed compiler output: "+line, cause),
	}
}

// lower assigns ids in pre-order: this diagnostic, its spans, then children.
func (r *rawDiagnostic) lower(counter *Counter) *Diagnostic {
	d := &Diagnostic{
		ID:         counter.Next(),
		Message:    Codify(r.Message),
		RawMessage: r.Message,
		Code:       r.Code,
		Level:      r.Level,
		Spans:      make([]*Span, 0, len(r.Spans)),
		Children:   make([]*Diagnostic, 0, len(r.Children)),
	}
	if d.Level == "" {
		d.Level = LevelUnknown
	}
	if r.Rendered != nil {
		d.Rendered = *r.Rendered
	}
	for i := range r.Spans {
		d.Spans = append(d.Spans, r.Spans[i].lower(counter))
	}
	for _, child := range r.Children {
		if child != nil {
			d.Children = append(d.Children, child.lower(counter))
		}
	}
	return d
}

func (r *rawSpan) lower(counter *Counter) *Span {
	colStart, colEnd := normalizeColumns(r.LineStart, r.LineEnd, r.ColumnStart, r.ColumnEnd)

	var plain strings.Builder
	text := make([]string, 0, len(r.Text))
	for _, l := range r.Text {
		plain.WriteString(l.Text)
		plain.WriteByte('\n')
		text = append(text, l.lower())
	}

	label := ""
	if r.Label != nil {
		label = *r.Label
	}

	return &Span{
		ID:        counter.Next(),
		File:      r.FileName,
		ByteStart: r.ByteStart,
		ByteEnd:   r.ByteEnd,
		LineStart: r.LineStart,
		LineEnd:   r.LineEnd,
		ColStart:  colStart,
		ColEnd:    colEnd,
		IsPrimary: r.IsPrimary,
		Text:      text,
		PlainText: plain.String(),
		Label:     label,
	}
}

// normalizeColumns widens a zero-width single-line span to one column,
// backwards unless it sits at column 0.
func normalizeColumns(lineStart, lineEnd, colStart, colEnd int) (int, int) {
	if lineStart == lineEnd && colStart == colEnd {
		if colStart == 0 {
			colEnd = 1
		} else {
			colStart--
		}
	}
	return colStart, colEnd
}

// lower renders the line as escaped HTML with the highlighted characters
// wrapped in a src_highlight span.
func (l rawSpanLine) lower() string {
	if l.HighlightEnd < l.HighlightStart || l.Text == "" {
		return html.EscapeString(l.Text)
	}
	start, end := l.HighlightStart, l.HighlightEnd
	if start > 0 {
		start--
		end--
		if start == end {
			if start == 0 {
				end++
			} else {
				start--
			}
		}
	}

	runes := []rune(l.Text)
	start = min(max(start, 0), len(runes))
	end = min(max(end, start), len(runes))

	var b strings.Builder
	b.WriteString(html.EscapeString(string(runes[:start])))
	b.WriteString(`<span class="src_highlight">`)
	b.WriteString(html.EscapeString(string(runes[start:end])))
	b.WriteString("</span>")
	b.WriteString(html.EscapeString(string(runes[end:])))
	return b.String()
}
