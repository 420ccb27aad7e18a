package diagnostics

import (
	"strings"
)

// IssueURL is the base of links generated for "#123" issue references.
const IssueURL = "https://github.com/rust-lang/rust/issues/"

type markupState int

const (
	stateOuter markupState = iota
	stateBacktick
	stateNewHash
	stateAttr
	stateIssue
	stateMaybeURL // seen "<", not yet sure it is a URL
	stateURL      // seen "<http"
)

// Codify turns compiler message text into HTML:
//
//	`x`      -> `<code class="code">x</code>`
//	#123     -> issue link
//	#[attr]  -> <code class="attr">#[attr]</code>
//	<http…>  -> &lt;<a class="link" …>…</a>&gt;
//
// Everything else is HTML-escaped. A construct still open at the end of the
// input is emitted as the literal (escaped) text that opened it.
func Codify(source string) string {
	var out, buf strings.Builder
	state := stateOuter

	for _, c := range source {
		switch state {
		case stateOuter:
			switch c {
			case '`':
				state = stateBacktick
			case '#':
				state = stateNewHash
			case '<':
				state = stateMaybeURL
			default:
				escapeRune(&out, c)
			}

		case stateNewHash:
			switch {
			case c == '[':
				state = stateAttr
			case isDigit(c):
				buf.WriteRune(c)
				state = stateIssue
			default:
				out.WriteByte('#')
				// The next char may itself open a construct.
				state = stateOuter
				switch c {
				case '`':
					state = stateBacktick
				case '#':
					state = stateNewHash
				case '<':
					state = stateMaybeURL
				default:
					escapeRune(&out, c)
				}
			}

		case stateIssue:
			if isDigit(c) {
				buf.WriteRune(c)
				continue
			}
			writeIssueLink(&out, buf.String())
			escapeRune(&out, c)
			buf.Reset()
			state = stateOuter

		case stateBacktick:
			if c != '`' {
				escapeRune(&buf, c)
				continue
			}
			out.WriteString("`<code class=\"code\">")
			out.WriteString(buf.String())
			out.WriteString("</code>`")
			buf.Reset()
			state = stateOuter

		case stateAttr:
			if c != ']' {
				escapeRune(&buf, c)
				continue
			}
			out.WriteString("<code class=\"attr\">#[")
			out.WriteString(buf.String())
			out.WriteString("]</code>")
			buf.Reset()
			state = stateOuter

		case stateMaybeURL:
			if c == '>' {
				out.WriteString("&lt;")
				out.WriteString(buf.String())
				out.WriteString("&gt;")
				buf.Reset()
				state = stateOuter
				continue
			}
			escapeRune(&buf, c)
			if buf.String() == "http" {
				state = stateURL
			}

		case stateURL:
			if c != '>' {
				escapeRune(&buf, c)
				continue
			}
			url := buf.String()
			out.WriteString("&lt;<a class=\"link\" href=\"")
			out.WriteString(url)
			out.WriteString("\" target=\"_blank\">")
			out.WriteString(url)
			out.WriteString("</a>&gt;")
			buf.Reset()
			state = stateOuter
		}
	}

	switch state {
	case stateBacktick:
		out.WriteByte('`')
		out.WriteString(buf.String())
	case stateAttr:
		out.WriteString("#[")
		out.WriteString(buf.String())
	case stateNewHash:
		out.WriteByte('#')
	case stateIssue:
		writeIssueLink(&out, buf.String())
	case stateMaybeURL, stateURL:
		out.WriteString("&lt;")
		out.WriteString(buf.String())
	}
	return out.String()
}

func writeIssueLink(out *strings.Builder, number string) {
	out.WriteString("<a class=\"issue_link\" href=\"")
	out.WriteString(IssueURL)
	out.WriteString(number)
	out.WriteString("\" target=\"_blank\">#")
	out.WriteString(number)
	out.WriteString("</a>")
}

func escapeRune(b *strings.Builder, c rune) {
	switch c {
	case '>':
		b.WriteString("&gt;")
	case '<':
		b.WriteString("&lt;")
	case '&':
		b.WriteString("&amp;")
	case '\'':
		b.WriteString("&#39;")
	case '"':
		b.WriteString("&quot;")
	case '\n':
		b.WriteString("<br />")
	default:
		b.WriteRune(c)
	}
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }
