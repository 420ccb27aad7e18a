package highlight

import (
	"context"
	"unicode"
	"unicode/utf8"
)

// Lexer is a lexical Rust classifier. It needs no parser, so it is the
// classifier used when tree-sitter is unavailable.
type Lexer struct{}

func (Lexer) Classify(ctx context.Context, src []byte) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(src) {
		if i&0xFFF == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		start := i
		c := src[i]
		switch {
		case c == '/' && peek(src, i+1) == '/':
			i = lineEnd(src, i)
			toks = append(toks, Token{start, i, ClassComment})

		case c == '/' && peek(src, i+1) == '*':
			i = blockCommentEnd(src, i)
			toks = append(toks, Token{start, i, ClassComment})

		case c == '"':
			i = quotedEnd(src, i+1, '"')
			toks = append(toks, Token{start, i, ClassString})

		case (c == 'r' || c == 'b') && rawOrByteString(src, i) > i:
			i = rawOrByteString(src, i)
			toks = append(toks, Token{start, i, ClassString})

		case c == '\'':
			end, class := quoteOrLifetime(src, i)
			i = end
			if class != "" {
				toks = append(toks, Token{start, i, class})
			}

		case c == '#' && (peek(src, i+1) == '[' || (peek(src, i+1) == '!' && peek(src, i+2) == '[')):
			i = attributeEnd(src, i)
			toks = append(toks, Token{start, i, ClassAttribute})

		case c >= '0' && c <= '9':
			i = numberEnd(src, i)
			toks = append(toks, Token{start, i, ClassNumber})

		case c == '?':
			i++
			toks = append(toks, Token{start, i, ClassQuestion})

		case isIdentStart(src, i):
			i = identEnd(src, i)
			word := string(src[start:i])
			if class := classifyWord(word); class != ClassIdent {
				toks = append(toks, Token{start, i, class})
				continue
			}
			if peek(src, i) == '!' && peek(src, i+1) != '=' {
				i++
				toks = append(toks, Token{start, i, ClassMacro})
				continue
			}
			toks = append(toks, Token{start, i, ClassIdent})

		default:
			_, size := utf8.DecodeRune(src[i:])
			i += size
		}
	}
	return toks, nil
}

func peek(src []byte, i int) byte {
	if i < len(src) {
		return src[i]
	}
	return 0
}

func lineEnd(src []byte, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	return i
}

// blockCommentEnd handles nested comments; an unterminated comment runs to EOF.
func blockCommentEnd(src []byte, i int) int {
	depth := 0
	for i < len(src) {
		switch {
		case src[i] == '/' && peek(src, i+1) == '*':
			depth++
			i += 2
		case src[i] == '*' && peek(src, i+1) == '/':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return i
}

// quotedEnd scans past the closing quote, honouring backslash escapes.
func quotedEnd(src []byte, i int, quote byte) int {
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
		case quote:
			return i + 1
		default:
			i++
		}
	}
	return len(src)
}

// rawOrByteString returns the end of a byte, byte-char or raw string literal
// starting at i, or i when there is none.
func rawOrByteString(src []byte, i int) int {
	j := i
	if src[j] == 'b' {
		j++
		switch peek(src, j) {
		case '"':
			return quotedEnd(src, j+1, '"')
		case '\'':
			return quotedEnd(src, j+1, '\'')
		case 'r':
		default:
			return i
		}
	}
	if peek(src, j) != 'r' {
		return i
	}
	j++
	hashes := 0
	for peek(src, j) == '#' {
		hashes++
		j++
	}
	if peek(src, j) != '"' {
		return i
	}
	j++
	for j < len(src) {
		if src[j] == '"' {
			k := j + 1
			n := 0
			for n < hashes && peek(src, k) == '#' {
				n++
				k++
			}
			if n == hashes {
				return k
			}
		}
		j++
	}
	return len(src)
}

// quoteOrLifetime distinguishes 'c' char literals from 'a lifetimes.
func quoteOrLifetime(src []byte, i int) (int, Class) {
	if peek(src, i+1) == '\\' {
		return quotedEnd(src, i+1, '\''), ClassString
	}
	if i+1 >= len(src) {
		return i + 1, ""
	}
	_, size := utf8.DecodeRune(src[i+1:])
	if peek(src, i+1+size) == '\'' {
		return i + 2 + size, ClassString
	}
	if isIdentStart(src, i+1) {
		return identEnd(src, i+1), ClassLifetime
	}
	return i + 1, ""
}

func attributeEnd(src []byte, i int) int {
	depth := 0
	for i < len(src) {
		switch src[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		case '"':
			i = quotedEnd(src, i+1, '"')
			continue
		}
		i++
	}
	return i
}

func numberEnd(src []byte, i int) int {
	for i < len(src) {
		c := src[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
			i++
		case c == '.' && peek(src, i+1) >= '0' && peek(src, i+1) <= '9':
			i++
		default:
			return i
		}
	}
	return i
}

func isIdentStart(src []byte, i int) bool {
	if i >= len(src) {
		return false
	}
	r, _ := utf8.DecodeRune(src[i:])
	return r == '_' || unicode.IsLetter(r)
}

func identEnd(src []byte, i int) int {
	for i < len(src) {
		r, size := utf8.DecodeRune(src[i:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return i
		}
		i += size
	}
	return i
}
