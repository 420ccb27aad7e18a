// Package highlight renders Rust source as HTML lines, annotating
// identifiers with hover text and cross-reference links from the analysis
// index.
package highlight

import (
	"context"
)

// Class is a token category. Its value is the CSS class emitted.
type Class string

const (
	ClassKeyword     Class = "kw"
	ClassSelf        Class = "kw-2"
	ClassComment     Class = "comment"
	ClassString      Class = "string"
	ClassNumber      Class = "number"
	ClassLifetime    Class = "lifetime"
	ClassMacro       Class = "macro"
	ClassAttribute   Class = "attribute"
	ClassIdent       Class = "ident"
	ClassPreludeType Class = "prelude-ty"
	ClassBool        Class = "bool-val"
	ClassQuestion    Class = "question-mark"
)

// Token is a classified byte range [Start, End) of the source.
type Token struct {
	Start int
	End   int
	Class Class
}

// Classifier tokenizes source. Tokens must be sorted and must not overlap;
// bytes not covered by a token render unstyled.
type Classifier interface {
	Classify(ctx context.Context, src []byte) ([]Token, error)
}

var keywords = map[string]bool{
	"as": true, "async": true, "await": true, "break": true, "const": true, "continue": true,
	"dyn": true, "else": true, "enum": true, "extern": true, "fn": true, "for": true,
	"if": true, "impl": true, "in": true, "let": true, "loop": true, "match": true,
	"mod": true, "move": true, "mut": true, "pub": true, "ref": true, "return": true,
	"static": true, "struct": true, "trait": true, "type": true, "union": true,
	"unsafe": true, "use": true, "where": true, "while": true,
}

var selfKeywords = map[string]bool{"self": true, "Self": true, "super": true, "crate": true}

var preludeTypes = map[string]bool{
	"bool": true, "char": true, "str": true, "f32": true, "f64": true,
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true, "isize": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true, "usize": true,
	"Option": true, "Result": true, "Some": true, "None": true, "Ok": true, "Err": true,
	"String": true, "Vec": true, "Box": true,
}

// classifyWord picks the class of an identifier-like word.
func classifyWord(word string) Class {
	switch {
	case keywords[word]:
		return ClassKeyword
	case selfKeywords[word]:
		return ClassSelf
	case word == "true" || word == "false":
		return ClassBool
	case preludeTypes[word]:
		return ClassPreludeType
	default:
		return ClassIdent
	}
}
