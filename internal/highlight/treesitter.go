//go:build cgo

package highlight

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// TreeSitter classifies tokens by walking a tree-sitter Rust parse tree.
// Unlike Lexer it knows which words are keywords in context, and it
// recognizes macro invocations by their syntax.
type TreeSitter struct{}

// DefaultClassifier returns the tree-sitter classifier on cgo builds.
func DefaultClassifier() Classifier {
	return TreeSitter{}
}

func (TreeSitter) Classify(ctx context.Context, src []byte) ([]Token, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	c := &tsCollector{src: src}
	c.walk(tree.RootNode())
	return c.toks, nil
}

type tsCollector struct {
	src  []byte
	toks []Token
	last int
}

func (c *tsCollector) emit(n *sitter.Node, end int, class Class) {
	start := int(n.StartByte())
	if start < c.last || end <= start {
		return
	}
	c.toks = append(c.toks, Token{Start: start, End: end, Class: class})
	c.last = end
}

// atomic node types are styled as one token without descending.
var atomic = map[string]Class{
	"line_comment":         ClassComment,
	"block_comment":        ClassComment,
	"string_literal":       ClassString,
	"raw_string_literal":   ClassString,
	"char_literal":         ClassString,
	"integer_literal":      ClassNumber,
	"float_literal":        ClassNumber,
	"boolean_literal":      ClassBool,
	"lifetime":             ClassLifetime,
	"attribute_item":       ClassAttribute,
	"inner_attribute_item": ClassAttribute,
	"primitive_type":       ClassPreludeType,
	"self":                 ClassSelf,
	"crate":                ClassSelf,
	"super":                ClassSelf,
	"mutable_specifier":    ClassKeyword,
	"?":                    ClassQuestion,
}

func (c *tsCollector) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	typ := n.Type()
	if class, ok := atomic[typ]; ok {
		c.emit(n, int(n.EndByte()), class)
		return
	}

	if typ == "macro_invocation" {
		if m := n.ChildByFieldName("macro"); m != nil {
			// Include the "!" that follows the macro path.
			end := int(m.EndByte())
			if end < len(c.src) && c.src[end] == '!' {
				end++
			}
			c.emit(m, end, ClassMacro)
		}
	}

	count := int(n.ChildCount())
	if count == 0 {
		c.leaf(n, typ)
		return
	}
	for i := range count {
		c.walk(n.Child(i))
	}
}

func (c *tsCollector) leaf(n *sitter.Node, typ string) {
	end := int(n.EndByte())
	switch typ {
	case "identifier", "type_identifier", "field_identifier", "shorthand_field_identifier", "metavariable":
		c.emit(n, end, classifyWord(n.Content(c.src)))
	default:
		if !n.IsNamed() && keywords[typ] {
			c.emit(n, end, ClassKeyword)
		}
	}
}
