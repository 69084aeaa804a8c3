// Package predicate implements the restricted expression language used for
// access rules, dropdown conditions, and trigger conditions (spec.md §4.I):
// a hand-written recursive-descent parser that yields tagged-array trees
// ([Kind, ...children]), a $NAME -> rec.NAME rewrite performed before
// tokenizing, and a rename visitor that patches only the exact identifier
// tokens of renamed entities while leaving comments, whitespace and string
// literals untouched.
package predicate

import "fmt"

// Node is a parsed tagged-array expression: Node[0] is the Kind string,
// Node[1:] are the children (each itself a Node, or a Go scalar for Const's
// single literal value). This mirrors the wire shape parse_predicate_formula
// produces directly, since the host consumes exactly this shape.
type Node []interface{}

// Kind returns the node's tag.
func (n Node) Kind() string {
	if len(n) == 0 {
		return ""
	}
	k, _ := n[0].(string)
	return k
}

func nary(kind string, children []Node) Node {
	out := make(Node, 0, len(children)+1)
	out = append(out, kind)
	for _, c := range children {
		out = append(out, c)
	}
	return out
}

func binary(kind string, left, right Node) Node { return Node{kind, left, right} }
func unary(kind string, operand Node) Node       { return Node{kind, operand} }

// Const wraps a literal number, string, bool, or nil.
func Const(v interface{}) Node { return Node{"Const", v} }

// Name wraps a bare identifier.
func Name(name string) Node { return Node{"Name", name} }

// Attr wraps attribute access: node.attrName.
func Attr(node Node, attrName string) Node { return Node{"Attr", node, attrName} }

// Call wraps a function call: callee(args...), with an optional trailing
// ['keywords', [name, value], ...] group appended to args when the source
// had keyword arguments.
func Call(callee Node, args []Node, keywords []KeywordArg) Node {
	out := Node{"Call", callee}
	for _, a := range args {
		out = append(out, a)
	}
	if len(keywords) > 0 {
		kw := Node{"keywords"}
		for _, k := range keywords {
			kw = append(kw, Node{k.Name, k.Value})
		}
		out = append(out, kw)
	}
	return out
}

// KeywordArg is one name=value pair in a Call's trailing keywords group.
type KeywordArg struct {
	Name  string
	Value Node
}

// Comment wraps a top-level expression with a single trailing line comment.
func Comment(inner Node, text string) Node { return Node{"Comment", inner, text} }

// SyntaxError reports a parse failure with a line/column offset, the way
// parse_predicate_formula's SyntaxError(..., "on line %s col %s") does.
type SyntaxError struct {
	Msg  string
	Line int
	Col  int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s on line %d col %d", e.Msg, e.Line, e.Col)
}
