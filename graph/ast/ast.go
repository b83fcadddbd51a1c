// Package ast defines the immutable abstract syntax tree of the graph query
// language.
//
// File organization:
//   - ast.go: positions, query, clauses and pattern elements
//   - expressions.go: expression node types
//   - format.go: canonical text rendering
//   - rewrite.go: traversal and copy-on-write rewriting
//   - fingerprint.go: deterministic query fingerprints
//
// No node is ever mutated after construction. Rewrites build new values and
// share unchanged subtrees, so any two references to a tree observe the same
// value for as long as they are held.
package ast

import "fmt"

// Position locates a node in the source the AST was produced from.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Pos returns the position itself; it is promoted to every node type.
func (p Position) Pos() Position { return p }

// IsKnown reports whether the producer supplied a location.
func (p Position) IsKnown() bool { return p.Line > 0 || p.Offset > 0 }

// Location renders the position for error messages.
func (p Position) Location() string {
	if p.Line > 0 {
		return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
	}
	return fmt.Sprintf("offset %d", p.Offset)
}

// Node is implemented by every AST node.
type Node interface {
	Pos() Position
	String() string
}

// Clause is a top-level query clause.
type Clause interface {
	Node
	clause()
}

// PatternElement is either a *NodePattern or a *RelationshipPattern.
type PatternElement interface {
	Node
	patternElement()
}

// Query is the root of the tree.
type Query struct {
	Position
	Clauses []Clause
}

// Match is a MATCH or OPTIONAL MATCH clause.
type Match struct {
	Position
	Optional bool
	Patterns []*PatternPart
	Where    Expr // nil when absent
}

// With projects variables into a new scope.
type With struct {
	Position
	Distinct bool
	Items    []*ReturnItem
	Where    Expr
}

// Return is the final projection.
type Return struct {
	Position
	Distinct bool
	Items    []*ReturnItem
	OrderBy  []*SortItem
	Skip     Expr
	Limit    Expr
}

func (*Match) clause()  {}
func (*With) clause()   {}
func (*Return) clause() {}

// ReturnItem is a projected expression with an optional alias.
type ReturnItem struct {
	Position
	Expr  Expr
	Alias *Variable
}

// Name returns the name the item is visible under in the next scope.
func (r *ReturnItem) Name() string {
	if r.Alias != nil {
		return r.Alias.Name
	}
	if v, ok := r.Expr.(*Variable); ok {
		return v.Name
	}
	return r.Expr.String()
}

// SortItem is one ORDER BY key.
type SortItem struct {
	Position
	Expr       Expr
	Descending bool
}

// PatternPart is a chain of alternating node and relationship patterns,
// always starting and ending with a node.
type PatternPart struct {
	Position
	Elements []PatternElement
}

// Nodes returns the node patterns of the chain in order.
func (p *PatternPart) Nodes() []*NodePattern {
	var nodes []*NodePattern
	for _, e := range p.Elements {
		if n, ok := e.(*NodePattern); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Relationships returns the relationship patterns of the chain in order.
func (p *PatternPart) Relationships() []*RelationshipPattern {
	var rels []*RelationshipPattern
	for _, e := range p.Elements {
		if r, ok := e.(*RelationshipPattern); ok {
			rels = append(rels, r)
		}
	}
	return rels
}

// NodePattern matches a single node: (n:Label {prop: value}).
type NodePattern struct {
	Position
	Variable   *Variable // nil for anonymous nodes
	Labels     []string
	Properties *MapLiteral // nil when absent
}

// Direction of a relationship pattern.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	default:
		return "both"
	}
}

// PathLength bounds a variable-length relationship. Max < 0 means unbounded.
type PathLength struct {
	Min int
	Max int
}

// RelationshipPattern matches an edge: -[r:TYPE {prop: value}]->.
type RelationshipPattern struct {
	Position
	Variable   *Variable
	Types      []string
	Direction  Direction
	Properties *MapLiteral
	Length     *PathLength // nil for single-hop relationships
}

func (*NodePattern) patternElement()         {}
func (*RelationshipPattern) patternElement() {}

// VariableName returns the element's variable name or "" when anonymous.
func VariableName(e PatternElement) string {
	switch el := e.(type) {
	case *NodePattern:
		if el.Variable != nil {
			return el.Variable.Name
		}
	case *RelationshipPattern:
		if el.Variable != nil {
			return el.Variable.Name
		}
	}
	return ""
}
