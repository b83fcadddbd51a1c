// Package semantics holds the static type information that compilation
// phases infer about a query: the Semantic Table and the label/relationship
// type sets known for each pattern variable.
package semantics

import (
	"fmt"
	"sort"

	"github.com/wbrown/janus-graph/graph/ast"
)

// Type is the static type of a variable or expression.
type Type uint8

const (
	Any Type = iota
	Node
	Relationship
	Integer
	Float
	String
	Boolean
	List
	Map
	Null
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case Node:
		return "Node"
	case Relationship:
		return "Relationship"
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	case String:
		return "String"
	case Boolean:
		return "Boolean"
	case List:
		return "List"
	case Map:
		return "Map"
	case Null:
		return "Null"
	default:
		return "Any"
	}
}

// IsEntity reports whether values of the type are graph entities.
func (t Type) IsEntity() bool { return t == Node || t == Relationship }

// IsNumeric reports whether values of the type are numbers.
func (t Type) IsNumeric() bool { return t == Integer || t == Float }

// Compatible reports whether a value of type a may stand where b is expected.
// Any and Null are compatible with every type; integers widen to floats.
func Compatible(a, b Type) bool {
	if a == Any || b == Any || a == Null || b == Null || a == b {
		return true
	}
	return a.IsNumeric() && b.IsNumeric()
}

// VariableInfo is what the table knows about one variable.
type VariableInfo struct {
	Name     string
	Type     Type
	Declared ast.Position
}

// ConflictError reports an attempt to change an established type fact.
type ConflictError struct {
	Subject  string
	Existing Type
	Proposed Type
	Pos      ast.Position
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already typed %s, cannot also be %s", e.Subject, e.Existing, e.Proposed)
}

// exprKey identifies an expression occurrence by its canonical text and
// location, so renamed or re-created nodes with the same identity map to the
// same fact.
type exprKey struct {
	text string
	pos  ast.Position
}

// Table is the Semantic Table. Every update returns a new table; facts are
// only ever added or refined from Any, never removed or changed. Once frozen
// at the end of the pipeline the table rejects further updates.
type Table struct {
	vars   map[string]VariableInfo
	exprs  map[exprKey]Type
	frozen bool
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		vars:  make(map[string]VariableInfo),
		exprs: make(map[exprKey]Type),
	}
}

func (t *Table) clone() *Table {
	if t.frozen {
		panic("semantics: update of frozen semantic table")
	}
	c := &Table{
		vars:  make(map[string]VariableInfo, len(t.vars)+1),
		exprs: make(map[exprKey]Type, len(t.exprs)+1),
	}
	for k, v := range t.vars {
		c.vars[k] = v
	}
	for k, v := range t.exprs {
		c.exprs[k] = v
	}
	return c
}

// WithVariable records the type of a variable. Refining Any to a concrete
// type is allowed; contradicting an established type is a *ConflictError.
func (t *Table) WithVariable(name string, typ Type, pos ast.Position) (*Table, error) {
	if existing, ok := t.vars[name]; ok {
		switch {
		case existing.Type == typ || typ == Any:
			return t, nil
		case existing.Type != Any:
			return nil, &ConflictError{Subject: name, Existing: existing.Type, Proposed: typ, Pos: pos}
		}
		c := t.clone()
		existing.Type = typ
		c.vars[name] = existing
		return c, nil
	}
	c := t.clone()
	c.vars[name] = VariableInfo{Name: name, Type: typ, Declared: pos}
	return c, nil
}

// WithExpression records the inferred type of an expression occurrence.
func (t *Table) WithExpression(e ast.Expr, typ Type) (*Table, error) {
	key := exprKey{text: e.String(), pos: e.Pos()}
	if existing, ok := t.exprs[key]; ok {
		switch {
		case existing == typ || typ == Any:
			return t, nil
		case existing != Any:
			return nil, &ConflictError{Subject: e.String(), Existing: existing, Proposed: typ, Pos: e.Pos()}
		}
	}
	c := t.clone()
	c.exprs[key] = typ
	return c, nil
}

// Variable returns the recorded information for name.
func (t *Table) Variable(name string) (VariableInfo, bool) {
	info, ok := t.vars[name]
	return info, ok
}

// Variables returns all known variables sorted by name.
func (t *Table) Variables() []VariableInfo {
	out := make([]VariableInfo, 0, len(t.vars))
	for _, v := range t.vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TypeOf returns the static type of e. Literal types are intrinsic;
// variables and recorded expressions come from the table; everything else
// is Any.
func (t *Table) TypeOf(e ast.Expr) Type {
	switch v := e.(type) {
	case *ast.IntegerLiteral:
		return Integer
	case *ast.FloatLiteral:
		return Float
	case *ast.StringLiteral:
		return String
	case *ast.BoolLiteral:
		return Boolean
	case *ast.NullLiteral:
		return Null
	case *ast.ListLiteral:
		return List
	case *ast.MapLiteral:
		return Map
	case *ast.Variable:
		if info, ok := t.vars[v.Name]; ok {
			return info.Type
		}
		return Any
	case *ast.Comparison, *ast.StringMatch, *ast.In, *ast.IsNull, *ast.IsNotNull,
		*ast.HasLabels, *ast.HasTypes, *ast.Not, *ast.And, *ast.Or, *ast.Ands, *ast.Ors:
		return Boolean
	}
	if typ, ok := t.exprs[exprKey{text: e.String(), pos: e.Pos()}]; ok {
		return typ
	}
	return Any
}

// Len returns the number of facts in the table.
func (t *Table) Len() int { return len(t.vars) + len(t.exprs) }

// Freeze returns a frozen copy of the table.
func (t *Table) Freeze() *Table {
	if t.frozen {
		return t
	}
	c := t.clone()
	c.frozen = true
	return c
}

// Frozen reports whether the table has been frozen.
func (t *Table) Frozen() bool { return t.frozen }

// Includes reports whether every fact of other is also present in t with the
// same or a more specific type. It is used to check that phases only grow
// the table.
func (t *Table) Includes(other *Table) bool {
	for name, info := range other.vars {
		mine, ok := t.vars[name]
		if !ok || (info.Type != Any && mine.Type != info.Type) {
			return false
		}
	}
	for key, typ := range other.exprs {
		mine, ok := t.exprs[key]
		if !ok || (typ != Any && mine != typ) {
			return false
		}
	}
	return true
}
