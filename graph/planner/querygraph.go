package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wbrown/janus-graph/graph/ast"
)

// PatternNode is a node variable of the query graph.
type PatternNode struct {
	Name   string
	Labels []string
	Pos    ast.Position
}

// PatternRelationship is a relationship variable connecting two nodes.
type PatternRelationship struct {
	Name      string
	Left      string
	Right     string
	Direction ast.Direction
	Types     []string
	Length    *ast.PathLength
	Pos       ast.Position
}

// Hops is the number of hops estimated for the relationship: one for a
// single-hop pattern, otherwise the minimum length (at least one).
func (r *PatternRelationship) Hops() int {
	if r.Length == nil || r.Length.Min < 1 {
		return 1
	}
	return r.Length.Min
}

// Selection is a WHERE conjunct together with the variables it reads.
type Selection struct {
	Predicate    ast.Expr
	Dependencies []string
}

// QueryGraph is the pattern graph of a query: the nodes and relationships of
// its MATCH clauses plus the predicates filtering them. OPTIONAL MATCH
// clauses become separate graphs that never reduce the row count.
type QueryGraph struct {
	Nodes         []*PatternNode
	Relationships []*PatternRelationship
	Selections    []Selection
	Optional      []*QueryGraph

	nodeIndex map[string]int
	relIndex  map[string]int
}

// NewQueryGraph returns an empty graph.
func NewQueryGraph() *QueryGraph {
	return &QueryGraph{nodeIndex: make(map[string]int), relIndex: make(map[string]int)}
}

// BuildQueryGraph extracts the query graph from q. Anonymous elements are
// expected to be named already; any that are not get positional names.
func BuildQueryGraph(q *ast.Query) *QueryGraph {
	g := NewQueryGraph()
	anon := 0
	for _, c := range q.Clauses {
		switch cl := c.(type) {
		case *ast.Match:
			target := g
			if cl.Optional {
				target = NewQueryGraph()
				g.Optional = append(g.Optional, target)
			}
			for _, part := range cl.Patterns {
				target.addPattern(part, &anon)
			}
			for _, p := range ast.Conjuncts(cl.Where) {
				target.AddSelection(p)
			}
		case *ast.With:
			for _, p := range ast.Conjuncts(cl.Where) {
				g.AddSelection(p)
			}
		}
	}
	return g
}

func (g *QueryGraph) addPattern(part *ast.PatternPart, anon *int) {
	name := func(e ast.PatternElement) string {
		if n := ast.VariableName(e); n != "" {
			return n
		}
		*anon++
		return fmt.Sprintf("  unnamed_%d", *anon)
	}
	names := make([]string, len(part.Elements))
	for i, e := range part.Elements {
		names[i] = name(e)
	}
	for i, e := range part.Elements {
		switch el := e.(type) {
		case *ast.NodePattern:
			g.AddNode(names[i], el.Pos(), el.Labels...)
			g.addInlineProperties(names[i], el.Properties)
		case *ast.RelationshipPattern:
			if i == 0 || i == len(part.Elements)-1 {
				continue
			}
			g.AddRelationship(&PatternRelationship{
				Name:      names[i],
				Left:      names[i-1],
				Right:     names[i+1],
				Direction: el.Direction,
				Types:     el.Types,
				Length:    el.Length,
				Pos:       el.Pos(),
			})
			g.addInlineProperties(names[i], el.Properties)
		}
	}
}

func (g *QueryGraph) addInlineProperties(variable string, props *ast.MapLiteral) {
	if props == nil {
		return
	}
	for _, entry := range props.Entries {
		g.AddSelection(ast.Compare(ast.OpEQ, ast.VarProp(variable, entry.Key), entry.Value))
	}
}

// AddNode adds a node or merges labels into an existing one.
func (g *QueryGraph) AddNode(name string, pos ast.Position, labels ...string) {
	if i, ok := g.nodeIndex[name]; ok {
		g.Nodes[i].Labels = mergeLabels(g.Nodes[i].Labels, labels)
		if !g.Nodes[i].Pos.IsKnown() {
			g.Nodes[i].Pos = pos
		}
		return
	}
	g.nodeIndex[name] = len(g.Nodes)
	g.Nodes = append(g.Nodes, &PatternNode{Name: name, Labels: mergeLabels(nil, labels), Pos: pos})
}

// AddRelationship adds a relationship and its endpoints. Re-adding a
// relationship with a known name is ignored.
func (g *QueryGraph) AddRelationship(r *PatternRelationship) {
	if _, ok := g.relIndex[r.Name]; ok {
		return
	}
	g.AddNode(r.Left, ast.Position{})
	g.AddNode(r.Right, ast.Position{})
	g.relIndex[r.Name] = len(g.Relationships)
	g.Relationships = append(g.Relationships, r)
}

// AddSelection records a predicate. Duplicates by canonical text are
// dropped.
func (g *QueryGraph) AddSelection(p ast.Expr) {
	text := p.String()
	for _, s := range g.Selections {
		if s.Predicate.String() == text {
			return
		}
	}
	g.Selections = append(g.Selections, Selection{Predicate: p, Dependencies: ast.Dependencies(p)})
}

// Node returns the node named name.
func (g *QueryGraph) Node(name string) (*PatternNode, bool) {
	i, ok := g.nodeIndex[name]
	if !ok {
		return nil, false
	}
	return g.Nodes[i], true
}

// Relationship returns the relationship named name.
func (g *QueryGraph) Relationship(name string) (*PatternRelationship, bool) {
	i, ok := g.relIndex[name]
	if !ok {
		return nil, false
	}
	return g.Relationships[i], true
}

// IsRelationship reports whether name is a relationship variable.
func (g *QueryGraph) IsRelationship(name string) bool {
	_, ok := g.relIndex[name]
	return ok
}

// Has reports whether name is a node or relationship of the graph.
func (g *QueryGraph) Has(name string) bool {
	_, n := g.nodeIndex[name]
	_, r := g.relIndex[name]
	return n || r
}

// Variables returns every pattern variable, sorted.
func (g *QueryGraph) Variables() []string {
	out := make([]string, 0, len(g.Nodes)+len(g.Relationships))
	for _, n := range g.Nodes {
		out = append(out, n.Name)
	}
	for _, r := range g.Relationships {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

// Component is a connected set of nodes and the relationships among them.
type Component struct {
	Nodes         []string
	Relationships []string
}

// Variables returns the component's node and relationship names, sorted.
func (c Component) Variables() []string {
	out := append(append([]string(nil), c.Nodes...), c.Relationships...)
	sort.Strings(out)
	return out
}

// Components partitions the graph into connected components, in order of
// each component's first node.
func (g *QueryGraph) Components() []Component {
	parent := make([]int, len(g.Nodes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for _, r := range g.Relationships {
		a, b := find(g.nodeIndex[r.Left]), find(g.nodeIndex[r.Right])
		if a != b {
			if b < a {
				a, b = b, a
			}
			parent[b] = a
		}
	}

	order := make(map[int]int)
	var comps []Component
	for i, n := range g.Nodes {
		root := find(i)
		ci, ok := order[root]
		if !ok {
			ci = len(comps)
			order[root] = ci
			comps = append(comps, Component{})
		}
		comps[ci].Nodes = append(comps[ci].Nodes, n.Name)
	}
	for _, r := range g.Relationships {
		ci := order[find(g.nodeIndex[r.Left])]
		comps[ci].Relationships = append(comps[ci].Relationships, r.Name)
	}
	return comps
}

func (g *QueryGraph) String() string {
	var sb strings.Builder
	sb.WriteString("nodes:")
	for _, n := range g.Nodes {
		sb.WriteString(" (" + n.Name)
		for _, l := range n.Labels {
			sb.WriteString(":" + l)
		}
		sb.WriteString(")")
	}
	if len(g.Relationships) > 0 {
		sb.WriteString(" rels:")
		for _, r := range g.Relationships {
			fmt.Fprintf(&sb, " (%s)-[%s:%s]-(%s)", r.Left, r.Name, strings.Join(r.Types, "|"), r.Right)
		}
	}
	if len(g.Selections) > 0 {
		sb.WriteString(" where:")
		for _, s := range g.Selections {
			sb.WriteString(" " + s.Predicate.String())
		}
	}
	return sb.String()
}

func mergeLabels(existing, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	var out []string
	for _, list := range [][]string{existing, add} {
		for _, l := range list {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out
}
