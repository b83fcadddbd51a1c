// Package planner estimates predicate selectivities and pattern
// cardinalities for a compiled query. Estimates feed a cost-based plan
// search; every function here is pure over its inputs and the read-only
// statistics snapshot.
package planner

import (
	"github.com/wbrown/janus-graph/graph"
	"github.com/wbrown/janus-graph/graph/semantics"
	"github.com/wbrown/janus-graph/graph/stats"
)

// EstimationContext is everything an estimate may consult. The zero value is
// usable: missing statistics fall back to defaults.
type EstimationContext struct {
	Stats     stats.Provider
	Labels    semantics.LabelInfo
	RelTypes  semantics.RelTypeInfo
	Semantics *semantics.Table
	// Graph, when set, identifies relationship variables that carry no
	// type information.
	Graph *QueryGraph
}

// withGraph merges the labels and types written in g's patterns into the
// context. A type set already narrowed by the query is kept, even when empty.
func (c EstimationContext) withGraph(g *QueryGraph) EstimationContext {
	out := c
	out.Graph = g
	for _, n := range g.Nodes {
		if len(n.Labels) > 0 {
			out.Labels = out.Labels.With(n.Name, n.Labels...)
		}
	}
	for _, r := range g.Relationships {
		if len(r.Types) > 0 && !out.RelTypes.Known(r.Name) {
			out.RelTypes = out.RelTypes.With(r.Name, r.Types...)
		}
	}
	return out
}

// contradicted reports whether variable is a relationship whose type
// constraints leave no possible type.
func (c EstimationContext) contradicted(variable string) bool {
	return c.RelTypes.Known(variable) && !c.RelTypes.Has(variable)
}

func (c EstimationContext) provider() stats.Provider {
	if c.Stats == nil {
		return stats.Empty
	}
	return c.Stats
}

// entityOf reports whether variable is bound to a node or a relationship.
func (c EstimationContext) entityOf(variable string) graph.EntityType {
	if c.RelTypes.Has(variable) || (c.Graph != nil && c.Graph.IsRelationship(variable)) {
		return graph.RelationshipEntity
	}
	if c.Semantics != nil {
		if info, ok := c.Semantics.Variable(variable); ok && info.Type == semantics.Relationship {
			return graph.RelationshipEntity
		}
	}
	return graph.NodeEntity
}

// tokensOf returns the labels or relationship types known for variable.
func (c EstimationContext) tokensOf(variable string) []string {
	if c.entityOf(variable) == graph.RelationshipEntity {
		return c.RelTypes.Tokens(variable)
	}
	return c.Labels.Tokens(variable)
}

// indexesOn returns every index over exactly the tokens known for variable
// whose property set is covered by properties, ordered by token then name.
func (c EstimationContext) indexesOn(variable string, properties []string) []stats.IndexDescriptor {
	entity := c.entityOf(variable)
	var out []stats.IndexDescriptor
	for _, token := range c.tokensOf(variable) {
		out = append(out, c.provider().IndexesFor(entity, token, properties)...)
	}
	return out
}

// labelSelectivity is the fraction of nodes carrying label.
func (c EstimationContext) labelSelectivity(label string) graph.Selectivity {
	p := c.provider()
	n, ok := p.LabelCardinality(label)
	if !ok {
		return DefaultLabelSelectivity
	}
	return graph.SelectivityFromFraction(n.Float(), p.NodeCount().Float())
}

// typeCount is the number of relationships having any of types. Unknown
// types count as DefaultTypeSelectivity of all relationships.
func (c EstimationContext) typeCount(types []string) graph.Cardinality {
	p := c.provider()
	total := p.RelationshipCount()
	if len(types) == 0 {
		return total
	}
	var sum float64
	for _, t := range types {
		if n, ok := p.RelationshipTypeCardinality(t); ok {
			sum += n.Float()
		} else {
			sum += total.Times(DefaultTypeSelectivity).Float()
		}
	}
	return graph.NewCardinality(sum)
}
