// Package stats defines the Statistics Provider contract consumed by the
// estimator, an immutable in-memory snapshot implementing it, a badger-backed
// store that produces snapshots, and an asynchronous fetch handle used to
// obtain a snapshot before compilation starts.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wbrown/janus-graph/graph"
)

// Provider is a read-only view of entity counts and index metadata for the
// duration of one compilation.
//
// The boolean results report whether a statistic is known at all. A known
// zero is a legitimate count; an unknown statistic makes the estimator fall
// back to its documented defaults.
type Provider interface {
	NodeCount() graph.Cardinality
	LabelCardinality(label string) (graph.Cardinality, bool)
	RelationshipCount() graph.Cardinality
	RelationshipTypeCardinality(relType string) (graph.Cardinality, bool)

	// IndexesFor returns the indexes on token whose property set is
	// contained in properties, sorted by name.
	IndexesFor(entity graph.EntityType, token string, properties []string) []IndexDescriptor
}

// IndexKind is the capability class of an index.
type IndexKind uint8

const (
	RangeIndex IndexKind = iota
	TextIndex
	PointIndex
	TokenLookupIndex
)

// String returns the string representation of IndexKind
func (k IndexKind) String() string {
	switch k {
	case RangeIndex:
		return "range"
	case TextIndex:
		return "text"
	case PointIndex:
		return "point"
	case TokenLookupIndex:
		return "lookup"
	default:
		return "unknown"
	}
}

// ParseIndexKind is the inverse of IndexKind.String.
func ParseIndexKind(s string) (IndexKind, error) {
	switch strings.ToLower(s) {
	case "range", "":
		return RangeIndex, nil
	case "text":
		return TextIndex, nil
	case "point":
		return PointIndex, nil
	case "lookup", "token", "token_lookup":
		return TokenLookupIndex, nil
	}
	return 0, fmt.Errorf("unknown index kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k IndexKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *IndexKind) UnmarshalText(text []byte) error {
	parsed, err := ParseIndexKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IndexDescriptor describes an available index and the statistics observed
// for it. Optional statistics are nil when the index does not report them.
type IndexDescriptor struct {
	Name       string           `json:"name" yaml:"name"`
	Entity     graph.EntityType `json:"entity" yaml:"entity"`
	Token      string           `json:"token" yaml:"token"`
	Properties []string         `json:"properties,omitempty" yaml:"properties,omitempty"`
	Kind       IndexKind        `json:"kind" yaml:"kind"`

	// ObservedSelectivity is a directly measured selectivity for predicates
	// served by this index.
	ObservedSelectivity *float64 `json:"observedSelectivity,omitempty" yaml:"observedSelectivity,omitempty"`
	// PopulatedFraction is the fraction of token entities that have all
	// indexed properties.
	PopulatedFraction *float64 `json:"populated,omitempty" yaml:"populated,omitempty"`
	// DistinctValues is the number of distinct indexed values.
	DistinctValues *float64   `json:"distinct,omitempty" yaml:"distinct,omitempty"`
	Histogram      *Histogram `json:"histogram,omitempty" yaml:"histogram,omitempty"`
}

// Float returns a pointer to f, for filling optional descriptor fields.
func Float(f float64) *float64 { return &f }

// HasObservedSelectivity reports whether the backing statistics include a
// directly observed selectivity value.
func (d IndexDescriptor) HasObservedSelectivity() bool { return d.ObservedSelectivity != nil }

// CoveredBy reports whether every indexed property appears in properties.
// Token lookup indexes have no properties and are never covered.
func (d IndexDescriptor) CoveredBy(properties []string) bool {
	if d.Kind == TokenLookupIndex || len(d.Properties) == 0 {
		return false
	}
	have := make(map[string]bool, len(properties))
	for _, p := range properties {
		have[p] = true
	}
	for _, p := range d.Properties {
		if !have[p] {
			return false
		}
	}
	return true
}

// ExactlyMatches reports whether the index property set equals properties.
func (d IndexDescriptor) ExactlyMatches(properties []string) bool {
	if !d.CoveredBy(properties) {
		return false
	}
	distinct := make(map[string]bool, len(properties))
	for _, p := range properties {
		distinct[p] = true
	}
	return len(distinct) == len(d.Properties)
}

// Validate checks that optional statistics are in range.
func (d IndexDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("index on %s %q has no name", d.Entity, d.Token)
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{{"observedSelectivity", d.ObservedSelectivity}, {"populated", d.PopulatedFraction}} {
		if f.v != nil && (*f.v < 0 || *f.v > 1) {
			return fmt.Errorf("index %s: %s %v outside [0,1]", d.Name, f.name, *f.v)
		}
	}
	if d.DistinctValues != nil && *d.DistinctValues < 0 {
		return fmt.Errorf("index %s: negative distinct count %v", d.Name, *d.DistinctValues)
	}
	if d.Histogram != nil {
		if err := d.Histogram.Validate(); err != nil {
			return fmt.Errorf("index %s: %w", d.Name, err)
		}
	}
	return nil
}

func (d IndexDescriptor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s index %s on :%s(%s)", d.Kind, d.Entity, d.Name, d.Token, strings.Join(d.Properties, ", "))
	if d.ObservedSelectivity != nil {
		fmt.Fprintf(&sb, " selectivity=%g", *d.ObservedSelectivity)
	}
	return sb.String()
}

func sortIndexes(indexes []IndexDescriptor) {
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
}
