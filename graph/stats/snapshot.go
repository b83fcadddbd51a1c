package stats

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/wbrown/janus-graph/graph"
)

// Data is the serializable form of a statistics snapshot.
type Data struct {
	Nodes             float64            `json:"nodes" yaml:"nodes"`
	Relationships     float64            `json:"relationships" yaml:"relationships"`
	Labels            map[string]float64 `json:"labels,omitempty" yaml:"labels,omitempty"`
	RelationshipTypes map[string]float64 `json:"relationshipTypes,omitempty" yaml:"relationshipTypes,omitempty"`
	Indexes           []IndexDescriptor  `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// Snapshot is an immutable Provider. It is safe for concurrent use.
type Snapshot struct {
	nodes    graph.Cardinality
	rels     graph.Cardinality
	labels   map[string]graph.Cardinality
	relTypes map[string]graph.Cardinality
	indexes  map[indexKey][]IndexDescriptor
}

type indexKey struct {
	entity graph.EntityType
	token  string
}

var _ Provider = (*Snapshot)(nil)

// Empty is a snapshot with no statistics at all. Every label and index lookup
// reports unavailable, so the estimator uses defaults throughout.
var Empty = &Snapshot{}

// NewSnapshot validates d and builds a snapshot from it.
func NewSnapshot(d Data) (*Snapshot, error) {
	if d.Nodes < 0 || d.Relationships < 0 {
		return nil, errors.Newf("negative entity count (nodes=%v, relationships=%v)", d.Nodes, d.Relationships)
	}
	s := &Snapshot{
		nodes:    graph.NewCardinality(d.Nodes),
		rels:     graph.NewCardinality(d.Relationships),
		labels:   make(map[string]graph.Cardinality, len(d.Labels)),
		relTypes: make(map[string]graph.Cardinality, len(d.RelationshipTypes)),
		indexes:  make(map[indexKey][]IndexDescriptor),
	}
	for label, n := range d.Labels {
		if n < 0 {
			return nil, errors.Newf("label %s: negative count %v", label, n)
		}
		s.labels[label] = graph.NewCardinality(n)
	}
	for t, n := range d.RelationshipTypes {
		if n < 0 {
			return nil, errors.Newf("relationship type %s: negative count %v", t, n)
		}
		s.relTypes[t] = graph.NewCardinality(n)
	}
	seen := make(map[string]bool, len(d.Indexes))
	for _, idx := range d.Indexes {
		if err := idx.Validate(); err != nil {
			return nil, err
		}
		if seen[idx.Name] {
			return nil, errors.Newf("duplicate index name %q", idx.Name)
		}
		seen[idx.Name] = true
		key := indexKey{idx.Entity, idx.Token}
		s.indexes[key] = append(s.indexes[key], cloneIndex(idx))
	}
	for k := range s.indexes {
		sortIndexes(s.indexes[k])
	}
	return s, nil
}

// MustSnapshot is NewSnapshot for statically known data; it panics on error.
func MustSnapshot(d Data) *Snapshot {
	s, err := NewSnapshot(d)
	if err != nil {
		panic(err)
	}
	return s
}

// LoadFile reads a YAML (or JSON, which is valid YAML) snapshot document.
func LoadFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read statistics")
	}
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, errors.Wrapf(err, "parse statistics %s", path)
	}
	s, err := NewSnapshot(d)
	if err != nil {
		return nil, errors.Wrapf(err, "statistics %s", path)
	}
	return s, nil
}

// NodeCount returns the total number of nodes.
func (s *Snapshot) NodeCount() graph.Cardinality { return s.nodes }

// RelationshipCount returns the total number of relationships.
func (s *Snapshot) RelationshipCount() graph.Cardinality { return s.rels }

// LabelCardinality returns the number of nodes carrying label.
func (s *Snapshot) LabelCardinality(label string) (graph.Cardinality, bool) {
	c, ok := s.labels[label]
	return c, ok
}

// RelationshipTypeCardinality returns the number of relationships of relType.
func (s *Snapshot) RelationshipTypeCardinality(relType string) (graph.Cardinality, bool) {
	c, ok := s.relTypes[relType]
	return c, ok
}

// IndexesFor returns the indexes on token covered by properties. Token lookup
// indexes are returned only when properties is empty.
func (s *Snapshot) IndexesFor(entity graph.EntityType, token string, properties []string) []IndexDescriptor {
	var out []IndexDescriptor
	for _, idx := range s.indexes[indexKey{entity, token}] {
		if idx.Kind == TokenLookupIndex {
			if len(properties) == 0 {
				out = append(out, cloneIndex(idx))
			}
			continue
		}
		if idx.CoveredBy(properties) {
			out = append(out, cloneIndex(idx))
		}
	}
	return out
}

// Snapshot makes a snapshot its own Source.
func (s *Snapshot) Snapshot(context.Context) (*Snapshot, error) { return s, nil }

// Data returns a deep copy of the snapshot in serializable form.
func (s *Snapshot) Data() Data {
	d := Data{
		Nodes:         s.nodes.Float(),
		Relationships: s.rels.Float(),
	}
	if len(s.labels) > 0 {
		d.Labels = make(map[string]float64, len(s.labels))
		for k, v := range s.labels {
			d.Labels[k] = v.Float()
		}
	}
	if len(s.relTypes) > 0 {
		d.RelationshipTypes = make(map[string]float64, len(s.relTypes))
		for k, v := range s.relTypes {
			d.RelationshipTypes[k] = v.Float()
		}
	}
	for _, list := range s.indexes {
		for _, idx := range list {
			d.Indexes = append(d.Indexes, cloneIndex(idx))
		}
	}
	sortIndexes(d.Indexes)
	return d
}

// Labels returns the labels with known counts, sorted.
func (s *Snapshot) Labels() []string { return sortedKeys(s.labels) }

// RelationshipTypes returns the relationship types with known counts, sorted.
func (s *Snapshot) RelationshipTypes() []string { return sortedKeys(s.relTypes) }

func (s *Snapshot) String() string {
	return fmt.Sprintf("snapshot{nodes=%s relationships=%s labels=%d types=%d}",
		s.nodes, s.rels, len(s.labels), len(s.relTypes))
}

func sortedKeys(m map[string]graph.Cardinality) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneIndex(idx IndexDescriptor) IndexDescriptor {
	c := idx
	if idx.Properties != nil {
		c.Properties = append([]string(nil), idx.Properties...)
	}
	if idx.ObservedSelectivity != nil {
		c.ObservedSelectivity = Float(*idx.ObservedSelectivity)
	}
	if idx.PopulatedFraction != nil {
		c.PopulatedFraction = Float(*idx.PopulatedFraction)
	}
	if idx.DistinctValues != nil {
		c.DistinctValues = Float(*idx.DistinctValues)
	}
	if idx.Histogram != nil {
		h := *idx.Histogram
		h.Buckets = append([]HistogramBucket(nil), idx.Histogram.Buckets...)
		c.Histogram = &h
	}
	return c
}
