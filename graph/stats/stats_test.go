package stats

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-graph/graph"
)

func movieData() Data {
	return Data{
		Nodes:             1000,
		Relationships:     5000,
		Labels:            map[string]float64{"Person": 400, "Movie": 100, "Ghost": 0},
		RelationshipTypes: map[string]float64{"ACTED_IN": 800},
		Indexes: []IndexDescriptor{
			{Name: "person_name", Entity: graph.NodeEntity, Token: "Person", Properties: []string{"name"},
				PopulatedFraction: Float(0.9), DistinctValues: Float(380)},
			{Name: "person_name_age", Entity: graph.NodeEntity, Token: "Person", Properties: []string{"name", "age"},
				ObservedSelectivity: Float(0.01)},
			{Name: "person_lookup", Entity: graph.NodeEntity, Token: "Person", Kind: TokenLookupIndex},
			{Name: "acted_role", Entity: graph.RelationshipEntity, Token: "ACTED_IN", Properties: []string{"role"},
				Kind: TextIndex},
		},
	}
}

func TestSnapshotCounts(t *testing.T) {
	s := MustSnapshot(movieData())

	assert.Equal(t, graph.Cardinality(1000), s.NodeCount())
	assert.Equal(t, graph.Cardinality(5000), s.RelationshipCount())

	c, ok := s.LabelCardinality("Person")
	assert.True(t, ok)
	assert.Equal(t, graph.Cardinality(400), c)

	c, ok = s.LabelCardinality("Ghost")
	assert.True(t, ok, "explicit zero is a known statistic")
	assert.True(t, c.IsZero())

	_, ok = s.LabelCardinality("Unknown")
	assert.False(t, ok)

	_, ok = s.RelationshipTypeCardinality("DIRECTED")
	assert.False(t, ok)

	assert.Equal(t, []string{"Ghost", "Movie", "Person"}, s.Labels())
}

func TestIndexesForCoverage(t *testing.T) {
	s := MustSnapshot(movieData())

	names := func(idx []IndexDescriptor) []string {
		var out []string
		for _, i := range idx {
			out = append(out, i.Name)
		}
		return out
	}

	assert.Equal(t, []string{"person_name"}, names(s.IndexesFor(graph.NodeEntity, "Person", []string{"name"})))
	assert.Equal(t, []string{"person_name", "person_name_age"},
		names(s.IndexesFor(graph.NodeEntity, "Person", []string{"age", "name", "email"})))
	assert.Equal(t, []string{"person_lookup"}, names(s.IndexesFor(graph.NodeEntity, "Person", nil)))
	assert.Empty(t, s.IndexesFor(graph.NodeEntity, "Movie", []string{"name"}))
	assert.Empty(t, s.IndexesFor(graph.NodeEntity, "ACTED_IN", []string{"role"}), "entity kind is part of the key")
	assert.Len(t, s.IndexesFor(graph.RelationshipEntity, "ACTED_IN", []string{"role"}), 1)
}

func TestIndexesForReturnsCopies(t *testing.T) {
	s := MustSnapshot(movieData())
	idx := s.IndexesFor(graph.NodeEntity, "Person", []string{"name"})
	require.Len(t, idx, 1)
	*idx[0].DistinctValues = 1
	idx[0].Properties[0] = "mutated"

	again := s.IndexesFor(graph.NodeEntity, "Person", []string{"name"})
	require.Len(t, again, 1)
	assert.Equal(t, 380.0, *again[0].DistinctValues)
	assert.Equal(t, []string{"name"}, again[0].Properties)
}

func TestExactlyMatches(t *testing.T) {
	idx := IndexDescriptor{Name: "x", Properties: []string{"a", "b"}}
	assert.True(t, idx.ExactlyMatches([]string{"b", "a", "a"}))
	assert.False(t, idx.ExactlyMatches([]string{"a", "b", "c"}))
	assert.False(t, idx.ExactlyMatches([]string{"a"}))
}

func TestNewSnapshotValidation(t *testing.T) {
	tests := []struct {
		name string
		data Data
	}{
		{"negative nodes", Data{Nodes: -1}},
		{"negative label", Data{Labels: map[string]float64{"A": -3}}},
		{"bad populated", Data{Indexes: []IndexDescriptor{{Name: "i", Properties: []string{"p"}, PopulatedFraction: Float(1.5)}}}},
		{"unnamed index", Data{Indexes: []IndexDescriptor{{Properties: []string{"p"}}}}},
		{"duplicate index", Data{Indexes: []IndexDescriptor{{Name: "i"}, {Name: "i"}}}},
		{"bad histogram", Data{Indexes: []IndexDescriptor{{Name: "i", Histogram: &Histogram{
			Min: 10, Buckets: []HistogramBucket{{UpperBound: 5, Fraction: 0.5}}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSnapshot(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestEmptySnapshot(t *testing.T) {
	assert.True(t, Empty.NodeCount().IsZero())
	_, ok := Empty.LabelCardinality("Person")
	assert.False(t, ok)
	assert.Empty(t, Empty.IndexesFor(graph.NodeEntity, "Person", []string{"name"}))
}

func TestHistogram(t *testing.T) {
	h := &Histogram{Min: 0, Buckets: []HistogramBucket{
		{UpperBound: 10, Fraction: 0.2},
		{UpperBound: 20, Fraction: 0.3},
		{UpperBound: 100, Fraction: 0.5},
	}}
	require.NoError(t, h.Validate())

	assert.Equal(t, 0.0, h.FractionBelow(-5))
	assert.InDelta(t, 0.1, h.FractionBelow(5), 1e-12)
	assert.InDelta(t, 0.2, h.FractionBelow(10), 1e-12)
	assert.InDelta(t, 0.35, h.FractionBelow(15), 1e-12)
	assert.InDelta(t, 1.0, h.FractionBelow(math.Inf(1)), 1e-12)
	assert.InDelta(t, 0.3, h.FractionBetween(10, 20), 1e-12)
	assert.Equal(t, 0.0, h.FractionBetween(20, 10))
	assert.InDelta(t, 1.0, h.Total(), 1e-12)

	var nilHist *Histogram
	assert.Equal(t, 0.0, nilHist.FractionBelow(3))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.yaml")
	doc := `
nodes: 100
relationships: 40
labels:
  Person: 30
relationshipTypes:
  KNOWS: 40
indexes:
  - name: person_age
    entity: node
    token: Person
    properties: [age]
    kind: range
    populated: 0.5
    histogram:
      min: 0
      buckets:
        - {upper: 50, fraction: 0.5}
        - {upper: 100, fraction: 0.5}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, graph.Cardinality(100), s.NodeCount())

	idx := s.IndexesFor(graph.NodeEntity, "Person", []string{"age"})
	require.Len(t, idx, 1)
	assert.Equal(t, RangeIndex, idx[0].Kind)
	require.NotNil(t, idx[0].Histogram)
	assert.Len(t, idx[0].Histogram.Buckets, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadgerStore("")
	require.NoError(t, err)
	defer store.Close()

	original := MustSnapshot(movieData())
	require.NoError(t, store.Save(original))

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, original.Data(), snap.Data())
}

func TestBadgerStoreIncrementalUpdates(t *testing.T) {
	store, err := OpenBadgerStore("")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetNodeCount(10))
	require.NoError(t, store.SetLabelCount("Person", 4))
	require.NoError(t, store.SetRelationshipCount(3))
	require.NoError(t, store.SetRelationshipTypeCount("KNOWS", 3))
	require.NoError(t, store.PutIndex(IndexDescriptor{
		Name: "person_name", Entity: graph.NodeEntity, Token: "Person", Properties: []string{"name"},
	}))

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graph.Cardinality(10), snap.NodeCount())
	n, ok := snap.LabelCardinality("Person")
	assert.True(t, ok)
	assert.Equal(t, graph.Cardinality(4), n)
	assert.Len(t, snap.IndexesFor(graph.NodeEntity, "Person", []string{"name"}), 1)

	require.NoError(t, store.DropIndex("person_name"))
	require.NoError(t, store.DropIndex("never_existed"))
	snap, err = store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.IndexesFor(graph.NodeEntity, "Person", []string{"name"}))

	assert.Error(t, store.SetLabelCount("Bad", -1))
	assert.Error(t, store.PutIndex(IndexDescriptor{}))
}

func TestBadgerStoreSaveReplaces(t *testing.T) {
	store, err := OpenBadgerStore("")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(MustSnapshot(movieData())))
	require.NoError(t, store.Save(MustSnapshot(Data{Nodes: 1})))

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Labels())
	assert.Empty(t, snap.Data().Indexes)
}

func TestBadgerStoreSnapshotHonoursContext(t *testing.T) {
	store, err := OpenBadgerStore("")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Save(MustSnapshot(movieData())))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchAsync(t *testing.T) {
	snap := MustSnapshot(movieData())
	p := FetchAsync(context.Background(), snap)

	got, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, got)

	select {
	case <-p.Done():
	default:
		t.Fatal("Done must be closed after Wait returns")
	}
}

func TestFetchAsyncCancel(t *testing.T) {
	started := make(chan struct{})
	src := SourceFunc(func(ctx context.Context) (*Snapshot, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	p := FetchAsync(context.Background(), src)
	<-started
	p.Cancel()

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPendingWaitDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	src := SourceFunc(func(ctx context.Context) (*Snapshot, error) {
		<-release
		return Empty, nil
	})

	p := FetchAsync(context.Background(), src)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
