package compiler

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cond(name string) Condition { return NewCondition(name, nil) }

func phase(name string, requires, establishes []string, invalidates ...string) Phase {
	toConds := func(names []string) []Condition {
		out := make([]Condition, len(names))
		for i, n := range names {
			out[i] = cond(n)
		}
		return out
	}
	return &FuncPhase{
		PhaseName:   name,
		Requirement: toConds(requires),
		Guarantee:   toConds(establishes),
		Invalidated: toConds(invalidates),
		Fn:          func(_ Context, s State) (State, error) { return s, nil },
	}
}

func names(phases []Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = p.Name()
	}
	return out
}

func TestSequenceDefaultPhases(t *testing.T) {
	order, err := Sequence(DefaultRegistrations())
	require.NoError(t, err)
	assert.Equal(t, []string{
		PhaseNameAnonymous,
		PhaseNamespace,
		PhaseNormalize,
		PhaseSemanticAnalysis,
		PhaseInferLabels,
		PhaseBuildQueryGraph,
		PhaseEstimateCardinality,
	}, names(order))
}

func TestSequenceIgnoresRegistrationOrder(t *testing.T) {
	regs := DefaultRegistrations()
	reversed := make([]Registration, len(regs))
	for i, r := range regs {
		reversed[len(regs)-1-i] = r
	}

	a, err := Sequence(regs)
	require.NoError(t, err)
	b, err := Sequence(reversed)
	require.NoError(t, err)
	assert.Equal(t, names(a), names(b))
}

func TestSequenceSatisfiesEveryRequirement(t *testing.T) {
	regs := []Registration{
		{Phase: phase("d", []string{"C"}, []string{"D"}), Priority: 1},
		{Phase: phase("c", []string{"A", "B"}, []string{"C"}), Priority: 1},
		{Phase: phase("b", []string{"A"}, []string{"B"}), Priority: 5},
		{Phase: phase("a", nil, []string{"A"}), Priority: 9},
		{Phase: phase("x", nil, []string{"X"}), Priority: 2},
	}
	order, err := Sequence(regs)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "a", "b", "c", "d"}, names(order))

	established := map[string]bool{}
	for _, p := range order {
		for _, c := range p.Requires() {
			assert.True(t, established[c.Name], "%s requires %s", p.Name(), c.Name)
		}
		for _, c := range p.Invalidates() {
			delete(established, c.Name)
		}
		for _, c := range p.Establishes() {
			established[c.Name] = true
		}
	}
}

func TestSequenceTiesBreakByName(t *testing.T) {
	regs := []Registration{
		{Phase: phase("zeta", nil, nil)},
		{Phase: phase("alpha", nil, nil)},
		{Phase: phase("mid", nil, nil)},
	}
	order, err := Sequence(regs)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names(order))
}

func TestSequenceReportsCycle(t *testing.T) {
	regs := []Registration{
		{Phase: phase("start", nil, []string{"S"})},
		{Phase: phase("left", []string{"S", "R"}, []string{"L"})},
		{Phase: phase("right", []string{"L"}, []string{"R"})},
	}
	_, err := Sequence(regs)
	require.Error(t, err)
	assert.True(t, errors.IsAssertionFailure(err))

	var seqErr *SequencingError
	require.True(t, errors.As(err, &seqErr))
	assert.Equal(t, []string{"L", "R"}, seqErr.Unsatisfied)
	assert.Empty(t, seqErr.Unestablished)
	assert.Equal(t, []string{"left", "right"}, seqErr.Cycle)
	assert.Contains(t, err.Error(), "cycle among phases [left, right]")
}

func TestSequenceReportsSelfCycle(t *testing.T) {
	_, err := Sequence([]Registration{{Phase: phase("ouroboros", []string{"T"}, []string{"T"})}})
	var seqErr *SequencingError
	require.True(t, errors.As(err, &seqErr))
	assert.Equal(t, []string{"ouroboros"}, seqErr.Cycle)
}

func TestSequenceReportsUnestablishedCondition(t *testing.T) {
	regs := []Registration{
		{Phase: phase("a", nil, []string{"A"})},
		{Phase: phase("b", []string{"A", "Missing"}, []string{"B"})},
		{Phase: phase("c", []string{"B"}, nil)},
	}
	_, err := Sequence(regs)
	require.Error(t, err)
	assert.True(t, errors.IsAssertionFailure(err))

	var seqErr *SequencingError
	require.True(t, errors.As(err, &seqErr))
	assert.Equal(t, []string{"B", "Missing"}, seqErr.Unsatisfied)
	assert.Equal(t, []string{"Missing"}, seqErr.Unestablished)
	assert.Nil(t, seqErr.Cycle)
}

func TestSequenceHonorsInvalidation(t *testing.T) {
	regs := []Registration{
		{Phase: phase("produce", nil, []string{"A"}), Priority: 1},
		{Phase: phase("clobber", []string{"A"}, []string{"B"}, "A"), Priority: 2},
		{Phase: phase("consume", []string{"A", "B"}, nil), Priority: 3},
	}
	_, err := Sequence(regs)
	var seqErr *SequencingError
	require.True(t, errors.As(err, &seqErr))
	assert.Equal(t, []string{"A"}, seqErr.Unsatisfied)
	assert.Empty(t, seqErr.Unestablished)

	// Re-establishing the condition afterwards makes the set orderable.
	regs = append(regs, Registration{Phase: phase("restore", []string{"B"}, []string{"A"}), Priority: 4})
	order, err := Sequence(regs)
	require.NoError(t, err)
	assert.Equal(t, []string{"produce", "clobber", "restore", "consume"}, names(order))
}

func TestSequenceDefersUnrecoverableInvalidation(t *testing.T) {
	regs := []Registration{
		{Phase: phase("produce", nil, []string{"A"}), Priority: 1},
		{Phase: phase("scrub", nil, nil, "A"), Priority: 2},
		{Phase: phase("consume", []string{"A"}, nil), Priority: 3},
	}
	order, err := Sequence(regs)
	require.NoError(t, err)
	assert.Equal(t, []string{"produce", "consume", "scrub"}, names(order))
}

func TestSequenceSearchesPastGreedyDeadEnd(t *testing.T) {
	regs := []Registration{
		{Phase: phase("load", nil, []string{"A"}), Priority: 1},
		{Phase: phase("reset", nil, []string{"B"}, "A"), Priority: 2},
		{Phase: phase("finish", []string{"A", "B"}, nil), Priority: 3},
	}
	order, err := Sequence(regs)
	require.NoError(t, err)
	assert.Equal(t, []string{"reset", "load", "finish"}, names(order))
}

func TestSequenceRejectsDuplicates(t *testing.T) {
	_, err := Sequence([]Registration{
		{Phase: phase("same", nil, nil)},
		{Phase: phase("same", nil, nil)},
	})
	require.Error(t, err)
	assert.True(t, errors.IsAssertionFailure(err))
}

func TestNewFailsOnUnorderablePhases(t *testing.T) {
	_, err := New(DefaultOptions(), Registration{Phase: phase("lonely", []string{"Nothing"}, nil)})
	require.Error(t, err)
	assert.True(t, errors.IsAssertionFailure(err))
	assert.Panics(t, func() {
		MustNew(DefaultOptions(), Registration{Phase: phase("lonely", []string{"Nothing"}, nil)})
	})
}

func TestTarjanComponents(t *testing.T) {
	edges := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a", "d"},
		"d": nil,
	}
	sccs := tarjan([]string{"a", "b", "c", "d"}, edges)
	require.Len(t, sccs, 2)
	assert.Equal(t, []string{"d"}, sccs[0])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, sccs[1])
}
