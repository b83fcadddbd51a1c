package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSelectivityClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want Selectivity
	}{
		{0, MinSelectivity},
		{-3, MinSelectivity},
		{1e-20, MinSelectivity},
		{0.25, 0.25},
		{1, OneSelectivity},
		{7, OneSelectivity},
		{math.NaN(), OneSelectivity},
		{math.Inf(1), OneSelectivity},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewSelectivity(tt.in), "NewSelectivity(%v)", tt.in)
	}
}

func TestSelectivityAndNeverReachesZero(t *testing.T) {
	s := NewSelectivity(0.01)
	for i := 0; i < 50; i++ {
		s = s.And(NewSelectivity(0.01))
	}
	assert.Equal(t, MinSelectivity, s)
	assert.InDelta(t, 0.7, NewSelectivity(0.3).Negate().Float(), 1e-12)
}

func TestSelectivityFromFraction(t *testing.T) {
	assert.Equal(t, OneSelectivity, SelectivityFromFraction(5, 0))
	assert.InDelta(t, 0.2, SelectivityFromFraction(200, 1000).Float(), 1e-12)
}

func TestCardinalitySanitizes(t *testing.T) {
	assert.Equal(t, Cardinality(0), NewCardinality(-1))
	assert.Equal(t, Cardinality(0), NewCardinality(math.NaN()))
	assert.True(t, NewCardinality(0).IsZero())
	assert.InDelta(t, 100, Cardinality(1000).Times(0.1).Float(), 1e-9)
	assert.InDelta(t, 6, Cardinality(2).Mul(3).Float(), 1e-9)
}

func TestParseEntityType(t *testing.T) {
	e, err := ParseEntityType("relationship")
	assert.NoError(t, err)
	assert.Equal(t, RelationshipEntity, e)
	_, err = ParseEntityType("edge")
	assert.Error(t, err)
}
