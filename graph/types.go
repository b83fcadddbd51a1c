// Package graph holds the primitive value types shared by the compiler,
// planner and statistics packages.
package graph

import (
	"fmt"
	"math"
)

// Epsilon is the smallest selectivity the estimator will report. Compounding
// predicates never drive an estimate to exactly zero.
const Epsilon = 1e-10

// Selectivity is the estimated fraction of entities satisfying a predicate.
// Values produced through NewSelectivity always lie in [Epsilon, 1].
type Selectivity float64

const (
	// OneSelectivity means no filtering.
	OneSelectivity Selectivity = 1
	// MinSelectivity is the floor applied to every combined estimate.
	MinSelectivity Selectivity = Epsilon
)

// NewSelectivity clamps f into [Epsilon, 1]. NaN is treated as "unknown" and
// maps to 1.
func NewSelectivity(f float64) Selectivity {
	switch {
	case math.IsNaN(f):
		return OneSelectivity
	case f < Epsilon:
		return MinSelectivity
	case f > 1:
		return OneSelectivity
	}
	return Selectivity(f)
}

// SelectivityFromFraction returns part/whole as a selectivity. A zero whole
// yields 1 since nothing can be filtered from an empty input.
func SelectivityFromFraction(part, whole float64) Selectivity {
	if whole <= 0 {
		return OneSelectivity
	}
	return NewSelectivity(part / whole)
}

// And combines two selectivities under the independence assumption.
func (s Selectivity) And(other Selectivity) Selectivity {
	return NewSelectivity(float64(s) * float64(other))
}

// Negate returns the selectivity of the complementary predicate.
func (s Selectivity) Negate() Selectivity {
	return NewSelectivity(1 - float64(s))
}

// Min returns the lower of the two selectivities.
func (s Selectivity) Min(other Selectivity) Selectivity {
	if other < s {
		return other
	}
	return s
}

// Float returns the selectivity as a float64.
func (s Selectivity) Float() float64 { return float64(s) }

func (s Selectivity) String() string {
	return fmt.Sprintf("%.6g", float64(s))
}

// Cardinality is an estimated row count. It is never negative and never NaN.
// Zero is a legal value and is distinct from "unknown"; unknown statistics are
// reported separately by the provider.
type Cardinality float64

// NewCardinality sanitizes f into a legal cardinality.
func NewCardinality(f float64) Cardinality {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if math.IsInf(f, 1) {
		return Cardinality(math.MaxFloat64)
	}
	return Cardinality(f)
}

// Times applies a selectivity to the cardinality.
func (c Cardinality) Times(s Selectivity) Cardinality {
	return NewCardinality(float64(c) * float64(s))
}

// Mul multiplies two cardinalities, used for cartesian products.
func (c Cardinality) Mul(other Cardinality) Cardinality {
	return NewCardinality(float64(c) * float64(other))
}

// Float returns the cardinality as a float64.
func (c Cardinality) Float() float64 { return float64(c) }

// IsZero reports whether the estimate is exactly zero rows.
func (c Cardinality) IsZero() bool { return c == 0 }

func (c Cardinality) String() string {
	return fmt.Sprintf("%.2f", float64(c))
}

// EntityType distinguishes node and relationship entities.
type EntityType uint8

const (
	NodeEntity EntityType = iota
	RelationshipEntity
)

// String returns the string representation of EntityType
func (e EntityType) String() string {
	switch e {
	case NodeEntity:
		return "node"
	case RelationshipEntity:
		return "relationship"
	default:
		return "unknown"
	}
}

// ParseEntityType is the inverse of EntityType.String.
func ParseEntityType(s string) (EntityType, error) {
	switch s {
	case "node", "":
		return NodeEntity, nil
	case "relationship", "rel":
		return RelationshipEntity, nil
	}
	return 0, fmt.Errorf("unknown entity type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (e EntityType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EntityType) UnmarshalText(text []byte) error {
	parsed, err := ParseEntityType(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
