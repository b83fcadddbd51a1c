package planner

import "github.com/wbrown/janus-graph/graph"

// Default selectivities used when no statistic covers a predicate. CONTAINS
// is less selective than the anchored string matches because an unanchored
// substring succeeds more often.
const (
	DefaultEqualitySelectivity       graph.Selectivity = 0.1
	DefaultRangeSelectivity          graph.Selectivity = 0.3
	DefaultPrefixSelectivity         graph.Selectivity = 0.5
	DefaultSuffixSelectivity         graph.Selectivity = 0.5
	DefaultSubstringSelectivity      graph.Selectivity = 0.6
	DefaultPropertyExistsSelectivity graph.Selectivity = 0.5
	DefaultLabelSelectivity          graph.Selectivity = 0.1
	DefaultTypeSelectivity           graph.Selectivity = 0.1
	DefaultPredicateSelectivity      graph.Selectivity = 1.0

	// DefaultInListSize is the assumed element count of an IN list whose
	// size is not known at compile time, such as a parameter.
	DefaultInListSize = 3
)
