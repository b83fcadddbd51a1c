package compiler

// DefaultRegistrations is the built-in phase table. Priorities only break
// ties between phases that are runnable at the same time; the order itself
// follows from the declared conditions.
func DefaultRegistrations() []Registration {
	return []Registration{
		{Phase: NameAnonymousElements, Priority: 10},
		{Phase: NamespaceVariables, Priority: 20},
		{Phase: NormalizePredicates, Priority: 30},
		{Phase: SemanticAnalysis, Priority: 40},
		{Phase: InferLabels, Priority: 50},
		{Phase: BuildQueryGraph, Priority: 60},
		{Phase: EstimateCardinality, Priority: 70},
	}
}

// RegistrationsFor returns the default table adjusted to opts.
func RegistrationsFor(opts Options) []Registration {
	regs := DefaultRegistrations()
	if opts.EnableEstimation {
		return regs
	}
	out := regs[:0]
	for _, r := range regs {
		if r.Phase.Name() != PhaseEstimateCardinality {
			out = append(out, r)
		}
	}
	return out
}
