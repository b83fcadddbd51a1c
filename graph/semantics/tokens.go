package semantics

import (
	"sort"
	"strings"
)

// TokenInfo maps a pattern variable to the set of labels (for nodes) or
// relationship types (for relationships) statically known to apply to it.
// The zero value is an empty, usable TokenInfo. Values are immutable.
type TokenInfo struct {
	tokens map[string][]string
}

// LabelInfo is the label set per node variable.
type LabelInfo = TokenInfo

// RelTypeInfo is the relationship type set per relationship variable. For a
// relationship the set is a disjunction (r:A|B); for a node it is a
// conjunction of labels.
type RelTypeInfo = TokenInfo

// With returns a copy that additionally records tokens for variable.
func (ti TokenInfo) With(variable string, tokens ...string) TokenInfo {
	out := TokenInfo{tokens: make(map[string][]string, len(ti.tokens)+1)}
	for k, v := range ti.tokens {
		out.tokens[k] = v
	}
	out.tokens[variable] = mergeSorted(ti.tokens[variable], tokens)
	return out
}

// Replace returns a copy in which variable's token set is exactly tokens.
func (ti TokenInfo) Replace(variable string, tokens ...string) TokenInfo {
	out := TokenInfo{tokens: make(map[string][]string, len(ti.tokens)+1)}
	for k, v := range ti.tokens {
		out.tokens[k] = v
	}
	out.tokens[variable] = mergeSorted(nil, tokens)
	return out
}

// Tokens returns the sorted token set of variable. The slice must not be
// modified.
func (ti TokenInfo) Tokens(variable string) []string {
	return ti.tokens[variable]
}

// Has reports whether any tokens are known for variable.
func (ti TokenInfo) Has(variable string) bool {
	return len(ti.tokens[variable]) > 0
}

// Known reports whether variable has a recorded token set, even an empty
// one. An empty known set means the constraints on variable contradict.
func (ti TokenInfo) Known(variable string) bool {
	_, ok := ti.tokens[variable]
	return ok
}

// Variables returns the sorted variable names with known tokens.
func (ti TokenInfo) Variables() []string {
	out := make([]string, 0, len(ti.tokens))
	for k := range ti.tokens {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (ti TokenInfo) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, v := range ti.Variables() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v)
		sb.WriteString(": [")
		sb.WriteString(strings.Join(ti.tokens[v], " "))
		sb.WriteByte(']')
	}
	sb.WriteByte('}')
	return sb.String()
}

func mergeSorted(existing, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	var out []string
	for _, list := range [][]string{existing, add} {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}
