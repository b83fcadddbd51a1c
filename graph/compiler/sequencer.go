package compiler

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Registration declares a phase together with its scheduling priority.
// Lower priorities run first when several phases are runnable.
type Registration struct {
	Phase    Phase
	Priority int
}

// Sequence orders the registered phases so that every phase's required
// conditions are established by the phases before it. Scheduling is greedy:
// at each step the runnable phase with the lowest (priority, name) runs,
// skipping phases that would withdraw a condition a later phase needs and
// nothing left can restore. A phase's invalidated conditions are withdrawn
// before its own are added. When the greedy pass dead-ends, a bounded
// depth-first search over the same preference order looks for any valid
// order before giving up.
//
// A phase set that cannot be ordered yields a *SequencingError wrapped as an
// assertion failure.
func Sequence(regs []Registration) ([]Phase, error) {
	remaining := make([]Registration, 0, len(regs))
	seen := make(map[string]bool, len(regs))
	for _, r := range regs {
		if r.Phase == nil {
			return nil, errors.AssertionFailedf("nil phase in registration table")
		}
		name := r.Phase.Name()
		if seen[name] {
			return nil, errors.AssertionFailedf("phase %q registered twice", name)
		}
		seen[name] = true
		remaining = append(remaining, r)
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		if remaining[i].Priority != remaining[j].Priority {
			return remaining[i].Priority < remaining[j].Priority
		}
		return remaining[i].Phase.Name() < remaining[j].Phase.Name()
	})
	sorted := append([]Registration(nil), remaining...)

	established := make(map[string]bool)
	order := make([]Phase, 0, len(remaining))
	for len(remaining) > 0 {
		next := pick(remaining, established)
		if next < 0 {
			if found := search(sorted); found != nil {
				return found, nil
			}
			return nil, errors.WithAssertionFailure(sequencingError(remaining, regs, established))
		}

		p := remaining[next].Phase
		established = apply(p, established)
		order = append(order, p)
		remaining = append(remaining[:next:next], remaining[next+1:]...)
	}
	return order, nil
}

// pick returns the index of the first runnable phase that strands nothing,
// or of the first runnable phase when every one does. It returns -1 when no
// phase is runnable.
func pick(remaining []Registration, established map[string]bool) int {
	first := -1
	for i, r := range remaining {
		if !satisfied(r.Phase, established) {
			continue
		}
		if first < 0 {
			first = i
		}
		if !strands(i, remaining) {
			return i
		}
	}
	return first
}

// strands reports whether running remaining[i] withdraws a condition that
// another remaining phase requires and no other remaining phase establishes.
func strands(i int, remaining []Registration) bool {
	p := remaining[i].Phase
	for _, c := range p.Invalidates() {
		if hasCondition(p.Establishes(), c.Name) {
			continue
		}
		needed, restored := false, false
		for j, r := range remaining {
			if j == i {
				continue
			}
			needed = needed || hasCondition(r.Phase.Requires(), c.Name)
			restored = restored || hasCondition(r.Phase.Establishes(), c.Name)
		}
		if needed && !restored {
			return true
		}
	}
	return false
}

// searchBudget bounds the number of states the fallback search visits.
const searchBudget = 1 << 14

// search returns the first valid order in (priority, name) preference, or
// nil when there is none or the budget runs out.
func search(regs []Registration) []Phase {
	var (
		budget = searchBudget
		failed = make(map[string]bool)
		done   = make([]bool, len(regs))
		order  = make([]Phase, 0, len(regs))
	)
	var visit func(established map[string]bool) bool
	visit = func(established map[string]bool) bool {
		if len(order) == len(regs) {
			return true
		}
		key := stateKey(done, established)
		if failed[key] || budget <= 0 {
			return false
		}
		budget--
		for i, r := range regs {
			if done[i] || !satisfied(r.Phase, established) {
				continue
			}
			done[i] = true
			order = append(order, r.Phase)
			if visit(apply(r.Phase, established)) {
				return true
			}
			order = order[:len(order)-1]
			done[i] = false
		}
		failed[key] = true
		return false
	}
	if visit(map[string]bool{}) {
		return order
	}
	return nil
}

// apply returns the conditions holding after p runs.
func apply(p Phase, established map[string]bool) map[string]bool {
	out := make(map[string]bool, len(established)+len(p.Establishes()))
	for c := range established {
		out[c] = true
	}
	for _, c := range p.Invalidates() {
		delete(out, c.Name)
	}
	for _, c := range p.Establishes() {
		out[c.Name] = true
	}
	return out
}

func stateKey(done []bool, established map[string]bool) string {
	var sb strings.Builder
	for _, d := range done {
		if d {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	conds := make([]string, 0, len(established))
	for c := range established {
		conds = append(conds, c)
	}
	sort.Strings(conds)
	for _, c := range conds {
		sb.WriteByte('|')
		sb.WriteString(c)
	}
	return sb.String()
}

func hasCondition(conds []Condition, name string) bool {
	for _, c := range conds {
		if c.Name == name {
			return true
		}
	}
	return false
}

// satisfied reports whether all of p's requirements are established.
func satisfied(p Phase, established map[string]bool) bool {
	for _, c := range p.Requires() {
		if !established[c.Name] {
			return false
		}
	}
	return true
}

func sequencingError(remaining, all []Registration, established map[string]bool) *SequencingError {
	producible := make(map[string]bool)
	for _, r := range all {
		for _, c := range r.Phase.Establishes() {
			producible[c.Name] = true
		}
	}

	unsatisfied := make(map[string]bool)
	for _, r := range remaining {
		for _, c := range r.Phase.Requires() {
			if !established[c.Name] {
				unsatisfied[c.Name] = true
			}
		}
	}

	err := &SequencingError{}
	for name := range unsatisfied {
		err.Unsatisfied = append(err.Unsatisfied, name)
		if !producible[name] {
			err.Unestablished = append(err.Unestablished, name)
		}
	}
	sort.Strings(err.Unsatisfied)
	sort.Strings(err.Unestablished)
	err.Cycle = findCycle(remaining, established)
	return err
}

// findCycle searches the dependency graph of the remaining phases for a
// strongly connected component that is a genuine cycle. An edge a -> b
// means b requires an unestablished condition that a establishes.
func findCycle(remaining []Registration, established map[string]bool) []string {
	names := make([]string, len(remaining))
	for i, r := range remaining {
		names[i] = r.Phase.Name()
	}
	sort.Strings(names)

	byName := make(map[string]Phase, len(remaining))
	for _, r := range remaining {
		byName[r.Phase.Name()] = r.Phase
	}
	edges := make(map[string][]string, len(names))
	for _, a := range names {
		provides := make(map[string]bool)
		for _, c := range byName[a].Establishes() {
			provides[c.Name] = true
		}
		for _, b := range names {
			for _, c := range byName[b].Requires() {
				if !established[c.Name] && provides[c.Name] {
					edges[a] = append(edges[a], b)
					break
				}
			}
		}
	}

	for _, scc := range tarjan(names, edges) {
		if len(scc) > 1 || selfLoop(scc[0], edges) {
			sort.Strings(scc)
			return scc
		}
	}
	return nil
}

func selfLoop(v string, edges map[string][]string) bool {
	for _, w := range edges[v] {
		if w == v {
			return true
		}
	}
	return false
}

// tarjan returns the strongly connected components of the graph in the
// order Tarjan's algorithm completes them.
func tarjan(vertices []string, edges map[string][]string) [][]string {
	var (
		index   = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		stack   []string
		next    int
		out     [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, visited := index[w]; !visited {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && index[w] < lowlink[v] {
				lowlink[v] = index[w]
			}
		}

		if lowlink[v] == index[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			out = append(out, scc)
		}
	}

	for _, v := range vertices {
		if _, visited := index[v]; !visited {
			strongConnect(v)
		}
	}
	return out
}
