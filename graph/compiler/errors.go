package compiler

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-graph/graph/ast"
)

// SemanticError reports a query that is well formed but meaningless, such as
// a variable used both as a node and as a relationship. It ends the current
// compilation only.
type SemanticError struct {
	Pos   ast.Position
	Msg   string
	Phase string
}

func (e *SemanticError) Error() string {
	if !e.Pos.IsKnown() {
		return e.Msg
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Pos.Location())
}

func semanticErrorf(pos ast.Position, format string, args ...interface{}) *SemanticError {
	return &SemanticError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// CompileError is returned by Compile for any failure inside a phase,
// including cancellation between phases. The cause is reachable with
// errors.As and errors.Is.
type CompileError struct {
	Phase string
	Cause error
}

func (e *CompileError) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("compile: %v", e.Cause)
	}
	return fmt.Sprintf("compile: phase %s: %v", e.Phase, e.Cause)
}

func (e *CompileError) Unwrap() error { return e.Cause }

// SequencingError reports a phase set that cannot be totally ordered. It is
// a configuration defect and is always returned wrapped as an assertion
// failure.
type SequencingError struct {
	// Unsatisfied holds the required conditions no remaining phase could
	// get established.
	Unsatisfied []string
	// Unestablished is the subset of Unsatisfied that no phase in the set
	// establishes at all.
	Unestablished []string
	// Cycle names the phases of a circular requirement, if one exists.
	Cycle []string
}

func (e *SequencingError) Error() string {
	var sb strings.Builder
	sb.WriteString("cannot sequence phases: unsatisfied conditions [")
	sb.WriteString(strings.Join(e.Unsatisfied, ", "))
	sb.WriteByte(']')
	if len(e.Unestablished) > 0 {
		sb.WriteString("; never established [")
		sb.WriteString(strings.Join(e.Unestablished, ", "))
		sb.WriteByte(']')
	}
	if len(e.Cycle) > 0 {
		sb.WriteString("; cycle among phases [")
		sb.WriteString(strings.Join(e.Cycle, ", "))
		sb.WriteByte(']')
	}
	return sb.String()
}
