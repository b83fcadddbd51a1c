package compiler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-graph/graph/annotations"
	"github.com/wbrown/janus-graph/graph/ast"
	"github.com/wbrown/janus-graph/graph/planner"
	"github.com/wbrown/janus-graph/graph/semantics"
	"github.com/wbrown/janus-graph/graph/stats"
)

// CompiledQuery is the result of a successful compilation.
type CompiledQuery struct {
	// Query is the rewritten, normalized AST.
	Query     *ast.Query
	Semantics *semantics.Table
	Labels    semantics.LabelInfo
	RelTypes  semantics.RelTypeInfo
	Graph     *planner.QueryGraph
	// Estimates is nil when estimation is disabled.
	Estimates *planner.Estimates
	// Order lists the phases that ran.
	Order []string
	// Fingerprint identifies the normalized query; equal fingerprints mean
	// equal compilations against the same statistics.
	Fingerprint string
}

// Cardinality returns the estimated row count, or 0 without estimates.
func (q *CompiledQuery) Cardinality() float64 {
	if q.Estimates == nil {
		return 0
	}
	return float64(q.Estimates.Total)
}

// Compiler holds a validated phase sequence. It keeps no per-query state
// and may be shared between goroutines.
type Compiler struct {
	options  Options
	pipeline *Pipeline
}

// New creates a compiler over regs, or over the default phase table when
// none are given. Sequencing the phases here is the startup self-check: an
// unorderable phase set fails with an assertion error wrapping a
// *SequencingError.
func New(opts Options, regs ...Registration) (*Compiler, error) {
	if len(regs) == 0 {
		regs = RegistrationsFor(opts)
	}
	pipeline, err := NewPipeline(regs)
	if err != nil {
		return nil, err
	}
	return &Compiler{options: opts, pipeline: pipeline}, nil
}

// MustNew is like New but panics on a phase set that cannot be ordered.
func MustNew(opts Options, regs ...Registration) *Compiler {
	c, err := New(opts, regs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Options returns the compiler options.
func (c *Compiler) Options() Options { return c.options }

// Phases returns the phase names in execution order.
func (c *Compiler) Phases() []string { return c.pipeline.Names() }

func (c *Compiler) String() string { return describe(c.pipeline.Phases()) }

// CompileOption adjusts the options of a single compilation.
type CompileOption func(*Options)

// WithHandler sends one compilation's annotation events to h in place of
// the compiler's handler.
func WithHandler(h annotations.Handler) CompileOption {
	return func(o *Options) { o.Handler = h }
}

// Compile compiles q against provider. A nil provider means no statistics.
func (c *Compiler) Compile(ctx context.Context, q *ast.Query, provider stats.Provider, opts ...CompileOption) (*CompiledQuery, error) {
	if q == nil {
		return nil, errors.New("compile: nil query")
	}
	options := c.options
	for _, o := range opts {
		o(&options)
	}
	if provider == nil {
		provider = stats.Empty
	}
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	collector := annotations.NewCollector(options.Handler)
	start := time.Now()
	collector.Add(annotations.Event{
		Name:  annotations.CompileBegin,
		Start: start,
		End:   start,
		Data: map[string]interface{}{
			"query":       ast.Format(q),
			"fingerprint": ast.Fingerprint(q),
		},
	})
	collector.Add(annotations.Event{
		Name:  annotations.CompileSequence,
		Start: start,
		End:   start,
		Data:  map[string]interface{}{"phases": c.pipeline.Names()},
	})

	cctx := Context{Stats: provider, Options: options, Annotations: collector}
	state, err := c.pipeline.Run(ctx, cctx, State{Query: q, Semantics: semantics.NewTable()})
	if err != nil {
		collector.AddTiming(annotations.CompileComplete, start, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return nil, err
	}

	out := &CompiledQuery{
		Query:       state.Query,
		Semantics:   state.Semantics,
		Labels:      state.Labels,
		RelTypes:    state.RelTypes,
		Graph:       state.Graph,
		Estimates:   state.Estimates,
		Order:       c.pipeline.Names(),
		Fingerprint: ast.Fingerprint(state.Query),
	}
	if out.Semantics != nil {
		out.Semantics = out.Semantics.Freeze()
	}

	collector.AddTiming(annotations.CompileComplete, start, map[string]interface{}{
		"success":     true,
		"cardinality": out.Cardinality(),
		"phases":      len(out.Order),
	})
	return out, nil
}

// Compile compiles q with the default options. With no registrations the
// built-in phase table is used.
func Compile(ctx context.Context, q *ast.Query, provider stats.Provider, phases ...Registration) (*CompiledQuery, error) {
	c, err := New(DefaultOptions(), phases...)
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx, q, provider)
}

// describe renders a phase list for messages.
func describe(phases []Phase) string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.Name()
	}
	return fmt.Sprintf("[%s]", strings.Join(names, " → "))
}
