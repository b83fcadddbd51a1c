package annotations

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewTracingHandler turns the events of one compilation into spans: a
// "graph.compile" span covering the compilation with one child span per
// phase. Events carry their own timestamps, so spans are recorded after the
// fact with explicit start and end times.
func NewTracingHandler(ctx context.Context, tracer trace.Tracer) Handler {
	t := &tracingHandler{ctx: ctx, tracer: tracer}
	return t.handle
}

type tracingHandler struct {
	ctx    context.Context
	tracer trace.Tracer

	mu   sync.Mutex
	root trace.Span
}

func (t *tracingHandler) handle(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Name {
	case CompileBegin:
		_, t.root = t.tracer.Start(t.ctx, "graph.compile", trace.WithTimestamp(event.Start))
		t.root.SetAttributes(
			attribute.String("graph.query", stringOf(event.Data["query"])),
			attribute.String("graph.fingerprint", stringOf(event.Data["fingerprint"])),
		)

	case PhaseComplete:
		parent := t.ctx
		if t.root != nil {
			parent = trace.ContextWithSpan(t.ctx, t.root)
		}
		_, span := t.tracer.Start(parent, "graph.phase "+stringOf(event.Data["phase"]),
			trace.WithTimestamp(event.Start))
		span.SetAttributes(attribute.String("graph.phase", stringOf(event.Data["phase"])))
		if changed, ok := event.Data["changed"].(bool); ok {
			span.SetAttributes(attribute.Bool("graph.phase.changed", changed))
		}
		span.End(trace.WithTimestamp(event.End))

	case CompileEstimate:
		if t.root == nil {
			return
		}
		attrs := []attribute.KeyValue{attribute.String("graph.variable", stringOf(event.Data["variable"]))}
		if card, ok := event.Data["cardinality"].(float64); ok {
			attrs = append(attrs, attribute.Float64("graph.cardinality", card))
		}
		if idx := stringOf(event.Data["index"]); idx != "" {
			attrs = append(attrs, attribute.String("graph.index", idx))
		}
		t.root.AddEvent("estimate", trace.WithAttributes(attrs...))

	case CompileComplete:
		if t.root == nil {
			return
		}
		if card, ok := event.Data["cardinality"].(float64); ok {
			t.root.SetAttributes(attribute.Float64("graph.cardinality", card))
		}
		if success, _ := event.Data["success"].(bool); !success {
			t.root.SetStatus(codes.Error, stringOf(event.Data["error"]))
		}
		t.root.End(trace.WithTimestamp(event.End))
		t.root = nil

	default:
		if event.IsError() && t.root != nil {
			t.root.RecordError(fmt.Errorf("%s: %v", event.Name, event.Data["error"]))
		}
	}
}
