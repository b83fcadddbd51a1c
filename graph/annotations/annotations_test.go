package annotations

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCollectorDisabled(t *testing.T) {
	var nilCollector *Collector
	assert.False(t, nilCollector.Enabled())
	nilCollector.Add(Event{Name: CompileBegin})
	nilCollector.AddTiming(CompileComplete, time.Now(), nil)
	assert.Nil(t, nilCollector.Events())
	nilCollector.Reset()

	c := NewCollector(nil)
	assert.False(t, c.Enabled())
	c.Add(Event{Name: CompileBegin})
	assert.Empty(t, c.Events())
}

func TestCollectorRecordsAndForwards(t *testing.T) {
	var seen []string
	c := NewCollector(func(e Event) { seen = append(seen, e.Name) })
	require.True(t, c.Enabled())

	start := time.Now().Add(-time.Millisecond)
	c.Add(Event{Name: CompileBegin})
	c.AddTiming(PhaseComplete, start, map[string]interface{}{"phase": "normalize"})
	c.AddTiming(PhaseComplete, start, map[string]interface{}{"phase": "infer-labels"})

	assert.Equal(t, []string{CompileBegin, PhaseComplete, PhaseComplete}, seen)
	events := c.Events()
	require.Len(t, events, 3)
	assert.True(t, events[1].Latency >= time.Millisecond)
	assert.Equal(t, events[1].End.Sub(events[1].Start), events[1].Latency)
	assert.Len(t, c.Named(PhaseComplete), 2)

	// The copy is detached from the collector.
	events[0].Name = "mutated"
	assert.Equal(t, CompileBegin, c.Events()[0].Name)

	c.Reset()
	assert.Empty(t, c.Events())
}

func TestMultiAndFilter(t *testing.T) {
	assert.Nil(t, Multi())
	assert.Nil(t, Multi(nil, nil))
	assert.Nil(t, Filter(nil, "error/"))

	var a, b []string
	h := Multi(func(e Event) { a = append(a, e.Name) }, nil, func(e Event) { b = append(b, e.Name) })
	errorsOnly := Filter(h, "error/")

	errorsOnly(Event{Name: CompileBegin})
	errorsOnly(Event{Name: ErrorSemantic})
	errorsOnly(Event{Name: ErrorStats})

	assert.Equal(t, []string{ErrorSemantic, ErrorStats}, a)
	assert.Equal(t, a, b)
}

func TestIsError(t *testing.T) {
	assert.True(t, Event{Name: ErrorCompile}.IsError())
	assert.False(t, Event{Name: CompileComplete}.IsError())
}

func TestOutputFormatterPlain(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatterWithColor(&buf, false)

	f.Handle(Event{Name: CompileBegin, Latency: 1500 * time.Nanosecond,
		Data: map[string]interface{}{"query": "MATCH (n:Person)\n  RETURN n"}})
	f.Handle(Event{Name: CompileSequence,
		Data: map[string]interface{}{"phases": []string{"normalize", "infer-labels"}}})
	f.Handle(Event{Name: PhaseComplete, Latency: 2500 * time.Microsecond,
		Data: map[string]interface{}{"phase": "normalize", "changed": true}})
	f.Handle(Event{Name: CompileEstimate,
		Data: map[string]interface{}{"variable": "n", "cardinality": 1234.0, "selectivity": 0.5, "index": "person_name"}})
	f.Handle(Event{Name: CompileComplete,
		Data: map[string]interface{}{"success": true, "cardinality": 12.5, "phases": 7}})
	f.Handle(Event{Name: ErrorSemantic,
		Data: map[string]interface{}{"error": "undefined variable m", "phase": "semantic-analysis", "position": "1:8"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "[1µs] Compile: MATCH (n:Person) RETURN n", lines[0])
	assert.Equal(t, "[0µs] === Phase order: normalize → infer-labels", lines[1])
	assert.Equal(t, "[2.5ms] --- normalize complete (rewrote query)", lines[2])
	assert.Equal(t, "[0µs] Estimate(n, 1,234 rows) selectivity=0.5 via person_name", lines[3])
	assert.Equal(t, "[0µs] === Compile done in 7 phases, 12.5 rows", lines[4])
	assert.Equal(t, "[0µs] ✗ error/semantic [semantic-analysis] at 1:8: undefined variable m", lines[5])
}

func TestOutputFormatterFailure(t *testing.T) {
	f := NewOutputFormatterWithColor(&bytes.Buffer{}, false)
	out := f.Format(Event{Name: CompileComplete,
		Data: map[string]interface{}{"success": false, "error": "boom"}})
	assert.Equal(t, "[0µs] ✗ Compile failed: boom", out)
}

func TestTruncateQuery(t *testing.T) {
	long := strings.Repeat("x", 150)
	got := truncateQuery(long)
	assert.Len(t, got, 100)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "a b", truncateQuery("  a \n\t b "))
}

func TestFormatRows(t *testing.T) {
	assert.Equal(t, "0", FormatRows(0))
	assert.Equal(t, "0.25", FormatRows(0.25))
	assert.Equal(t, "1,000", FormatRows(1000))
	assert.Equal(t, "1,235", FormatRows(1234.6))
	assert.Equal(t, "2 P", FormatRows(2e15))
}

func TestLogrusHandler(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := NewLogrusHandler(logger)

	h(Event{Name: PhaseComplete, Latency: time.Millisecond,
		Data: map[string]interface{}{"phase": "normalize"}})
	h(Event{Name: ErrorSemantic, Data: map[string]interface{}{"error": "bad"}})
	h(Event{Name: CompileComplete, Data: map[string]interface{}{"success": true}})

	entries := hook.AllEntries()
	require.Len(t, entries, 3)

	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, PhaseComplete, entries[0].Data["event"])
	assert.Equal(t, "normalize", entries[0].Data["phase"])
	assert.Equal(t, "1ms", entries[0].Data["latency"])

	assert.Equal(t, logrus.ErrorLevel, entries[1].Level)
	assert.Equal(t, "bad", entries[1].Data["error"])

	assert.Equal(t, logrus.InfoLevel, entries[2].Level)
	assert.Equal(t, "compilation complete", entries[2].Message)
}

func TestTracingHandler(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	h := NewTracingHandler(context.Background(), tp.Tracer("test"))
	t0 := time.Now()
	h(Event{Name: CompileBegin, Start: t0, End: t0, Data: map[string]interface{}{"query": "MATCH (n) RETURN n"}})
	h(Event{Name: PhaseComplete, Start: t0, End: t0.Add(time.Millisecond),
		Data: map[string]interface{}{"phase": "normalize", "changed": false}})
	h(Event{Name: CompileEstimate, Data: map[string]interface{}{"variable": "n", "cardinality": 10.0}})
	h(Event{Name: ErrorSemantic, Data: map[string]interface{}{"error": "bad"}})
	h(Event{Name: CompileComplete, Start: t0, End: t0.Add(2 * time.Millisecond),
		Data: map[string]interface{}{"success": false, "error": "bad"}})

	spans := sr.Ended()
	require.Len(t, spans, 2)

	phase, root := spans[0], spans[1]
	assert.Equal(t, "graph.phase normalize", phase.Name())
	assert.Equal(t, "graph.compile", root.Name())
	assert.Equal(t, root.SpanContext().SpanID(), phase.Parent().SpanID())
	assert.Equal(t, time.Millisecond, phase.EndTime().Sub(phase.StartTime()))
	assert.Equal(t, 2*time.Millisecond, root.EndTime().Sub(root.StartTime()))
	assert.Equal(t, codes.Error, root.Status().Code)

	var names []string
	for _, e := range root.Events() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"estimate", "exception"}, names)
}
