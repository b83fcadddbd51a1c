// Package annotations provides a low-overhead event system for observing
// query compilation: phase timings, estimates and failures.
package annotations

import (
	"strings"
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Compilation lifecycle
	CompileBegin    = "compile/begin"
	CompileSequence = "compile/sequence"
	CompileEstimate = "compile/estimate"
	CompileComplete = "compile/complete"

	// Phase execution
	PhaseBegin    = "compile/phase.begin"
	PhaseComplete = "compile/phase.complete"

	// Statistics
	StatsFetched = "stats/fetched"

	// Errors
	ErrorCompile  = "error/compile"
	ErrorSemantic = "error/semantic"
	ErrorStats    = "error/stats"
)

// Event represents a single annotation event during compilation.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Event-specific data
	Caller  string                 // Optional: file:line where event occurred
}

// IsError reports whether the event belongs to the error/ hierarchy.
func (e Event) IsError() bool {
	return strings.HasPrefix(e.Name, "error/")
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Multi fans an event out to every non-nil handler in order.
func Multi(handlers ...Handler) Handler {
	var hs []Handler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	switch len(hs) {
	case 0:
		return nil
	case 1:
		return hs[0]
	}
	return func(event Event) {
		for _, h := range hs {
			h(event)
		}
	}
}

// Filter passes on only events whose name starts with one of prefixes.
func Filter(h Handler, prefixes ...string) Handler {
	if h == nil {
		return nil
	}
	return func(event Event) {
		for _, p := range prefixes {
			if strings.HasPrefix(event.Name, p) {
				h(event)
				return
			}
		}
	}
}

// Collector accumulates events during one compilation. A nil *Collector and
// a collector without a handler both discard events cheaply.
type Collector struct {
	enabled bool
	handler Handler

	mu     sync.Mutex
	events []Event
}

// NewCollector creates a new annotation collector.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 16),
	}
}

// Enabled reports whether events are being recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	if c == nil {
		return nil
	}
	return c.handler
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Named returns the collected events called name.
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the collector for reuse.
// Thread-safe for concurrent access.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
