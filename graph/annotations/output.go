package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
	renderer *PatternRenderer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}
	return NewOutputFormatterWithColor(w, useColor)
}

// NewOutputFormatterWithColor creates a formatter with color forced on or off.
func NewOutputFormatterWithColor(w io.Writer, useColor bool) *OutputFormatter {
	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
		renderer: NewPatternRenderer(useColor),
	}
}

// Handle implements the Handler interface - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case CompileBegin:
		return fmt.Sprintf("%s Compile: %s", latency, truncateQuery(stringOf(event.Data["query"])))

	case CompileSequence:
		phases, _ := event.Data["phases"].([]string)
		return fmt.Sprintf("%s %s Phase order: %s",
			latency, f.colorize("===", color.FgYellow), strings.Join(phases, " → "))

	case PhaseBegin:
		return fmt.Sprintf("%s %s %s starting",
			latency, f.colorize("---", color.FgYellow), stringOf(event.Data["phase"]))

	case PhaseComplete:
		suffix := ""
		if changed, _ := event.Data["changed"].(bool); changed {
			suffix = " (rewrote query)"
		}
		return fmt.Sprintf("%s %s %s complete%s",
			latency, f.colorize("---", color.FgGreen), stringOf(event.Data["phase"]), suffix)

	case CompileEstimate:
		card, _ := event.Data["cardinality"].(float64)
		line := fmt.Sprintf("%s %s", latency,
			f.renderer.RenderElement(stringOf(event.Data["variable"]), card))
		if sel, ok := event.Data["selectivity"].(float64); ok && sel < 1 {
			line += fmt.Sprintf(" selectivity=%.4g", sel)
		}
		if idx := stringOf(event.Data["index"]); idx != "" {
			line += " via " + f.colorize(idx, color.FgCyan)
		}
		return line

	case CompileComplete:
		if success, _ := event.Data["success"].(bool); !success {
			return fmt.Sprintf("%s %s Compile failed: %v",
				latency, f.colorize("✗", color.FgRed), event.Data["error"])
		}
		card, _ := event.Data["cardinality"].(float64)
		phases, _ := event.Data["phases"].(int)
		return fmt.Sprintf("%s %s Compile done in %d phases, %s",
			latency, f.colorize("===", color.FgGreen), phases, f.renderer.RenderCardinality(card))

	case StatsFetched:
		return fmt.Sprintf("%s Statistics: %v nodes, %v relationships, %v labels",
			latency, event.Data["nodes"], event.Data["relationships"], event.Data["labels"])
	}

	if event.IsError() {
		where := ""
		if pos := stringOf(event.Data["position"]); pos != "" {
			where = " at " + pos
		}
		phase := ""
		if p := stringOf(event.Data["phase"]); p != "" {
			phase = " [" + p + "]"
		}
		return fmt.Sprintf("%s %s %s%s%s: %v", latency, f.colorize("✗", color.FgRed),
			event.Name, phase, where, event.Data["error"])
	}

	return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
}

// formatLatency formats a duration with color based on magnitude.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	// Use microseconds for sub-millisecond durations
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 5:
		return color.GreenString(s)
	case ms < 50:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func stringOf(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// truncateQuery shortens long queries for display.
func truncateQuery(query string) string {
	// Remove extra whitespace
	query = strings.Join(strings.Fields(query), " ")

	const maxLen = 100
	if len(query) <= maxLen {
		return query
	}

	return query[:maxLen-3] + "..."
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stderr).Handle
}

// isTerminal checks if the file descriptor is a terminal.
func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
