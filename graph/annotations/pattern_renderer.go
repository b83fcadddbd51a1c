package annotations

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// PatternRenderer pretty-prints pattern elements and their estimates.
type PatternRenderer struct {
	useColor bool
}

// NewPatternRenderer creates a new pattern renderer
func NewPatternRenderer(useColor bool) *PatternRenderer {
	return &PatternRenderer{useColor: useColor}
}

// RenderElement renders a pattern variable with its estimated row count.
func (r *PatternRenderer) RenderElement(variable string, rows float64) string {
	name := strings.TrimSpace(variable)
	if name == "" {
		name = "*"
	}
	if r.useColor {
		return fmt.Sprintf("%s%s%s%s",
			color.BlueString("Estimate("),
			color.CyanString(name),
			color.BlueString(", "),
			r.RenderCardinality(rows)+color.BlueString(")"))
	}
	return fmt.Sprintf("Estimate(%s, %s)", name, r.RenderCardinality(rows))
}

// RenderStep renders a relationship step and its estimate.
func (r *PatternRenderer) RenderStep(left, rel, right string, rows float64) string {
	arrow := fmt.Sprintf("(%s)-[%s]->(%s)", left, strings.TrimSpace(rel), right)
	if r.useColor {
		arrow = color.CyanString(arrow)
	}
	return fmt.Sprintf("%s → %s", arrow, r.RenderCardinality(rows))
}

// RenderCardinality formats an estimated row count, colored by size.
func (r *PatternRenderer) RenderCardinality(rows float64) string {
	text := FormatRows(rows) + " rows"
	if !r.useColor {
		return text
	}

	switch {
	case rows == 0:
		return color.RedString(text)
	case rows < 100:
		return color.GreenString(text)
	case rows < 100000:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

// FormatRows renders an estimate with thousands separators, keeping two
// decimals for small fractional estimates.
func FormatRows(rows float64) string {
	if rows >= 1e15 {
		return humanize.SIWithDigits(rows, 2, "")
	}
	if rows < 1000 && rows != float64(int64(rows)) {
		return humanize.FtoaWithDigits(rows, 2)
	}
	return humanize.Comma(int64(rows + 0.5))
}
