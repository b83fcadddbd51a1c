package stats

import (
	"fmt"
	"math"
)

// HistogramBucket holds the fraction of non-null values that fall in
// (previous UpperBound, UpperBound]. The first bucket starts at Histogram.Min.
type HistogramBucket struct {
	UpperBound float64 `json:"upper" yaml:"upper"`
	Fraction   float64 `json:"fraction" yaml:"fraction"`
}

// Histogram is a numeric summary of an indexed property. Bucket upper bounds
// must be increasing and fractions must sum to at most 1.
type Histogram struct {
	Min     float64           `json:"min" yaml:"min"`
	Buckets []HistogramBucket `json:"buckets" yaml:"buckets"`
}

// Validate checks bucket ordering and fraction totals.
func (h *Histogram) Validate() error {
	lower := h.Min
	total := 0.0
	for i, b := range h.Buckets {
		if b.UpperBound < lower {
			return fmt.Errorf("histogram bucket %d: upper bound %v below %v", i, b.UpperBound, lower)
		}
		if b.Fraction < 0 {
			return fmt.Errorf("histogram bucket %d: negative fraction", i)
		}
		total += b.Fraction
		lower = b.UpperBound
	}
	if total > 1+1e-9 {
		return fmt.Errorf("histogram fractions sum to %v", total)
	}
	return nil
}

// FractionBelow returns the estimated fraction of values less than v, linearly
// interpolating inside the bucket that contains v.
func (h *Histogram) FractionBelow(v float64) float64 {
	if h == nil || len(h.Buckets) == 0 || math.IsNaN(v) || v <= h.Min {
		return 0
	}
	lower := h.Min
	acc := 0.0
	for _, b := range h.Buckets {
		if v >= b.UpperBound {
			acc += b.Fraction
			lower = b.UpperBound
			continue
		}
		if width := b.UpperBound - lower; width > 0 {
			acc += b.Fraction * (v - lower) / width
		}
		return acc
	}
	return acc
}

// Total returns the fraction of values covered by the histogram.
func (h *Histogram) Total() float64 {
	if h == nil {
		return 0
	}
	total := 0.0
	for _, b := range h.Buckets {
		total += b.Fraction
	}
	return total
}

// FractionBetween returns the estimated fraction of values in [lo, hi). Use
// math.Inf for an open side.
func (h *Histogram) FractionBetween(lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	f := h.FractionBelow(hi) - h.FractionBelow(lo)
	if f < 0 {
		return 0
	}
	return f
}
