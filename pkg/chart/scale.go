package chart

import "math"

// autoRangePad is the fraction of the span added above and below auto ranges.
const autoRangePad = 0.08

// Range is the vertical value range mapped onto a surface.
type Range struct {
	Min float64
	Max float64
}

// FixedRange returns the range [min, max].
func FixedRange(min, max float64) Range {
	return Range{Min: min, Max: max}
}

// AutoRange computes a padded range over the finite values. A flat series is widened by 1
// in both directions; no finite values yields [0, 1].
func AutoRange(values []float64) Range {
	min := math.Inf(1)
	max := math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
	}

	if math.IsInf(min, 0) || math.IsInf(max, 0) {
		return Range{Min: 0, Max: 1}
	}
	if min == max {
		return Range{Min: min - 1, Max: max + 1}
	}
	pad := (max - min) * autoRangePad
	return Range{Min: min - pad, Max: max + pad}
}

// Y maps v onto a surface of the given height; higher values are nearer the top.
func (r Range) Y(v, height float64) float64 {
	span := math.Max(1e-9, r.Max-r.Min)
	return height - ((v-r.Min)/span)*height
}
