package model

import "math"

// Thresholds at which a dimension is considered fully stressed.
const (
	StressDOMNodes       = 2000
	StressResourcePerMin = 120
	StressErrorPerMin    = 5
	StressLongTaskPerMin = 3

	stressDimensionWeight = 25
)

// ComputeStress folds the current DOM size and rates into a 0-100 score. Each dimension
// contributes at most 25 points.
func ComputeStress(domNodes, resourcePerMin, errorPerMin, longTaskPerMin float64) int {
	score := subScore(domNodes, StressDOMNodes) +
		subScore(resourcePerMin, StressResourcePerMin) +
		subScore(errorPerMin, StressErrorPerMin) +
		subScore(longTaskPerMin, StressLongTaskPerMin)
	return int(math.Round(score))
}

// StressOf computes the stress score for totals and rates.
func StressOf(t Totals, r Rates) int {
	return ComputeStress(float64(t.DOMNodes), r.ResourcePerMin, r.ErrorPerMin, r.LongTaskPerMin)
}

func subScore(v, threshold float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return math.Min(v/threshold, 1) * stressDimensionWeight
}
