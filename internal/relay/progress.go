package relay

import "math"

// NormalizeProgress converts an engine progress value to a whole percent in
// [0,100]. Values up to 1 are fractions, larger values are percentages.
func NormalizeProgress(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	if v <= 1 {
		v *= 100
	}
	percent := math.Round(v)
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return int(percent)
}
