package certainty

import "math"

// Combine merges two certainty factors with the classic MYCIN rule.
// Full belief against full disbelief, Combine(1, -1), has no defined
// value and returns 0.
func Combine(a, b float64) float64 {
	switch {
	case a > 0 && b > 0:
		return a + b*(1-a)
	case a < 0 && b < 0:
		return a + b*(1+a)
	}
	denom := 1 - math.Min(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return (a + b) / denom
}

// Fold combines values left to right, starting from the first one.
// It returns false for an empty slice.
func Fold(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc = Combine(acc, v)
	}
	return acc, true
}
