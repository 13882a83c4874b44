// Package certainty implements the Certainty Factor diagnostic engine:
// parallel forward chaining over disease/symptom rules with CF arithmetic.
package certainty

import (
	"math"
	"strconv"
	"strings"

	"github.com/sipadi/padi/internal/domain"
)

// neutralCertainty is used for labels and values that carry no usable signal.
const neutralCertainty = 0.5

var labelValues = map[string]float64{
	domain.LabelPasti:            1.0,
	domain.LabelHampirPasti:      0.8,
	domain.LabelKemungkinanBesar: 0.6,
	domain.LabelMungkin:          0.4,
	domain.LabelTidakTahu:        0.2,
}

// LabelValue returns the numeric value of a linguistic certainty label.
func LabelValue(label string) (float64, bool) {
	v, ok := labelValues[strings.ToLower(label)]
	return v, ok
}

// Normalize resolves loosely typed certainty inputs to values in [0,1],
// keyed by symptom id. Keys that are not integers are dropped. It never fails.
func Normalize(raw map[string]domain.Certainty) map[int64]float64 {
	out := make(map[int64]float64, len(raw))
	for key, c := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			continue
		}
		out[id] = clamp01(resolve(c))
	}
	return out
}

func resolve(c domain.Certainty) float64 {
	switch c.Kind {
	case domain.CertaintyNumeric:
		if math.IsNaN(c.Number) {
			return neutralCertainty
		}
		return c.Number
	case domain.CertaintyLabel:
		if v, ok := LabelValue(c.Label); ok {
			return v
		}
		return neutralCertainty
	default:
		return neutralCertainty
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Options returns the labels a user can pick when asked for certainty,
// with their values. "tidak_tahu" is accepted as input but not offered.
func Options() map[string]float64 {
	return map[string]float64{
		domain.LabelPasti:            labelValues[domain.LabelPasti],
		domain.LabelHampirPasti:      labelValues[domain.LabelHampirPasti],
		domain.LabelKemungkinanBesar: labelValues[domain.LabelKemungkinanBesar],
		domain.LabelMungkin:          labelValues[domain.LabelMungkin],
	}
}
