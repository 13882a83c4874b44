package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// CertaintyKind tags which variant of Certainty is populated.
type CertaintyKind int

const (
	CertaintyOther CertaintyKind = iota
	CertaintyNumeric
	CertaintyLabel
)

// Linguistic certainty labels a user can pick instead of a number.
const (
	LabelPasti            = "pasti"
	LabelHampirPasti      = "hampir_pasti"
	LabelKemungkinanBesar = "kemungkinan_besar"
	LabelMungkin          = "mungkin"
	LabelTidakTahu        = "tidak_tahu"
)

// Certainty is a user-asserted confidence for one symptom.
// It arrives loosely typed: a number, a label, or anything else.
type Certainty struct {
	Kind   CertaintyKind
	Number float64
	Label  string
}

// NumericCertainty builds a numeric certainty.
func NumericCertainty(v float64) Certainty {
	return Certainty{Kind: CertaintyNumeric, Number: v}
}

// LabelCertainty builds a label certainty.
func LabelCertainty(label string) Certainty {
	return Certainty{Kind: CertaintyLabel, Label: label}
}

// UnmarshalJSON never fails on well-formed JSON: unknown shapes become CertaintyOther.
// Booleans count as the numbers 1 and 0. Numbers beyond float64 range become ±Inf.
func (c *Certainty) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Certainty{}
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
		c.Kind = CertaintyLabel
		c.Label = label
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		num, err := strconv.ParseFloat(string(data), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return err
		}
		*c = NumericCertainty(num)
	case 't':
		*c = NumericCertainty(1)
	case 'f':
		*c = NumericCertainty(0)
	}
	return nil
}

// MarshalJSON writes the certainty back in the shape it was received.
func (c Certainty) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CertaintyNumeric:
		switch {
		case math.IsInf(c.Number, 1):
			return []byte("1e999"), nil
		case math.IsInf(c.Number, -1):
			return []byte("-1e999"), nil
		}
		return json.Marshal(c.Number)
	case CertaintyLabel:
		return json.Marshal(c.Label)
	default:
		return []byte("null"), nil
	}
}
