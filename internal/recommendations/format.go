package recommendations

import (
	"math"
	"strconv"
)

// dec renders a decimal sensor value with the two-place scale it is stored
// with, e.g. 27.5 -> "27.50".
func dec(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// optFloat returns the pointed-to value, or nil so the metadata key encodes
// as JSON null.
func optFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
