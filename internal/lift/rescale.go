package lift

import (
	"fmt"
	"math"

	"goglm/domain/report"
)

// Rescale selects how univariate series are normalised for display
type Rescale string

const (
	RescaleNone      Rescale = "none"
	RescaleBaseLevel Rescale = "base_level"
	RescaleRatio     Rescale = "ratio"
)

// ParseRescale accepts the mode names plus an empty string for none
func ParseRescale(s string) (Rescale, error) {
	switch Rescale(s) {
	case "", RescaleNone:
		return RescaleNone, nil
	case RescaleBaseLevel, RescaleRatio:
		return Rescale(s), nil
	}
	return "", fmt.Errorf("unknown rescale mode %q", s)
}

// rescale divides each series by its value in the base row (base_level) or divides every
// series by the observed average of the same row (ratio). A zero or non-finite denominator
// gives 0. Base-level rescaling is skipped when no row holds the base value.
func rescale(rows []report.UnivariateRow, base int, mode Rescale) []report.UnivariateRow {
	switch mode {
	case RescaleBaseLevel:
		if base < 0 {
			return rows
		}
		ref := rows[base]
		out := make([]report.UnivariateRow, len(rows))
		for i, r := range rows {
			r.ObservedAverage = safeDiv(r.ObservedAverage, ref.ObservedAverage)
			r.FittedAverage = safeDiv(r.FittedAverage, ref.FittedAverage)
			r.BaseLevelPrediction = safeDiv(r.BaseLevelPrediction, ref.BaseLevelPrediction)
			out[i] = r
		}
		return out
	case RescaleRatio:
		out := make([]report.UnivariateRow, len(rows))
		for i, r := range rows {
			observed := r.ObservedAverage
			r.ObservedAverage = safeDiv(observed, observed)
			r.FittedAverage = safeDiv(r.FittedAverage, observed)
			r.BaseLevelPrediction = safeDiv(r.BaseLevelPrediction, observed)
			out[i] = r
		}
		return out
	}
	return rows
}

func safeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return 0
	}
	q := a / b
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}
