// Package lift bins scored rows into lift charts and actual-vs-expected curves.
package lift

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/report"
)

// DefaultBins is the lift chart bin count when the caller gives none
const DefaultBins = 8

// Observations are the per-row inputs of a chart. A nil Exposure weighs every row 1.
type Observations struct {
	Predictions []float64
	Targets     []float64
	Exposure    []float64
}

func (o Observations) validate(modelID core.ModelID) ([]float64, error) {
	n := len(o.Predictions)
	if len(o.Targets) != n {
		return nil, core.NewConfigurationError(modelID, fmt.Sprintf("%d predictions for %d targets", n, len(o.Targets)))
	}
	return checkWeights(modelID, o.Exposure, n)
}

// checkWeights defaults nil weights to 1 and rejects negative or non-finite ones
func checkWeights(modelID core.ModelID, weights []float64, n int) ([]float64, error) {
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != n {
		return nil, core.NewConfigurationError(modelID, fmt.Sprintf("%d exposure values for %d rows", len(weights), n))
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, core.NewInvalidValueError("exposure", i, "weights must be finite and non-negative")
		}
	}
	return weights, nil
}

// Chart sorts rows by prediction and cuts them into bins of equal total exposure. Bin k holds
// the rows whose cumulative exposure share falls in (k/n, (k+1)/n]; only populated bins are
// returned.
func Chart(modelID core.ModelID, partition dataset.Partition, obs Observations, bins int) ([]report.LiftRow, error) {
	if bins < 1 {
		bins = DefaultBins
	}
	weights, err := obs.validate(modelID)
	if err != nil {
		return nil, err
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return nil, core.NewZeroExposureError(modelID, "exposure")
	}

	n := len(obs.Predictions)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return obs.Predictions[order[a]] < obs.Predictions[order[b]]
	})

	scores := make([]float64, n)
	targets := make([]float64, n)
	w := make([]float64, n)
	for k, i := range order {
		scores[k] = obs.Predictions[i]
		targets[k] = obs.Targets[i]
		w[k] = weights[i]
	}

	// bin boundaries are contiguous because cumulative exposure never decreases
	assign := make([]int, n)
	cum := 0.0
	for k := range w {
		cum += w[k]
		b := int(math.Ceil(cum/total*float64(bins))) - 1
		if b < 0 {
			b = 0
		}
		if b > bins-1 {
			b = bins - 1
		}
		assign[k] = b
	}

	var rows []report.LiftRow
	for lo := 0; lo < n; {
		hi := lo
		for hi < n && assign[hi] == assign[lo] {
			hi++
		}
		rows = append(rows, binRow(assign[lo], partition, scores[lo:hi], targets[lo:hi], w[lo:hi]))
		lo = hi
	}
	return rows, nil
}

func binRow(bin int, partition dataset.Partition, scores, targets, w []float64) report.LiftRow {
	row := report.LiftRow{
		Bin:      bin,
		Dataset:  partition,
		Exposure: floats.Sum(w),
		Rows:     len(scores),
		ScoreMin: scores[0],
		ScoreMax: scores[len(scores)-1],
	}
	if row.Exposure > 0 {
		row.WeightedObserved = stat.Mean(targets, w)
		row.WeightedPredicted = stat.Mean(scores, w)
	}
	return row
}
