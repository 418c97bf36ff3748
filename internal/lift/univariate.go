package lift

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/domain/report"
	"goglm/internal/basevalue"
	"goglm/internal/relativity"
)

// DefaultNumericBins is the distinct-value count above which numeric variables are binned
const DefaultNumericBins = 20

// UnivariateOptions control grouping and rescaling of an actual-vs-expected curve
type UnivariateOptions struct {
	NumericBins int
	Binning     Binning
	MaxLevels   int
	Rescale     Rescale
}

// DefaultUnivariateOptions bins numerics into 20 equal-width groups and does not rescale
func DefaultUnivariateOptions() UnivariateOptions {
	return UnivariateOptions{NumericBins: DefaultNumericBins, Binning: BinningEqualWidth, Rescale: RescaleNone}
}

// UnivariateInput is one variable over one partition. Fitted may carry predictions already
// made for Frame; otherwise they are scored in the same batch as the base predictions.
// Features is the model's full feature list, where reject candidates are looked up.
type UnivariateInput struct {
	ModelID        core.ModelID
	Variable       string
	Partition      dataset.Partition
	Frame          *dataset.Frame
	Base           *basevalue.BaseValues
	Features       []model.Feature
	TargetColumn   string
	ExposureColumn string
	Fitted         []float64
}

// Univariate groups the rows by the variable and reports exposure-weighted observed, fitted
// and base-level averages per group. Base-level predictions score a copy of every row with
// all other included inputs pinned to their base values. The variable is an included input
// or a reject candidate the model never saw; for a reject every included input is pinned.
func Univariate(ctx context.Context, oracle relativity.Predictor, in UnivariateInput, opts UnivariateOptions) ([]report.UnivariateRow, error) {
	if in.Frame.Len() == 0 {
		return nil, core.NewZeroExposureError(in.ModelID, in.ExposureColumn)
	}
	if in.Base == nil {
		return nil, core.NewConfigurationError(in.ModelID, "univariate curves need base values")
	}
	feature, ok := in.Base.Feature(in.Variable)
	if !ok {
		feature, ok = model.Lookup(in.Features, in.Variable)
		ok = ok && feature.Role == model.RoleReject
	}
	if !ok {
		return nil, core.NewUnknownVariableError(in.ModelID, in.Variable)
	}
	if in.Fitted != nil && len(in.Fitted) != in.Frame.Len() {
		return nil, core.NewConfigurationError(in.ModelID, fmt.Sprintf("%d fitted values for %d rows", len(in.Fitted), in.Frame.Len()))
	}

	targets, row, ok := in.Frame.Floats(in.TargetColumn)
	if !ok {
		if _, present := in.Frame.Rows[row][in.TargetColumn]; !present {
			return nil, core.NewMissingColumnError(in.TargetColumn, row)
		}
		return nil, core.NewInvalidValueError(in.TargetColumn, row, "target must be numeric")
	}
	weights, err := checkWeights(in.ModelID, exposure(in.Frame, in.ExposureColumn), len(targets))
	if err != nil {
		return nil, err
	}
	if floats.Sum(weights) <= 0 {
		return nil, core.NewZeroExposureError(in.ModelID, in.ExposureColumn)
	}

	fitted, base, err := scoreUnivariate(ctx, oracle, in)
	if err != nil {
		return nil, err
	}

	var g grouping
	if feature.IsNumeric() {
		xs, row, ok := in.Frame.Floats(in.Variable)
		if !ok {
			if _, present := in.Frame.Rows[row][in.Variable]; !present {
				return nil, core.NewMissingColumnError(in.Variable, row)
			}
			return nil, core.NewInvalidValueError(in.Variable, row, "numeric feature must parse as a number")
		}
		if g, err = groupNumeric(xs, opts.NumericBins, opts.Binning); err != nil {
			return nil, core.NewNumericDegeneracyError(in.Variable, "", err.Error())
		}
	} else {
		levels := make([]string, in.Frame.Len())
		for i, r := range in.Frame.Rows {
			v, present := r[in.Variable]
			if !present {
				return nil, core.NewMissingColumnError(in.Variable, i)
			}
			levels[i] = v.String()
		}
		g = groupCategorical(levels, weights, opts.MaxLevels)
	}

	rows := aggregate(in, g, targets, fitted, base, weights)
	return rescale(rows, baseGroup(in, g, rows), opts.Rescale), nil
}

// exposure returns nil when the frame has no exposure column so every row weighs 1
func exposure(frame *dataset.Frame, column string) []float64 {
	if column == "" {
		return nil
	}
	return frame.Weights(column)
}

// scoreUnivariate makes one predict call holding the base-level copies, preceded by the real
// rows when no fitted values were supplied.
func scoreUnivariate(ctx context.Context, oracle relativity.Predictor, in UnivariateInput) ([]float64, []float64, error) {
	n := in.Frame.Len()
	batch := make([]dataset.Row, 0, 2*n)
	if in.Fitted == nil {
		batch = append(batch, in.Frame.Rows...)
	}
	for _, r := range in.Frame.Rows {
		pinned := r.Clone()
		for _, f := range in.Base.Features {
			if f.Name != in.Variable {
				pinned[f.Name] = in.Base.Values[f.Name]
			}
		}
		batch = append(batch, pinned)
	}

	preds, err := oracle.Predict(ctx, batch)
	if err != nil {
		return nil, nil, core.NewOracleError(in.ModelID, "predict univariate "+in.Variable, err)
	}
	if len(preds) != len(batch) {
		return nil, nil, core.NewOracleError(in.ModelID, "predict univariate "+in.Variable,
			fmt.Errorf("returned %d predictions for %d rows", len(preds), len(batch)))
	}
	if in.Fitted != nil {
		return in.Fitted, preds, nil
	}
	return preds[:n], preds[n:], nil
}

// aggregate emits one row per populated group in group order
func aggregate(in UnivariateInput, g grouping, targets, fitted, base, weights []float64) []report.UnivariateRow {
	members := make([][]int, len(g.labels))
	for i, k := range g.index {
		members[k] = append(members[k], i)
	}

	var rows []report.UnivariateRow
	for k, idx := range members {
		if len(idx) == 0 {
			continue
		}
		w := make([]float64, len(idx))
		obs := make([]float64, len(idx))
		fit := make([]float64, len(idx))
		bl := make([]float64, len(idx))
		for j, i := range idx {
			w[j], obs[j], fit[j], bl[j] = weights[i], targets[i], fitted[i], base[i]
		}
		row := report.UnivariateRow{
			Variable: in.Variable,
			Category: g.labels[k],
			Exposure: floats.Sum(w),
			Dataset:  in.Partition,
		}
		if row.Exposure > 0 {
			row.ObservedAverage = stat.Mean(obs, w)
			row.FittedAverage = stat.Mean(fit, w)
			row.BaseLevelPrediction = stat.Mean(bl, w)
		}
		rows = append(rows, row)
	}
	return rows
}

// baseGroup finds the emitted row holding the variable's base value, or -1. A base level
// folded into Others resolves to the Others row. Reject candidates have no base value and
// use the heaviest row.
func baseGroup(in UnivariateInput, g grouping, rows []report.UnivariateRow) int {
	v, ok := in.Base.Value(in.Variable)
	if !ok {
		return heaviest(rows)
	}
	label := v.String()
	if x, numeric := v.Float(); numeric && v.Numeric {
		if k := g.locate(x); k >= 0 {
			label = g.labels[k]
		}
	} else if k, seen := g.levels[label]; seen {
		label = g.labels[k]
	}
	for i, r := range rows {
		if r.Category == label {
			return i
		}
	}
	return -1
}

// heaviest returns the row with the most exposure, the first on ties, or -1
func heaviest(rows []report.UnivariateRow) int {
	best := -1
	for i, r := range rows {
		if best < 0 || r.Exposure > rows[best].Exposure {
			best = i
		}
	}
	return best
}
