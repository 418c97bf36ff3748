// Package basevalue resolves the reference value of every included input feature from the
// training rows: exposure-weighted mode for categorical features, exposure-weighted mean for
// numeric ones.
package basevalue

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/domain/report"
)

// Modalities are the observed values of a feature: sorted levels, or the numeric range
type Modalities struct {
	Levels []string `json:"levels,omitempty"`
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
}

// Sample returns n evenly spaced points over [Min, Max], or the single point when the range
// is degenerate.
func (m Modalities) Sample(n int) []float64 {
	if n < 1 {
		n = 1
	}
	if m.Min == m.Max || n == 1 {
		return []float64{m.Min}
	}
	return floats.Span(make([]float64, n), m.Min, m.Max)
}

// BaseValues holds the resolution for one fitted model. Read-only after Resolve.
type BaseValues struct {
	Features     []model.Feature
	Values       map[string]dataset.Value
	Modalities   map[string]Modalities
	LevelWeights map[string]map[string]float64
	TotalWeight  float64
	WeightColumn string
}

// Resolve computes base values and modalities in one pass over the frame. weightColumn may be
// empty, in which case every row weighs 1.
func Resolve(modelID core.ModelID, frame *dataset.Frame, features []model.Feature, weightColumn string) (*BaseValues, error) {
	inputs := model.Inputs(features)
	if frame.Len() == 0 {
		return nil, core.NewZeroExposureError(modelID, weightColumn)
	}

	weights := make([]float64, frame.Len())
	numeric := make(map[string][]float64)
	levels := make(map[string]map[string]float64)
	for _, f := range inputs {
		if f.IsNumeric() {
			numeric[f.Name] = make([]float64, frame.Len())
		} else {
			levels[f.Name] = make(map[string]float64)
		}
	}

	total := 0.0
	for i, row := range frame.Rows {
		w := 1.0
		if weightColumn != "" {
			v, ok := row[weightColumn]
			if !ok {
				return nil, core.NewMissingColumnError(weightColumn, i)
			}
			x, ok := v.Float()
			if !ok || math.IsInf(x, 0) {
				return nil, core.NewInvalidValueError(weightColumn, i, "weight is not numeric")
			}
			w = x
		}
		weights[i] = w
		total += w

		for _, f := range inputs {
			v, ok := row[f.Name]
			if !ok {
				return nil, core.NewMissingColumnError(f.Name, i)
			}
			if f.IsNumeric() {
				x, ok := v.Float()
				if !ok || math.IsInf(x, 0) {
					return nil, core.NewInvalidValueError(f.Name, i, "numeric feature holds "+v.String())
				}
				numeric[f.Name][i] = x
				continue
			}
			levels[f.Name][v.String()] += w
		}
	}

	if total <= 0 {
		return nil, core.NewZeroExposureError(modelID, weightColumn)
	}

	b := &BaseValues{
		Features:     inputs,
		Values:       make(map[string]dataset.Value, len(inputs)),
		Modalities:   make(map[string]Modalities, len(inputs)),
		LevelWeights: levels,
		TotalWeight:  total,
		WeightColumn: weightColumn,
	}

	for _, f := range inputs {
		if f.IsNumeric() {
			xs := numeric[f.Name]
			lo, hi := floats.Min(xs), floats.Max(xs)
			// The weighted mean can round outside the observed range; a single value stays exact.
			b.Values[f.Name] = dataset.Num(math.Min(math.Max(stat.Mean(xs, weights), lo), hi))
			b.Modalities[f.Name] = Modalities{Min: lo, Max: hi}
			continue
		}
		sorted := sortedLevels(levels[f.Name])
		b.Values[f.Name] = dataset.Cat(weightedMode(sorted, levels[f.Name]))
		b.Modalities[f.Name] = Modalities{Levels: sorted}
	}

	return b, nil
}

func sortedLevels(weights map[string]float64) []string {
	out := make([]string, 0, len(weights))
	for level := range weights {
		out = append(out, level)
	}
	sort.Strings(out)
	return out
}

// weightedMode picks the heaviest level; ties go to the lexicographically smallest level
// because sorted is scanned in order and only a strictly larger weight replaces the pick.
func weightedMode(sorted []string, weights map[string]float64) string {
	best := ""
	bestWeight := math.Inf(-1)
	for _, level := range sorted {
		if w := weights[level]; w > bestWeight {
			best, bestWeight = level, w
		}
	}
	return best
}

// Value returns the base value of a feature
func (b *BaseValues) Value(name string) (dataset.Value, bool) {
	v, ok := b.Values[name]
	return v, ok
}

// Feature returns the included input feature with that name
func (b *BaseValues) Feature(name string) (model.Feature, bool) {
	return model.Lookup(b.Features, name)
}

// LevelWeight returns the exposure observed at one categorical level
func (b *BaseValues) LevelWeight(feature, level string) float64 {
	return b.LevelWeights[feature][level]
}

// BaselineRow copies template and pins every included input to its base value. The exposure
// column, when configured, is set to 1 so predictions are per unit of exposure.
func (b *BaseValues) BaselineRow(template dataset.Row, exposureColumn string) dataset.Row {
	row := template.Clone()
	for _, f := range b.Features {
		row[f.Name] = b.Values[f.Name]
	}
	if exposureColumn != "" {
		row[exposureColumn] = dataset.Num(1)
	}
	return row
}

// Rows renders the resolution as a reporting table in feature order
func (b *BaseValues) Rows() []report.BaseValueRow {
	out := make([]report.BaseValueRow, 0, len(b.Features))
	for _, f := range b.Features {
		out = append(out, report.BaseValueRow{
			Variable: f.Name,
			Kind:     string(f.Kind),
			Value:    b.Values[f.Name].String(),
		})
	}
	return out
}
