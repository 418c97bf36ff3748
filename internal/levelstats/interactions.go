package levelstats

import (
	"fmt"
	"sort"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/domain/report"
	"goglm/internal/relativity"
	"goglm/internal/terms"
)

const pairSeparator = "::"

// interactionBatch emits one row per active cell of every declared pair. Exposure shares are
// taken within the pair's emitted rows. Terms of undeclared pairs are left out.
func (a *assembler) interactionBatch() ([]report.VariableStatRow, error) {
	declared := make(map[model.InteractionPair]bool, len(a.in.Interactions))
	for _, p := range a.in.Interactions {
		declared[p] = true
	}
	for _, t := range a.in.Terms.Terms() {
		if t.Kind != terms.KindInteraction {
			continue
		}
		pair := model.InteractionPair{First: t.Members[0].Variable, Second: t.Members[1].Variable}
		if !declared[pair] {
			a.note(pair.Name(), t.Members[0].Level+pairSeparator+t.Members[1].Level, t.Term, ReasonUndeclaredPair)
		}
	}

	var rows []report.VariableStatRow
	for _, pair := range a.in.Interactions {
		ir, ok := a.findGrid(pair)
		if !ok {
			return nil, core.NewConfigurationError(a.in.ModelID, fmt.Sprintf("no relativities for interaction %s", pair))
		}
		weights, err := a.cellWeights(ir)
		if err != nil {
			return nil, err
		}
		rows = append(rows, a.pairRows(ir, weights)...)
	}
	return rows, nil
}

func (a *assembler) findGrid(pair model.InteractionPair) (*relativity.InteractionRelativities, bool) {
	for i := range a.in.Relativities.Interactions {
		if a.in.Relativities.Interactions[i].Pair == pair {
			return &a.in.Relativities.Interactions[i], true
		}
	}
	return nil, false
}

func (a *assembler) pairRows(ir *relativity.InteractionRelativities, weights []float64) []report.VariableStatRow {
	first, _ := a.in.Base.Feature(ir.Pair.First)
	second, _ := a.in.Base.Feature(ir.Pair.Second)

	activeTotal := 0.0
	for k, c := range ir.Cells {
		if c.Active {
			activeTotal += weights[k]
		}
	}

	var rows []report.VariableStatRow
	matched := make(map[string]bool)
	for k, c := range ir.Cells {
		if !c.Active {
			continue
		}
		t, ok := a.in.Terms.Interaction(first.Name, memberLevel(first, c.First), second.Name, memberLevel(second, c.Second))
		if !ok {
			continue
		}
		matched[t.Term] = true
		row := report.VariableStatRow{
			Variable:          ir.Pair.Name(),
			Value:             c.First.String() + pairSeparator + c.Second.String(),
			Relativity:        c.Pure,
			ExposureWeight:    weights[k],
			ExposureWeightPct: pct(weights[k], activeTotal),
		}
		rows = append(rows, withTerm(row, t))
	}

	for _, t := range a.in.Terms.InteractionTerms(ir.Pair) {
		if matched[t.Term] {
			continue
		}
		value := a.orphanValue(first, t.Members[0]) + pairSeparator + a.orphanValue(second, t.Members[1])
		row := withTerm(report.VariableStatRow{Variable: ir.Pair.Name(), Value: value, Relativity: 1.0}, t)
		row.Match = report.MatchDefaulted
		a.note(ir.Pair.Name(), value, t.Term, ReasonNoRelativity)
		rows = append(rows, row)
	}
	return rows
}

// orphanValue shows a categorical member's level and a numeric member's base value
func (a *assembler) orphanValue(f model.Feature, m terms.Member) string {
	if f.IsNumeric() || m.IsNumeric() {
		return a.in.Base.Values[f.Name].String()
	}
	return m.Level
}

func memberLevel(f model.Feature, v dataset.Value) string {
	if f.IsNumeric() {
		return ""
	}
	return v.String()
}

// cellWeights allocates every training row to one grid cell: categorical members by level,
// numeric members to the nearest sampled point.
func (a *assembler) cellWeights(ir *relativity.InteractionRelativities) ([]float64, error) {
	if a.in.Train == nil {
		return nil, core.NewConfigurationError(a.in.ModelID, "interaction exposure needs the training rows")
	}
	weights := make([]float64, len(ir.Cells))
	locate1 := newLocator(ir.FirstKind, ir.FirstValues)
	locate2 := newLocator(ir.SecondKind, ir.SecondValues)
	weightColumn := a.in.Base.WeightColumn

	for r, row := range a.in.Train.Rows {
		v1, ok := row[ir.Pair.First]
		if !ok {
			return nil, core.NewMissingColumnError(ir.Pair.First, r)
		}
		v2, ok := row[ir.Pair.Second]
		if !ok {
			return nil, core.NewMissingColumnError(ir.Pair.Second, r)
		}
		i, j := locate1(v1), locate2(v2)
		if i < 0 || j < 0 {
			continue
		}
		w := 1.0
		if weightColumn != "" {
			w, _ = row[weightColumn].Float()
		}
		weights[i*len(ir.SecondValues)+j] += w
	}
	return weights, nil
}

// newLocator returns a function mapping a row value to its grid index, or -1
func newLocator(kind model.Kind, values []dataset.Value) func(dataset.Value) int {
	if kind == model.KindNumeric {
		points := make([]float64, len(values))
		for i, v := range values {
			points[i] = v.Number
		}
		return func(v dataset.Value) int {
			x, ok := v.Float()
			if !ok || len(points) == 0 {
				return -1
			}
			return nearest(points, x)
		}
	}

	index := make(map[string]int, len(values))
	for i, v := range values {
		index[v.String()] = i
	}
	return func(v dataset.Value) int {
		if i, ok := index[v.String()]; ok {
			return i
		}
		return -1
	}
}

// nearest finds the closest point in an ascending slice; ties go to the lower point
func nearest(points []float64, x float64) int {
	i := sort.SearchFloat64s(points, x)
	switch {
	case i == 0:
		return 0
	case i == len(points):
		return len(points) - 1
	case points[i]-x < x-points[i-1]:
		return i
	default:
		return i - 1
	}
}
