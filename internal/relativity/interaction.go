package relativity

import (
	"math"

	"github.com/rs/zerolog"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/domain/report"
	"goglm/internal/terms"
)

// Cell is one combination of a pair grid. Pure is 1.0 on inactive cells.
type Cell struct {
	First  dataset.Value `json:"first"`
	Second dataset.Value `json:"second"`
	Joint  float64       `json:"joint"`
	Pure   float64       `json:"pure"`
	Active bool          `json:"active"`
}

// InteractionRelativities is the grid of one declared pair, row-major over the first feature
type InteractionRelativities struct {
	Pair         model.InteractionPair `json:"pair"`
	FirstKind    model.Kind            `json:"first_kind"`
	SecondKind   model.Kind            `json:"second_kind"`
	FirstValues  []dataset.Value       `json:"first_values"`
	SecondValues []dataset.Value       `json:"second_values"`
	Cells        []Cell                `json:"cells"`
}

// Cell returns the cell at grid position (i, j)
func (ir *InteractionRelativities) Cell(i, j int) Cell {
	return ir.Cells[i*len(ir.SecondValues)+j]
}

// Active returns the cells that carry a coefficient
func (ir *InteractionRelativities) Active() []Cell {
	var out []Cell
	for _, c := range ir.Cells {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

type grid struct {
	pair          model.InteractionPair
	first, second model.Feature
	firstValues   []dataset.Value
	secondValues  []dataset.Value
}

func newGrid(in Input, pair model.InteractionPair, samples int) (*grid, error) {
	f1, ok := in.Base.Feature(pair.First)
	if !ok {
		return nil, core.NewUnknownVariableError(in.ModelID, pair.First)
	}
	f2, ok := in.Base.Feature(pair.Second)
	if !ok {
		return nil, core.NewUnknownVariableError(in.ModelID, pair.Second)
	}
	return &grid{
		pair:         pair,
		first:        f1,
		second:       f2,
		firstValues:  Modalities(in.Base, f1, samples),
		secondValues: Modalities(in.Base, f2, samples),
	}, nil
}

// cost weighs a grid batch against single-feature batches; never more than the pool
func (g *grid) cost(workers int) int64 {
	if workers < 2 {
		return 1
	}
	return 2
}

// termLevel is the level used to look a member up in the coefficient table
func termLevel(f model.Feature, v dataset.Value) string {
	if f.IsNumeric() {
		return ""
	}
	return v.String()
}

// factor divides the joint ratios by both marginal relativities. Cells without a matching
// interaction term are inactive and keep a pure relativity of 1.0.
func (g *grid) factor(res *Result, joint []float64, table *terms.Table, log zerolog.Logger) InteractionRelativities {
	out := InteractionRelativities{
		Pair:         g.pair,
		FirstKind:    g.first.Kind,
		SecondKind:   g.second.Kind,
		FirstValues:  g.firstValues,
		SecondValues: g.secondValues,
		Cells:        make([]Cell, 0, len(joint)),
	}

	r1, _ := res.Feature(g.first.Name)
	r2, _ := res.Feature(g.second.Name)

	k := 0
	for _, v1 := range g.firstValues {
		for _, v2 := range g.secondValues {
			cell := Cell{First: v1, Second: v2, Joint: joint[k], Pure: 1.0}
			k++

			if table != nil {
				_, cell.Active = table.Interaction(g.first.Name, termLevel(g.first, v1), g.second.Name, termLevel(g.second, v2))
			}

			if math.IsNaN(cell.Joint) {
				log.Warn().
					Err(core.NewNumericDegeneracyError(g.pair.Name(), v1.String()+"::"+v2.String(), "non-finite joint relativity")).
					Msg("joint relativity defaulted to 1.0")
				cell.Joint = 1.0
			}

			if cell.Active {
				m1, _ := r1.Lookup(v1)
				m2, _ := r2.Lookup(v2)
				pure := cell.Joint / m1 / m2
				if math.IsNaN(pure) || math.IsInf(pure, 0) {
					log.Warn().
						Err(core.NewNumericDegeneracyError(g.pair.Name(), v1.String()+"::"+v2.String(), "non-finite pure relativity")).
						Msg("pure relativity defaulted to 1.0")
					pure = 1.0
				}
				cell.Pure = pure
			}
			out.Cells = append(out.Cells, cell)
		}
	}
	return out
}

// RelativityRows flattens the one-way curves, led by the base/base baseline row
func (r *Result) RelativityRows() []report.RelativityRow {
	n := 1
	for _, f := range r.Features {
		n += len(f.Modalities)
	}
	rows := make([]report.RelativityRow, 0, n)
	rows = append(rows, report.RelativityRow{Variable: report.BaseLabel, Value: report.BaseLabel, Relativity: r.Baseline})
	for _, f := range r.Features {
		for _, m := range f.Modalities {
			rows = append(rows, report.RelativityRow{
				Variable:   f.Feature.Name,
				Value:      m.Value.String(),
				Relativity: m.Relativity,
			})
		}
	}
	return rows
}

// InteractionRows flattens every pair grid
func (r *Result) InteractionRows() []report.InteractionRelativityRow {
	var rows []report.InteractionRelativityRow
	for _, ir := range r.Interactions {
		for _, c := range ir.Cells {
			rows = append(rows, report.InteractionRelativityRow{
				First:       ir.Pair.First,
				Second:      ir.Pair.Second,
				FirstValue:  c.First.String(),
				SecondValue: c.Second.String(),
				Joint:       c.Joint,
				Pure:        c.Pure,
				Active:      c.Active,
			})
		}
	}
	return rows
}
