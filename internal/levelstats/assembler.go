// Package levelstats joins coefficients, relativities and exposure shares into the
// variable-level statistics table.
package levelstats

import (
	"math"

	"github.com/rs/zerolog"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/domain/report"
	"goglm/internal/basevalue"
	"goglm/internal/relativity"
	"goglm/internal/terms"
)

// Input is everything one assembly reads
type Input struct {
	ModelID      core.ModelID
	Base         *basevalue.BaseValues
	Relativities *relativity.Result
	Terms        *terms.Table
	Interactions []model.InteractionPair
	Train        *dataset.Frame
	Logger       zerolog.Logger
}

// Diagnostic records a defaulted join or an excluded term
type Diagnostic struct {
	Variable string `json:"variable"`
	Value    string `json:"value"`
	Term     string `json:"term,omitempty"`
	Reason   string `json:"reason"`
}

// Result is the assembled table plus the joins that needed a default
type Result struct {
	Rows        []report.VariableStatRow `json:"rows"`
	Diagnostics []Diagnostic             `json:"diagnostics"`
}

// Diagnostic reasons
const (
	ReasonNoCoefficient    = "no coefficient term for this value"
	ReasonNoRelativity     = "coefficient term has no relativity"
	ReasonUndeclaredPair   = "interaction term for an undeclared pair"
	ReasonUnknownVariable  = "coefficient term for a variable that is not an included input"
	ReasonNonFiniteDefault = "non-finite value replaced by 0"
)

// Assemble builds the table as four batches (intercept, categorical, numeric, interaction)
// and concatenates them once.
func Assemble(in Input) (*Result, error) {
	if in.Base == nil || in.Relativities == nil || in.Terms == nil {
		return nil, core.NewConfigurationError(in.ModelID, "variable level stats need base values, relativities and coefficients")
	}

	a := &assembler{in: in, log: in.Logger.With().Str("model_id", in.ModelID.String()).Logger()}

	intercept := a.interceptBatch()
	categorical := a.categoricalBatch()
	numeric := a.numericBatch()
	interactions, err := a.interactionBatch()
	if err != nil {
		return nil, err
	}
	a.unattributed()

	rows := make([]report.VariableStatRow, 0, len(intercept)+len(categorical)+len(numeric)+len(interactions))
	rows = append(rows, intercept...)
	rows = append(rows, categorical...)
	rows = append(rows, numeric...)
	rows = append(rows, interactions...)

	for i := range rows {
		a.sanitize(&rows[i])
	}

	if len(a.diagnostics) > 0 {
		a.log.Debug().Int("defaulted", len(a.diagnostics)).Msg("variable level stats assembled with defaults")
	}

	return &Result{Rows: rows, Diagnostics: a.diagnostics}, nil
}

type assembler struct {
	in          Input
	log         zerolog.Logger
	diagnostics []Diagnostic
}

func (a *assembler) note(variable, value, term, reason string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{Variable: variable, Value: value, Term: term, Reason: reason})
}

// withTerm copies the coefficient statistics of a matched term onto the row
func withTerm(row report.VariableStatRow, t terms.Term) report.VariableStatRow {
	row.Coefficient = t.Coefficient
	row.PValue = t.PValue
	row.StandardError = t.StandardError
	row.StandardErrorPct = t.StandardErrorPct
	row.Match = report.MatchExact
	return row
}

func (a *assembler) interceptBatch() []report.VariableStatRow {
	row := report.VariableStatRow{
		Variable:   report.BaseLabel,
		Value:      report.BaseLabel,
		Relativity: a.in.Relativities.Baseline,
		Match:      report.MatchDefaulted,
	}
	if t, ok := a.in.Terms.Intercept(); ok {
		row = withTerm(row, t)
	} else {
		a.note(report.BaseLabel, report.BaseLabel, terms.InterceptName, ReasonNoCoefficient)
	}
	return []report.VariableStatRow{row}
}

func (a *assembler) categoricalBatch() []report.VariableStatRow {
	var rows []report.VariableStatRow
	for _, fr := range a.in.Relativities.Features {
		f := fr.Feature
		if f.IsNumeric() {
			continue
		}

		seen := make(map[string]bool, len(fr.Modalities))
		for _, m := range fr.Modalities {
			level := m.Value.String()
			seen[level] = true

			row := report.VariableStatRow{
				Variable:          f.Name,
				Value:             level,
				Relativity:        m.Relativity,
				ExposureWeight:    a.in.Base.LevelWeight(f.Name, level),
				ExposureWeightPct: pct(a.in.Base.LevelWeight(f.Name, level), a.in.Base.TotalWeight),
			}
			switch t, ok := a.in.Terms.Categorical(f.Name, level); {
			case ok:
				row = withTerm(row, t)
			case m.Value.Equal(fr.Base):
				row.Match = report.MatchReference
			default:
				row.Match = report.MatchDefaulted
				a.note(f.Name, level, "", ReasonNoCoefficient)
			}
			rows = append(rows, row)
		}

		for _, level := range a.in.Terms.CategoricalLevels(f.Name) {
			if seen[level] {
				continue
			}
			t, _ := a.in.Terms.Categorical(f.Name, level)
			row := withTerm(report.VariableStatRow{Variable: f.Name, Value: level, Relativity: 1.0}, t)
			row.Match = report.MatchDefaulted
			a.note(f.Name, level, t.Term, ReasonNoRelativity)
			rows = append(rows, row)
		}
	}
	return rows
}

func (a *assembler) numericBatch() []report.VariableStatRow {
	var rows []report.VariableStatRow
	for _, f := range a.in.Base.Features {
		if !f.IsNumeric() {
			continue
		}
		base := a.in.Base.Values[f.Name]
		row := report.VariableStatRow{
			Variable:          f.Name,
			Value:             base.String(),
			Relativity:        1.0,
			ExposureWeight:    a.in.Base.TotalWeight,
			ExposureWeightPct: 100,
			Match:             report.MatchDefaulted,
		}
		if t, ok := a.in.Terms.Numeric(f.Name); ok {
			row = withTerm(row, t)
		} else {
			a.note(f.Name, base.String(), "", ReasonNoCoefficient)
		}
		rows = append(rows, row)
	}
	return rows
}

// unattributed records main-effect terms that name no included input
func (a *assembler) unattributed() {
	for _, t := range a.in.Terms.Terms() {
		switch t.Kind {
		case terms.KindCategorical, terms.KindNumeric:
			if _, ok := a.in.Base.Feature(t.Variable); !ok {
				a.note(t.Variable, t.Level, t.Term, ReasonUnknownVariable)
			}
		}
	}
}

func (a *assembler) sanitize(row *report.VariableStatRow) {
	fields := []*float64{
		&row.Relativity, &row.Coefficient, &row.PValue, &row.StandardError,
		&row.StandardErrorPct, &row.ExposureWeight, &row.ExposureWeightPct,
	}
	replaced := false
	for _, f := range fields {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
			replaced = true
		}
	}
	if replaced {
		a.note(row.Variable, row.Value, "", ReasonNonFiniteDefault)
	}
}

func pct(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100
}
