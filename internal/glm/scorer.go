package glm

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/internal/config"
	"goglm/internal/terms"
)

// factor is one multiplicand of a linear predictor term
type factor struct {
	variable string
	level    string
	numeric  bool
}

type compiledTerm struct {
	coefficient float64
	factors     []factor
}

// Model scores rows from a model spec and its coefficient table. It holds no mutable state,
// so Predict is safe for concurrent use.
type Model struct {
	spec         *config.ModelSpec
	features     []model.Feature
	coefficients []model.CoefficientTerm
	link         Link
	family       Family
	terms        []compiledTerm
	log          zerolog.Logger
}

// NewModel compiles the coefficient table against the spec. Malformed terms are logged and
// left out; a term naming a variable that is not an included input is a configuration error.
func NewModel(spec *config.ModelSpec, coefficients []model.CoefficientTerm, logger zerolog.Logger) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	link, err := ParseLink(spec.Link, spec.Power)
	if err != nil {
		return nil, err
	}
	family, err := ParseFamily(spec.Family, spec.VariancePower)
	if err != nil {
		return nil, err
	}

	m := &Model{
		spec:         spec,
		features:     spec.ModelFeatures(),
		coefficients: append([]model.CoefficientTerm(nil), coefficients...),
		link:         link,
		family:       family,
		log:          logger.With().Str("model_id", spec.ID).Logger(),
	}

	table := terms.ParseTable(coefficients, m.log)
	for _, t := range table.Terms() {
		ct, err := m.compile(t)
		if err != nil {
			return nil, err
		}
		if ct != nil {
			m.terms = append(m.terms, *ct)
		}
	}
	m.log.Debug().Int("terms", len(m.terms)).Str("link", link.Name()).Str("family", family.Name()).Msg("model compiled")
	return m, nil
}

func (m *Model) compile(t terms.Term) (*compiledTerm, error) {
	switch t.Kind {
	case terms.KindIntercept:
		return &compiledTerm{coefficient: t.Coefficient}, nil
	case terms.KindCategorical, terms.KindNumeric:
		f, err := m.factorFor(t.Variable, t.Level)
		if err != nil {
			return nil, err
		}
		return &compiledTerm{coefficient: t.Coefficient, factors: []factor{f}}, nil
	case terms.KindInteraction:
		ct := &compiledTerm{coefficient: t.Coefficient}
		for _, member := range t.Members {
			f, err := m.factorFor(member.Variable, member.Level)
			if err != nil {
				return nil, err
			}
			ct.factors = append(ct.factors, f)
		}
		return ct, nil
	}
	return nil, nil
}

// factorFor is the raw value when the term carries no level and a level indicator otherwise
func (m *Model) factorFor(variable, level string) (factor, error) {
	f, ok := model.Lookup(m.features, variable)
	if !ok || !f.IsInput() {
		return factor{}, core.NewUnknownVariableError(m.ID(), variable)
	}
	return factor{variable: variable, level: level, numeric: level == ""}, nil
}

// ID returns the spec id
func (m *Model) ID() core.ModelID {
	return m.spec.ModelID()
}

// Link returns the model's link function
func (m *Model) Link() Link {
	return m.link
}

// Family returns the error distribution used for fit metrics
func (m *Model) Family() Family {
	return m.family
}

// Predict returns the inverse-linked linear predictor of every row
func (m *Model) Predict(ctx context.Context, rows []dataset.Row) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		eta, err := m.linearPredictor(row, i)
		if err != nil {
			return nil, err
		}
		out[i] = m.link.Inverse(eta)
	}
	return out, nil
}

func (m *Model) linearPredictor(row dataset.Row, index int) (float64, error) {
	eta := 0.0
	for _, t := range m.terms {
		x := t.coefficient
		for _, f := range t.factors {
			v, ok := row[f.variable]
			if !ok {
				return 0, core.NewMissingColumnError(f.variable, index)
			}
			if !f.numeric {
				if v.String() != f.level {
					x = 0
				}
				continue
			}
			num, ok := v.Float()
			if !ok {
				return 0, core.NewInvalidValueError(f.variable, index, "numeric feature holds "+v.String())
			}
			x *= num
		}
		eta += x
	}

	for _, name := range m.spec.Offsets {
		off, err := numericCell(row, name, index)
		if err != nil {
			return 0, err
		}
		eta += off
	}
	if m.spec.Exposure != "" && m.link.IsLog() {
		exposure, err := numericCell(row, m.spec.Exposure, index)
		if err != nil {
			return 0, err
		}
		if exposure <= 0 {
			return 0, core.NewInvalidValueError(m.spec.Exposure, index, fmt.Sprintf("exposure %g cannot enter a log link", exposure))
		}
		eta += math.Log(exposure)
	}
	return eta, nil
}

func numericCell(row dataset.Row, column string, index int) (float64, error) {
	v, ok := row[column]
	if !ok {
		return 0, core.NewMissingColumnError(column, index)
	}
	x, ok := v.Float()
	if !ok {
		return 0, core.NewInvalidValueError(column, index, "expected a number, got "+v.String())
	}
	return x, nil
}

// CoefficientTable returns a copy of the table the model was built from
func (m *Model) CoefficientTable(context.Context) ([]model.CoefficientTerm, error) {
	return append([]model.CoefficientTerm(nil), m.coefficients...), nil
}

func (m *Model) Features() []model.Feature {
	return append([]model.Feature(nil), m.features...)
}

func (m *Model) TargetVariable() string {
	return m.spec.Target
}

func (m *Model) ExposureVariable() (string, bool) {
	return m.spec.Exposure, m.spec.Exposure != ""
}

func (m *Model) Interactions() []model.InteractionPair {
	return m.spec.InteractionPairs()
}

// Parameters counts the coefficients that enter the linear predictor
func (m *Model) Parameters() int {
	return len(m.terms)
}
