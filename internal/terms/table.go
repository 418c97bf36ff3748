package terms

import (
	"github.com/rs/zerolog"

	"goglm/domain/model"
)

type levelKey struct {
	variable string
	level    string
}

type interactionKey struct {
	first, second levelKey
}

// Totals summarise the whole coefficient table, malformed terms included
type Totals struct {
	Terms          int     `json:"terms"`
	Malformed      int     `json:"malformed"`
	CoefficientSum float64 `json:"coefficient_sum"`
}

// Table is a parsed coefficient table with keyed lookups. Safe for concurrent reads.
type Table struct {
	terms        []Term
	intercept    int
	categorical  map[levelKey]int
	numeric      map[string]int
	interactions map[interactionKey]int
	pairs        map[model.InteractionPair][]int
	malformed    []int
	totals       Totals
}

// ParseTable parses every term in order. Malformed terms are logged once each and kept out of
// the lookups; duplicate names keep the first occurrence.
func ParseTable(coefficients []model.CoefficientTerm, logger zerolog.Logger) *Table {
	t := &Table{
		terms:        make([]Term, len(coefficients)),
		intercept:    -1,
		categorical:  make(map[levelKey]int),
		numeric:      make(map[string]int),
		interactions: make(map[interactionKey]int),
		pairs:        make(map[model.InteractionPair][]int),
	}

	for i, ct := range coefficients {
		term := Parse(ct)
		t.terms[i] = term
		t.totals.Terms++
		t.totals.CoefficientSum += ct.Coefficient

		duplicate := false
		switch term.Kind {
		case KindIntercept:
			if t.intercept >= 0 {
				duplicate = true
			} else {
				t.intercept = i
			}
		case KindCategorical:
			key := levelKey{term.Variable, term.Level}
			if _, ok := t.categorical[key]; ok {
				duplicate = true
			} else {
				t.categorical[key] = i
			}
		case KindNumeric:
			if _, ok := t.numeric[term.Variable]; ok {
				duplicate = true
			} else {
				t.numeric[term.Variable] = i
			}
		case KindInteraction:
			key := interactionKey{
				levelKey{term.Members[0].Variable, term.Members[0].Level},
				levelKey{term.Members[1].Variable, term.Members[1].Level},
			}
			if _, ok := t.interactions[key]; ok {
				duplicate = true
			} else {
				t.interactions[key] = i
				pair := model.InteractionPair{First: term.Members[0].Variable, Second: term.Members[1].Variable}
				t.pairs[pair] = append(t.pairs[pair], i)
			}
		default:
			t.malformed = append(t.malformed, i)
			t.totals.Malformed++
			logger.Warn().
				Str("term", ct.Term).
				Err(term.Err).
				Msg("malformed coefficient term excluded from attribution")
		}

		if duplicate {
			logger.Warn().Str("term", ct.Term).Msg("duplicate coefficient term ignored")
		}
	}

	logger.Debug().
		Int("terms", t.totals.Terms).
		Int("malformed", t.totals.Malformed).
		Msg("parsed coefficient table")

	return t
}

// Terms returns every parsed term in table order
func (t *Table) Terms() []Term {
	return t.terms
}

// Len returns the number of coefficient rows
func (t *Table) Len() int {
	return len(t.terms)
}

// Intercept returns the intercept term
func (t *Table) Intercept() (Term, bool) {
	if t.intercept < 0 {
		return Term{}, false
	}
	return t.terms[t.intercept], true
}

// Categorical looks up the dummy term of a level
func (t *Table) Categorical(variable, level string) (Term, bool) {
	i, ok := t.categorical[levelKey{variable, level}]
	if !ok {
		return Term{}, false
	}
	return t.terms[i], true
}

// CategoricalLevels lists the levels that carry a dummy term for variable, in table order
func (t *Table) CategoricalLevels(variable string) []string {
	var levels []string
	for i, term := range t.terms {
		if term.Kind != KindCategorical || term.Variable != variable {
			continue
		}
		if t.categorical[levelKey{variable, term.Level}] == i {
			levels = append(levels, term.Level)
		}
	}
	return levels
}

// Numeric looks up the slope term of a numeric variable
func (t *Table) Numeric(variable string) (Term, bool) {
	i, ok := t.numeric[variable]
	if !ok {
		return Term{}, false
	}
	return t.terms[i], true
}

// Interaction looks up the term for one cell. Levels of numeric members must be blank or "_";
// the pair order must match the term exactly.
func (t *Table) Interaction(v1, l1, v2, l2 string) (Term, bool) {
	key := interactionKey{
		levelKey{v1, NormalizeLevel(l1)},
		levelKey{v2, NormalizeLevel(l2)},
	}
	i, ok := t.interactions[key]
	if !ok {
		return Term{}, false
	}
	return t.terms[i], true
}

// InteractionTerms returns the terms of one ordered pair in table order
func (t *Table) InteractionTerms(pair model.InteractionPair) []Term {
	idx := t.pairs[pair]
	out := make([]Term, len(idx))
	for j, i := range idx {
		out[j] = t.terms[i]
	}
	return out
}

// Malformed returns the terms that matched no grammar rule
func (t *Table) Malformed() []Term {
	out := make([]Term, len(t.malformed))
	for j, i := range t.malformed {
		out[j] = t.terms[i]
	}
	return out
}

// Totals returns counts and the coefficient sum over all rows, malformed ones included
func (t *Table) Totals() Totals {
	return t.totals
}
