package excel

import (
	"fmt"
	"strconv"
	"strings"

	"goglm/domain/core"
	"goglm/domain/model"
)

// Accepted header spellings of the coefficient table columns
var coefficientHeaders = map[string][]string{
	"term":           {"term", "name", "variable"},
	"coefficient":    {"coefficient", "coef", "estimate"},
	"standard_error": {"standard_error", "std_error", "se", "stderr"},
	"p_value":        {"p_value", "pvalue", "p"},
}

// ReadCoefficients reads a coefficient table with columns term, coefficient and optionally
// standard_error and p_value. Missing optional cells read as 0.
func (r *DataReader) ReadCoefficients() ([]model.CoefficientTerm, error) {
	raw, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	return ParseCoefficients(raw)
}

// ParseCoefficients converts a raw table into coefficient terms in file order
func ParseCoefficients(raw *RawTable) ([]model.CoefficientTerm, error) {
	columns := make(map[string]string, len(coefficientHeaders))
	for _, h := range raw.Headers {
		key := strings.ToLower(strings.TrimSpace(h))
		for canonical, aliases := range coefficientHeaders {
			for _, alias := range aliases {
				if key == alias {
					columns[canonical] = h
				}
			}
		}
	}
	for _, required := range []string{"term", "coefficient"} {
		if _, ok := columns[required]; !ok {
			return nil, core.NewMissingColumnError(required, 0)
		}
	}

	terms := make([]model.CoefficientTerm, 0, len(raw.Rows))
	for i, row := range raw.Rows {
		name := row[columns["term"]]
		if name == "" {
			continue
		}
		coef, err := cellFloat(row, columns["coefficient"], i, true)
		if err != nil {
			return nil, err
		}
		se, err := cellFloat(row, columns["standard_error"], i, false)
		if err != nil {
			return nil, err
		}
		p, err := cellFloat(row, columns["p_value"], i, false)
		if err != nil {
			return nil, err
		}
		terms = append(terms, model.CoefficientTerm{Term: name, Coefficient: coef, StandardError: se, PValue: p})
	}
	return terms, nil
}

func cellFloat(row RawRowData, column string, index int, required bool) (float64, error) {
	if column == "" {
		return 0, nil
	}
	cell := row[column]
	if cell == "" {
		if required {
			return 0, core.NewInvalidValueError(column, index, "empty cell")
		}
		return 0, nil
	}
	x, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, core.NewInvalidValueError(column, index, fmt.Sprintf("%q is not a number", cell))
	}
	return x, nil
}
