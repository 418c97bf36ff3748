package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/domain/report"
)

// Exporter writes report tables as an xlsx workbook or as CSV
type Exporter struct {
	precision int32
	log       zerolog.Logger
}

// NewExporter creates an exporter rounding to cfg.Precision decimal places
func NewExporter(cfg Config, logger zerolog.Logger) *Exporter {
	return &Exporter{precision: cfg.Precision, log: logger}
}

func (e *Exporter) round(x float64) float64 {
	return decimal.NewFromFloat(x).Round(e.precision).InexactFloat64()
}

func (e *Exporter) text(x float64) string {
	return decimal.NewFromFloat(x).Round(e.precision).String()
}

// table is a header plus typed rows, shared by the sheet and CSV writers
type table struct {
	header []string
	rows   [][]any
}

func (e *Exporter) relativities(rows []report.RelativityRow) table {
	t := table{header: []string{"variable", "value", "relativity"}}
	for _, r := range rows {
		t.rows = append(t.rows, []any{r.Variable, r.Value, e.round(r.Relativity)})
	}
	return t
}

func (e *Exporter) variableStats(rows []report.VariableStatRow) table {
	t := table{header: []string{
		"variable", "value", "relativity", "coefficient", "p_value", "standard_error",
		"standard_error_pct", "exposure_weight", "exposure_weight_pct", "match",
	}}
	for _, r := range rows {
		t.rows = append(t.rows, []any{
			r.Variable, r.Value, e.round(r.Relativity), e.round(r.Coefficient), e.round(r.PValue),
			e.round(r.StandardError), e.round(r.StandardErrorPct), e.round(r.ExposureWeight),
			e.round(r.ExposureWeightPct), string(r.Match),
		})
	}
	return t
}

func (e *Exporter) lift(rows []report.LiftRow) table {
	t := table{header: []string{
		"bin", "dataset", "weighted_observed", "weighted_predicted", "exposure", "rows", "score_min", "score_max",
	}}
	for _, r := range rows {
		t.rows = append(t.rows, []any{
			r.Bin, string(r.Dataset), e.round(r.WeightedObserved), e.round(r.WeightedPredicted),
			e.round(r.Exposure), r.Rows, e.round(r.ScoreMin), e.round(r.ScoreMax),
		})
	}
	return t
}

func (e *Exporter) univariate(rows []report.UnivariateRow) table {
	t := table{header: []string{
		"variable", "category", "observed_average", "fitted_average", "base_level_prediction", "exposure", "dataset",
	}}
	for _, r := range rows {
		t.rows = append(t.rows, []any{
			r.Variable, r.Category, e.round(r.ObservedAverage), e.round(r.FittedAverage),
			e.round(r.BaseLevelPrediction), e.round(r.Exposure), string(r.Dataset),
		})
	}
	return t
}

func (e *Exporter) interactions(rows []report.InteractionRelativityRow) table {
	t := table{header: []string{"first", "second", "first_value", "second_value", "joint_relativity", "pure_relativity", "active"}}
	for _, r := range rows {
		t.rows = append(t.rows, []any{r.First, r.Second, r.FirstValue, r.SecondValue, e.round(r.Joint), e.round(r.Pure), r.Active})
	}
	return t
}

// WriteWorkbook writes one sheet per table. The Interactions sheet holds one grid per pair:
// rows are the second feature's values, columns the first feature's, cells pure relativities.
func (e *Exporter) WriteWorkbook(w io.Writer, reports Reports) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetRelativities); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	for _, name := range []string{SheetInteractions, SheetVariableStats, SheetLift, SheetUnivariate} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	sheets := []struct {
		name string
		t    table
	}{
		{SheetRelativities, e.relativities(reports.Relativities)},
		{SheetVariableStats, e.variableStats(reports.VariableStats)},
		{SheetLift, e.lift(reports.Lift)},
		{SheetUnivariate, e.univariate(reports.Univariate)},
	}
	for _, s := range sheets {
		if err := writeSheet(f, s.name, s.t); err != nil {
			return err
		}
	}
	if err := e.writeInteractionGrids(f, reports.Interactions); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	e.log.Debug().Int("relativities", len(reports.Relativities)).Int("stats", len(reports.VariableStats)).Msg("workbook exported")
	return nil
}

func writeSheet(f *excelize.File, sheet string, t table) error {
	header := make([]any, len(t.header))
	for i, h := range t.header {
		header[i] = h
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range t.rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// writeInteractionGrids lays out pairs one under another, separated by a blank row
func (e *Exporter) writeInteractionGrids(f *excelize.File, rows []report.InteractionRelativityRow) error {
	type grid struct {
		first, second string
		columns       []string
		lines         []string
		cells         map[[2]string]float64
	}
	var grids []*grid
	index := make(map[[2]string]*grid)
	for _, r := range rows {
		key := [2]string{r.First, r.Second}
		g, ok := index[key]
		if !ok {
			g = &grid{first: r.First, second: r.Second, cells: make(map[[2]string]float64)}
			index[key] = g
			grids = append(grids, g)
		}
		if !contains(g.columns, r.FirstValue) {
			g.columns = append(g.columns, r.FirstValue)
		}
		if !contains(g.lines, r.SecondValue) {
			g.lines = append(g.lines, r.SecondValue)
		}
		g.cells[[2]string{r.FirstValue, r.SecondValue}] = r.Pure
	}

	line := 1
	for _, g := range grids {
		if err := setRow(f, SheetInteractions, line, []any{g.first + "::" + g.second}); err != nil {
			return err
		}
		header := []any{g.second + " \\ " + g.first}
		for _, c := range g.columns {
			header = append(header, c)
		}
		if err := setRow(f, SheetInteractions, line+1, header); err != nil {
			return err
		}
		for i, l := range g.lines {
			values := []any{l}
			for _, c := range g.columns {
				values = append(values, e.round(g.cells[[2]string{c, l}]))
			}
			if err := setRow(f, SheetInteractions, line+2+i, values); err != nil {
				return err
			}
		}
		line += len(g.lines) + 3
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (e *Exporter) writeCSV(w io.Writer, t table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	for _, row := range t.rows {
		record := make([]string, len(row))
		for i, v := range row {
			switch x := v.(type) {
			case float64:
				record[i] = e.text(x)
			case int:
				record[i] = strconv.Itoa(x)
			case bool:
				record[i] = strconv.FormatBool(x)
			default:
				record[i] = fmt.Sprint(x)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRelativitiesCSV writes the one-way relativity table
func (e *Exporter) WriteRelativitiesCSV(w io.Writer, rows []report.RelativityRow) error {
	return e.writeCSV(w, e.relativities(rows))
}

// WriteInteractionsCSV writes interaction cells in long form
func (e *Exporter) WriteInteractionsCSV(w io.Writer, rows []report.InteractionRelativityRow) error {
	return e.writeCSV(w, e.interactions(rows))
}

// WriteVariableStatsCSV writes the variable-level statistics table
func (e *Exporter) WriteVariableStatsCSV(w io.Writer, rows []report.VariableStatRow) error {
	return e.writeCSV(w, e.variableStats(rows))
}

// WriteLiftCSV writes a lift chart
func (e *Exporter) WriteLiftCSV(w io.Writer, rows []report.LiftRow) error {
	return e.writeCSV(w, e.lift(rows))
}

// WriteUnivariateCSV writes an actual-vs-expected curve
func (e *Exporter) WriteUnivariateCSV(w io.Writer, rows []report.UnivariateRow) error {
	return e.writeCSV(w, e.univariate(rows))
}

// WriteFrameCSV writes a frame in its column order, numbers unrounded so it reads back unchanged
func (e *Exporter) WriteFrameCSV(w io.Writer, frame *dataset.Frame) error {
	t := table{header: frame.Columns}
	for _, row := range frame.Rows {
		line := make([]any, len(frame.Columns))
		for i, c := range frame.Columns {
			line[i] = row[c].String()
		}
		t.rows = append(t.rows, line)
	}
	return e.writeCSV(w, t)
}

// WriteCoefficientsCSV writes a coefficient table ReadCoefficients accepts
func (e *Exporter) WriteCoefficientsCSV(w io.Writer, coefficients []model.CoefficientTerm) error {
	t := table{header: []string{"term", "coefficient", "standard_error", "p_value"}}
	for _, c := range coefficients {
		t.rows = append(t.rows, []any{
			c.Term,
			dataset.FormatNumber(c.Coefficient),
			dataset.FormatNumber(c.StandardError),
			dataset.FormatNumber(c.PValue),
		})
	}
	return e.writeCSV(w, t)
}
