package excel

import "goglm/domain/report"

// RawRowData represents a row of raw spreadsheet data as string key-value pairs
type RawRowData map[string]string

// RawTable represents a complete sheet or CSV file before typing
type RawTable struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// Reports bundles the tables written to one workbook. Empty tables still get their sheet.
type Reports struct {
	Relativities  []report.RelativityRow
	Interactions  []report.InteractionRelativityRow
	VariableStats []report.VariableStatRow
	Lift          []report.LiftRow
	Univariate    []report.UnivariateRow
}

// Sheet names of the exported workbook
const (
	SheetRelativities  = "Relativities"
	SheetInteractions  = "Interactions"
	SheetVariableStats = "VariableLevelStats"
	SheetLift          = "LiftChart"
	SheetUnivariate    = "Univariate"
)
