package report

import (
	"goglm/domain/core"
	"goglm/domain/dataset"
)

// Label used for the intercept / baseline rows
const BaseLabel = "base"

// BaseValueRow reports the reference value chosen for one feature
type BaseValueRow struct {
	Variable string `json:"variable"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
}

// RelativityRow is one entry of the one-way relativity table
type RelativityRow struct {
	Variable   string  `json:"variable"`
	Value      string  `json:"value"`
	Relativity float64 `json:"relativity"`
}

// InteractionRelativityRow is one cell of a pair's grid
type InteractionRelativityRow struct {
	First       string  `json:"first"`
	Second      string  `json:"second"`
	FirstValue  string  `json:"first_value"`
	SecondValue string  `json:"second_value"`
	Joint       float64 `json:"joint_relativity"`
	Pure        float64 `json:"pure_relativity"`
	Active      bool    `json:"active"`
}

// MatchStatus tells a real coefficient join apart from a defaulted one. The reference level
// of a categorical feature has no term by construction and is not a defaulted join.
type MatchStatus string

const (
	MatchExact     MatchStatus = "exact"
	MatchReference MatchStatus = "reference"
	MatchDefaulted MatchStatus = "defaulted"
)

// VariableStatRow is one row of the variable-level statistics table
type VariableStatRow struct {
	Variable          string      `json:"variable" db:"variable"`
	Value             string      `json:"value" db:"value"`
	Relativity        float64     `json:"relativity" db:"relativity"`
	Coefficient       float64     `json:"coefficient" db:"coefficient"`
	PValue            float64     `json:"p_value" db:"p_value"`
	StandardError     float64     `json:"standard_error" db:"standard_error"`
	StandardErrorPct  float64     `json:"standard_error_pct" db:"standard_error_pct"`
	ExposureWeight    float64     `json:"exposure_weight" db:"exposure_weight"`
	ExposureWeightPct float64     `json:"exposure_weight_pct" db:"exposure_weight_pct"`
	Match             MatchStatus `json:"match" db:"match"`
}

// LiftRow is one populated bin of a lift chart
type LiftRow struct {
	Bin               int               `json:"bin" db:"bin"`
	Dataset           dataset.Partition `json:"dataset" db:"dataset"`
	WeightedObserved  float64           `json:"weighted_observed" db:"weighted_observed"`
	WeightedPredicted float64           `json:"weighted_predicted" db:"weighted_predicted"`
	Exposure          float64           `json:"exposure" db:"exposure"`
	Rows              int               `json:"rows" db:"row_count"`
	ScoreMin          float64           `json:"score_min" db:"score_min"`
	ScoreMax          float64           `json:"score_max" db:"score_max"`
}

// UnivariateRow is one level or bin of an actual-vs-expected curve
type UnivariateRow struct {
	Variable            string            `json:"variable"`
	Category            string            `json:"category"`
	ObservedAverage     float64           `json:"observed_average"`
	FittedAverage       float64           `json:"fitted_average"`
	BaseLevelPrediction float64           `json:"base_level_prediction"`
	Exposure            float64           `json:"exposure"`
	Dataset             dataset.Partition `json:"dataset"`
}

// ModelMetrics summarises fit quality on one partition
type ModelMetrics struct {
	Dataset       dataset.Partition `json:"dataset"`
	Family        string            `json:"family"`
	Rows          int               `json:"rows"`
	Parameters    int               `json:"parameters"`
	Deviance      float64           `json:"deviance"`
	LogLikelihood float64           `json:"log_likelihood"`
	AIC           float64           `json:"aic"`
	BIC           float64           `json:"bic"`
}

// Archive is a persisted snapshot of one analysis run
type Archive struct {
	ID            core.ReportID     `json:"id"`
	ModelID       core.ModelID      `json:"model_id"`
	CreatedAt     core.Timestamp    `json:"created_at"`
	Baseline      float64           `json:"baseline"`
	Relativities  []RelativityRow   `json:"relativities"`
	VariableStats []VariableStatRow `json:"variable_stats"`
	Lift          []LiftRow         `json:"lift"`
}
