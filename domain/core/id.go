package core

import (
	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// Domain-specific ID types
type (
	ModelID  ID
	ReportID ID
)

func (id ModelID) String() string  { return ID(id).String() }
func (id ReportID) String() string { return ID(id).String() }

// NewReportID creates a time-ordered identifier for an archived report run
func NewReportID() ReportID {
	return ReportID(NewID())
}

// ArtifactKind names a derived table cached or archived per model
type ArtifactKind string

const (
	ArtifactBaseValues     ArtifactKind = "base_values"
	ArtifactRelativities   ArtifactKind = "relativities"
	ArtifactVariableStats  ArtifactKind = "variable_level_stats"
	ArtifactLiftChart      ArtifactKind = "lift_chart"
	ArtifactUnivariate     ArtifactKind = "univariate"
	ArtifactModelMetrics   ArtifactKind = "model_metrics"
	ArtifactPredictedTrain ArtifactKind = "predicted_train"
	ArtifactPredictedTest  ArtifactKind = "predicted_test"
)
