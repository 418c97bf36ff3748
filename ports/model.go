package ports

import (
	"context"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
)

// FittedModel is the oracle over a fitted GLM. Implementations must be safe for concurrent Predict calls.
type FittedModel interface {
	ID() core.ModelID

	// Predict scores a batch of rows, returning one prediction per row in order
	Predict(ctx context.Context, rows []dataset.Row) ([]float64, error)

	CoefficientTable(ctx context.Context) ([]model.CoefficientTerm, error)
	Features() []model.Feature
	TargetVariable() string
	ExposureVariable() (string, bool)
	Interactions() []model.InteractionPair
}

// RowProvider supplies the training and test tables of a model
type RowProvider interface {
	TrainRows(ctx context.Context) (*dataset.Frame, error)
	TestRows(ctx context.Context) (*dataset.Frame, error)
}
