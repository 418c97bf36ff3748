package ports

import (
	"context"

	"goglm/domain/core"
	"goglm/domain/report"
)

// ReportStore archives analysis runs
type ReportStore interface {
	SaveReport(ctx context.Context, archive *report.Archive) error
	LatestVariableStats(ctx context.Context, modelID core.ModelID) ([]report.VariableStatRow, error)
}

// ArtifactCache is a shared second-level cache for serialized artifacts.
// Get returns found=false without error on a miss.
type ArtifactCache interface {
	Get(ctx context.Context, modelID core.ModelID, artifact string) (payload []byte, found bool, err error)
	Set(ctx context.Context, modelID core.ModelID, artifact string, payload []byte) error
	Delete(ctx context.Context, modelID core.ModelID, artifact string) error
	Invalidate(ctx context.Context, modelID core.ModelID) error
}
