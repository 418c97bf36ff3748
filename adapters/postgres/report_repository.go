package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"goglm/domain/core"
	"goglm/domain/report"
	apperrors "goglm/internal/errors"
	"goglm/ports"
)

// reportRepository archives analysis runs in PostgreSQL
type reportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a report store backed by db. Call EnsureSchema first.
func NewReportRepository(db *sqlx.DB) ports.ReportStore {
	return &reportRepository{db: db}
}

// SaveReport writes the run and its variable-level statistics in one transaction
func (r *reportRepository) SaveReport(ctx context.Context, archive *report.Archive) error {
	if archive.ID.String() == "" {
		archive.ID = core.NewReportID()
	}
	if archive.CreatedAt.IsZero() {
		archive.CreatedAt = core.Now()
	}

	relativitiesJSON, err := json.Marshal(nonNil(archive.Relativities))
	if err != nil {
		return fmt.Errorf("failed to marshal relativities: %w", err)
	}
	liftJSON, err := json.Marshal(nonNil(archive.Lift))
	if err != nil {
		return fmt.Errorf("failed to marshal lift: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO report_runs (id, model_id, created_at, baseline, relativities, lift)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		archive.ID.String(), archive.ModelID.String(), archive.CreatedAt.Time(), archive.Baseline, relativitiesJSON, liftJSON)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return fmt.Errorf("report %s already archived: %w", archive.ID, err)
		}
		return apperrors.DatabaseError("failed to insert report run", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO variable_level_stats (
		report_id, position, variable, value, relativity, coefficient, p_value,
		standard_error, standard_error_pct, exposure_weight, exposure_weight_pct, match
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, row := range archive.VariableStats {
		_, err = stmt.ExecContext(ctx,
			archive.ID.String(), i, row.Variable, row.Value, row.Relativity, row.Coefficient, row.PValue,
			row.StandardError, row.StandardErrorPct, row.ExposureWeight, row.ExposureWeightPct, string(row.Match))
		if err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("failed to insert variable stat %s=%s", row.Variable, row.Value), err)
		}
	}

	return tx.Commit()
}

// LatestVariableStats returns the statistics of the most recent run of a model, in saved order
func (r *reportRepository) LatestVariableStats(ctx context.Context, modelID core.ModelID) ([]report.VariableStatRow, error) {
	var reportID string
	err := r.db.GetContext(ctx, &reportID, `SELECT id FROM report_runs
		WHERE model_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, modelID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no archived report for model %s", core.ErrArtifactNotFound, modelID)
		}
		return nil, apperrors.DatabaseError("failed to get latest report", err)
	}

	rows := []report.VariableStatRow{}
	err = r.db.SelectContext(ctx, &rows, `SELECT
		variable, value, relativity, coefficient, p_value, standard_error, standard_error_pct,
		exposure_weight, exposure_weight_pct, match
	FROM variable_level_stats
	WHERE report_id = $1
	ORDER BY position`, reportID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query variable stats", err)
	}
	return rows, nil
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
