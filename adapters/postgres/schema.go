package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"goglm/domain/core"
)

// migration is one versioned schema step
type migration struct {
	Version   string
	Statement string
}

func (m migration) checksum() string {
	return core.NewHash([]byte(m.Statement)).String()
}

var migrations = []migration{
	{
		Version: "001_report_runs",
		Statement: `CREATE TABLE IF NOT EXISTS report_runs (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			baseline DOUBLE PRECISION NOT NULL,
			relativities JSONB NOT NULL,
			lift JSONB NOT NULL
		)`,
	},
	{
		Version: "002_variable_level_stats",
		Statement: `CREATE TABLE IF NOT EXISTS variable_level_stats (
			report_id TEXT NOT NULL REFERENCES report_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			variable TEXT NOT NULL,
			value TEXT NOT NULL,
			relativity DOUBLE PRECISION NOT NULL,
			coefficient DOUBLE PRECISION NOT NULL,
			p_value DOUBLE PRECISION NOT NULL,
			standard_error DOUBLE PRECISION NOT NULL,
			standard_error_pct DOUBLE PRECISION NOT NULL,
			exposure_weight DOUBLE PRECISION NOT NULL,
			exposure_weight_pct DOUBLE PRECISION NOT NULL,
			match TEXT NOT NULL,
			PRIMARY KEY (report_id, position)
		)`,
	},
	{
		Version:   "003_report_runs_model_idx",
		Statement: `CREATE INDEX IF NOT EXISTS report_runs_model_created_idx ON report_runs (model_id, created_at DESC)`,
	},
}

// EnsureSchema applies pending migrations in order, each in its own transaction
func EnsureSchema(ctx context.Context, db *sqlx.DB, logger zerolog.Logger) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if sum, ok := applied[m.Version]; ok {
			if sum != m.checksum() {
				logger.Warn().Str("version", m.Version).Str("applied", core.Hash(sum).Short()).Msg("applied migration checksum differs")
			}
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		logger.Info().Str("version", m.Version).Msg("applied migration")
	}
	return nil
}

func appliedMigrations(ctx context.Context, db *sqlx.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sqlx.DB, m migration) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Statement); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`, m.Version, m.checksum()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
