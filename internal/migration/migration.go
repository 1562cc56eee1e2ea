package migration

import (
	"context"

	"github.com/plew99/cytokines-metaanalysis/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations. Statements are written
// in the subset of SQL shared by PostgreSQL and SQLite.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		fn   func(context.Context, *sqlx.DB) error
	}{
		{"studies", r.createStudiesTable},
		{"arms", r.createArmsTable},
		{"outcomes", r.createOutcomesTable},
		{"covariates", r.createCovariatesTable},
		{"tags", r.createTagsTables},
		{"effects", r.createEffectsTable},
		{"raw_records", r.createRawRecordsTable},
		{"indexes", r.createIndexes},
	}

	for _, step := range steps {
		if err := step.fn(ctx, db); err != nil {
			return errors.Wrapf(err, "failed to create %s", step.name)
		}
	}
	return nil
}

func (r *MigrationRunner) createStudiesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS studies (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			year INTEGER,
			journal TEXT NOT NULL DEFAULT '',
			doi TEXT UNIQUE,
			authors TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			design TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createArmsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS arms (
			id TEXT PRIMARY KEY,
			study_id TEXT NOT NULL REFERENCES studies(id),
			label TEXT NOT NULL DEFAULT '',
			n INTEGER,
			description TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

func (r *MigrationRunner) createOutcomesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			study_id TEXT NOT NULL REFERENCES studies(id),
			name TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			direction TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

func (r *MigrationRunner) createCovariatesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS covariates (
			id TEXT PRIMARY KEY,
			study_id TEXT NOT NULL REFERENCES studies(id),
			name TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

func (r *MigrationRunner) createTagsTables(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)
	`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS study_tags (
			study_id TEXT NOT NULL REFERENCES studies(id),
			tag_id TEXT NOT NULL REFERENCES tags(id),
			PRIMARY KEY (study_id, tag_id)
		)
	`)
	return err
}

func (r *MigrationRunner) createEffectsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS effects (
			id TEXT PRIMARY KEY,
			study_id TEXT NOT NULL REFERENCES studies(id),
			outcome_id TEXT NOT NULL REFERENCES outcomes(id),
			effect_type TEXT NOT NULL CHECK (effect_type IN ('SMD', 'MD', 'logOR', 'RR')),
			effect DOUBLE PRECISION NOT NULL,
			se DOUBLE PRECISION NOT NULL,
			ci_low DOUBLE PRECISION,
			ci_high DOUBLE PRECISION,
			ci_level DOUBLE PRECISION,
			arm_id TEXT REFERENCES arms(id),
			arm_treat_id TEXT REFERENCES arms(id),
			arm_ctrl_id TEXT REFERENCES arms(id),
			mean_treat DOUBLE PRECISION,
			sd_treat DOUBLE PRECISION,
			n_treat DOUBLE PRECISION,
			mean_ctrl DOUBLE PRECISION,
			sd_ctrl DOUBLE PRECISION,
			n_ctrl DOUBLE PRECISION,
			events_treat DOUBLE PRECISION,
			total_treat DOUBLE PRECISION,
			events_ctrl DOUBLE PRECISION,
			total_ctrl DOUBLE PRECISION,
			continuity_correction DOUBLE PRECISION NOT NULL DEFAULT 0,
			small_sample_correction BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (study_id, outcome_id, effect_type, arm_treat_id, arm_ctrl_id),
			UNIQUE (study_id, outcome_id, effect_type, arm_id)
		)
	`)
	return err
}

func (r *MigrationRunner) createRawRecordsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS raw_records (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			sheet TEXT NOT NULL,
			row_num INTEGER NOT NULL,
			data TEXT NOT NULL,
			invalid_fields TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_arms_study_id ON arms(study_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_study_id ON outcomes(study_id)`,
		`CREATE INDEX IF NOT EXISTS idx_covariates_study_id ON covariates(study_id)`,
		`CREATE INDEX IF NOT EXISTS idx_effects_study_id ON effects(study_id)`,
		`CREATE INDEX IF NOT EXISTS idx_effects_outcome_id ON effects(outcome_id)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_records_source ON raw_records(source)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
