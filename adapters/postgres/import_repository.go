package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/jmoiron/sqlx"
)

// importRepository implements the ImportRepository interface
type importRepository struct {
	db *sqlx.DB
}

// NewImportRepository creates a new import repository
func NewImportRepository(db *sqlx.DB) ports.ImportRepository {
	return &importRepository{db: db}
}

// SaveBatch writes a whole import in one transaction. Any failure rolls back
// every row of the batch.
func (r *importRepository) SaveBatch(ctx context.Context, batch *ports.ImportBatch) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if batch.Replace {
			if err := clearStudies(ctx, tx); err != nil {
				return err
			}
		}

		for i := range batch.Studies {
			if err := insertStudy(ctx, tx, &batch.Studies[i]); err != nil {
				return fmt.Errorf("study %q: %w", batch.Studies[i].Title, err)
			}
		}
		for i := range batch.Arms {
			if err := insertArm(ctx, tx, &batch.Arms[i]); err != nil {
				return err
			}
		}
		for i := range batch.Outcomes {
			if err := insertOutcome(ctx, tx, &batch.Outcomes[i]); err != nil {
				return err
			}
		}
		for i := range batch.Covariates {
			if err := insertCovariate(ctx, tx, &batch.Covariates[i]); err != nil {
				return err
			}
		}
		for _, st := range batch.Tags {
			if _, err := tagStudy(ctx, tx, st.StudyID, st.Name); err != nil {
				return err
			}
		}
		for i := range batch.Effects {
			if err := insertEffect(ctx, tx, &batch.Effects[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// clearStudies removes every study with everything it owns, and the tag
// vocabulary.
func clearStudies(ctx context.Context, tx *sqlx.Tx) error {
	tables := append(append([]string{}, studyChildTables...), "tags", "studies")
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// SaveRawRecords stores flat workbook rows as JSON documents. With replace,
// previously stored raw records are removed first.
func (r *importRepository) SaveRawRecords(ctx context.Context, records []ma.RawRecord, replace bool) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if replace {
			if _, err := tx.ExecContext(ctx, `DELETE FROM raw_records`); err != nil {
				return fmt.Errorf("failed to clear raw records: %w", err)
			}
		}
		query := tx.Rebind(`INSERT INTO raw_records (id, source, sheet, row_num, data, invalid_fields, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		for i := range records {
			rec := &records[i]
			if rec.ID.IsEmpty() {
				rec.ID = core.NewID()
			}
			rec.CreatedAt = now()

			data, err := json.Marshal(rec.Data)
			if err != nil {
				return fmt.Errorf("failed to marshal raw record: %w", err)
			}
			invalid := rec.Invalid
			if invalid == nil {
				invalid = []string{}
			}
			invalidJSON, err := json.Marshal(invalid)
			if err != nil {
				return fmt.Errorf("failed to marshal invalid fields: %w", err)
			}

			if _, err := tx.ExecContext(ctx, query,
				rec.ID, rec.Source, rec.Sheet, rec.Row, string(data), string(invalidJSON), rec.CreatedAt,
			); err != nil {
				return mapWriteError(err, "raw record", "create")
			}
		}
		return nil
	})
}
