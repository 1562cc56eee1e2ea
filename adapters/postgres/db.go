package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plew99/cytokines-metaanalysis/domain/core"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Queries are written with ? placeholders and rebound per driver, so the same
// repositories run on lib/pq and on the embedded SQLite driver.

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// mapWriteError turns constraint violations into domain errors.
func mapWriteError(err error, resource, action string) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return core.NewConflictError(resource, "duplicate "+resource)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s references a missing row", core.ErrNotFound, resource)
	default:
		return fmt.Errorf("failed to %s %s: %w", action, resource, err)
	}
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func nullID(id core.ID) sql.NullString {
	return sql.NullString{String: id.String(), Valid: !id.IsEmpty()}
}

func idFromNull(s sql.NullString) core.ID {
	if !s.Valid {
		return ""
	}
	return core.ID(s.String)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func affectedOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
