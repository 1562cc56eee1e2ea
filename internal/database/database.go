// Package database opens the configured SQL backend.
package database

import (
	"context"
	"strings"

	"github.com/plew99/cytokines-metaanalysis/internal/config"
	"github.com/plew99/cytokines-metaanalysis/internal/errors"
	"github.com/plew99/cytokines-metaanalysis/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to driver/dsn. SQLite connections get foreign keys enabled
// and a single writer.
func Open(driver, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	if driver == config.DriverSQLite && !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to connect to database"))
	}
	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenAndMigrate opens the configured database and runs migrations.
func OpenAndMigrate(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "database migration failed"))
	}
	return db, nil
}
