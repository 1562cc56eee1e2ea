package container

import (
	"context"
	"fmt"

	"github.com/plew99/cytokines-metaanalysis/adapters/excel"
	"github.com/plew99/cytokines-metaanalysis/adapters/postgres"
	"github.com/plew99/cytokines-metaanalysis/adapters/reports"
	"github.com/plew99/cytokines-metaanalysis/app"
	"github.com/plew99/cytokines-metaanalysis/internal"
	"github.com/plew99/cytokines-metaanalysis/internal/config"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"
	"github.com/plew99/cytokines-metaanalysis/internal/errors"
	"github.com/plew99/cytokines-metaanalysis/internal/metrics"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB      *sqlx.DB
	Metrics *metrics.Metrics
	Deriver *effects.Deriver
	Reader  ports.WorkbookReader
	Reports ports.ReportSink

	// Repositories (data access layer)
	StudyRepo  ports.StudyRepository
	EffectRepo ports.EffectRepository
	ImportRepo ports.ImportRepository

	// Application services
	Studies *app.StudyService
	Effects *app.EffectService
	Imports *app.ImportService
	Audit   *app.AuditService

	scheduler *cron.Cron
}

// New creates a new dependency injection container. Components that need
// the database are added by InitWithDatabase.
func New(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		Reader: excel.NewWorkbookReader(logger),
	}

	var err error
	c.Deriver, err = effects.NewDeriver(cfg.DeriverOptions())
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if cfg.MetricsEnabled {
		c.Metrics = metrics.New()
	}
	c.Reports, err = reports.New(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize report sink")
	}
	return c, nil
}

// InitWithDatabase initializes components that require database access
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	c.DB = db

	// Test database connection
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.initRepositories()
	c.initServices()

	c.Logger.Info("Container initialized successfully with database connection")
	return nil
}

// initRepositories initializes data access repositories
func (c *Container) initRepositories() {
	c.StudyRepo = postgres.NewStudyRepository(c.DB)
	c.EffectRepo = postgres.NewEffectRepository(c.DB)
	c.ImportRepo = postgres.NewImportRepository(c.DB)
}

func (c *Container) initServices() {
	c.Studies = app.NewStudyService(c.StudyRepo, c.Logger)
	c.Effects = app.NewEffectService(c.Deriver, c.StudyRepo, c.EffectRepo, c.Metrics, c.Logger)
	c.Imports = app.NewImportService(c.Reader, c.ImportRepo, c.StudyRepo, c.Reports, c.Deriver, c.Metrics, c.Logger, c.Config.ImportWorkers)
	c.Audit = app.NewAuditService(c.StudyRepo, c.EffectRepo, c.Metrics, c.Logger)
}

// StartAudit schedules the re-validation audit when AUDIT_SCHEDULE is set
func (c *Container) StartAudit() error {
	if c.Config.AuditSchedule == "" {
		return nil
	}
	if c.Audit == nil {
		return fmt.Errorf("audit service not initialized")
	}
	scheduler := cron.New()
	if _, err := c.Audit.Schedule(scheduler, c.Config.AuditSchedule); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("invalid AUDIT_SCHEDULE %q: %w", c.Config.AuditSchedule, err))
	}
	scheduler.Start()
	c.scheduler = scheduler
	c.Logger.Info("Audit scheduled: %s", c.Config.AuditSchedule)
	return nil
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.scheduler != nil {
		stopped := c.scheduler.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}

	// Close database connection
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
