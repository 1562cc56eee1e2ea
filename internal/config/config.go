package config

import (
	"strings"

	"github.com/plew99/cytokines-metaanalysis/internal/effects"
	"github.com/plew99/cytokines-metaanalysis/internal/errors"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete application configuration
type Config struct {
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`

	Port     string `envconfig:"PORT" default:"8080"`
	GinMode  string `envconfig:"GIN_MODE" default:"release"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// Derivation engine
	CILevel                  float64 `envconfig:"CI_LEVEL" default:"0.95"`
	ZeroCellCorrection       float64 `envconfig:"ZERO_CELL_CORRECTION" default:"0"`
	SMDSmallSampleCorrection bool    `envconfig:"SMD_SMALL_SAMPLE_CORRECTION" default:"false"`

	ImportWorkers int `envconfig:"IMPORT_WORKERS" default:"4"`

	// Report sinks; the S3 sink is used when a bucket is set
	ReportsDir      string `envconfig:"REPORTS_DIR" default:"reports"`
	ReportsS3Bucket string `envconfig:"REPORTS_S3_BUCKET"`
	S3Endpoint      string `envconfig:"S3_ENDPOINT"`
	S3Region        string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY"`

	AuditSchedule  string `envconfig:"AUDIT_SCHEDULE"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads .env (if present) and the environment, then validates the result
func Load() (*Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))

	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &c, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		return errors.ConfigInvalid("DATABASE_DRIVER must be postgres or sqlite, got " + c.DatabaseDriver)
	}
	if c.CILevel <= 0 || c.CILevel >= 1 {
		return errors.ConfigInvalid("CI_LEVEL must be in (0,1)")
	}
	if c.ZeroCellCorrection < 0 {
		return errors.ConfigInvalid("ZERO_CELL_CORRECTION must be >= 0")
	}
	if c.ImportWorkers <= 0 {
		return errors.ConfigInvalid("IMPORT_WORKERS must be > 0")
	}
	if c.ReportsS3Bucket != "" && (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		return errors.ConfigInvalid("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
	}
	return nil
}

// DeriverOptions translates the engine settings
func (c *Config) DeriverOptions() effects.Options {
	return effects.Options{
		Level: c.CILevel,
		FormulaOptions: effects.FormulaOptions{
			ContinuityCorrection:  c.ZeroCellCorrection,
			SmallSampleCorrection: c.SMDSmallSampleCorrection,
		},
	}
}

// UseS3Reports reports whether import diagnostics go to S3
func (c *Config) UseS3Reports() bool {
	return c.ReportsS3Bucket != ""
}
