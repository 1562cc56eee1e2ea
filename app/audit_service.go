package app

import (
	"context"
	"fmt"
	"time"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"
	"github.com/plew99/cytokines-metaanalysis/internal/metrics"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/robfig/cron/v3"
)

// Violation is a stored effect that no longer passes validation
type Violation struct {
	EffectID  core.ID       `json:"effect_id"`
	StudyID   core.ID       `json:"study_id"`
	Type      ma.EffectType `json:"effect_type"`
	Invariant string        `json:"invariant,omitempty"`
	Field     string        `json:"field,omitempty"`
	Error     string        `json:"error"`
}

// AuditReport is the outcome of one re-validation pass
type AuditReport struct {
	Studies    int         `json:"studies"`
	Checked    int         `json:"checked"`
	Violations []Violation `json:"violations"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// AuditService re-validates stored effects against their studies as they
// are stored now. Validation is idempotent, so a clean database stays clean.
type AuditService struct {
	studies ports.StudyRepository
	effects ports.EffectRepository
	metrics *metrics.Metrics
	logger  *internal.Logger
}

// NewAuditService creates an audit service
func NewAuditService(studies ports.StudyRepository, effectRepo ports.EffectRepository, m *metrics.Metrics, logger *internal.Logger) *AuditService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &AuditService{
		studies: studies,
		effects: effectRepo,
		metrics: m,
		logger:  logger.Component("audit"),
	}
}

// Run validates every stored effect once
func (s *AuditService) Run(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{StartedAt: time.Now().UTC(), Violations: []Violation{}}

	studyIDs, err := s.effects.ListStudyIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies with effects: %w", err)
	}

	for _, studyID := range studyIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sc, err := s.studies.LoadContext(ctx, studyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load study %s: %w", studyID, err)
		}
		stored, err := s.effects.ListByStudy(ctx, studyID)
		if err != nil {
			return nil, fmt.Errorf("failed to list effects of study %s: %w", studyID, err)
		}

		report.Studies++
		for _, e := range stored {
			report.Checked++
			if _, err := effects.Validate(*e, sc); err != nil {
				v := Violation{EffectID: e.ID, StudyID: e.StudyID, Type: e.Type, Error: err.Error()}
				if inv, ok := ma.ViolatedInvariant(err); ok {
					v.Invariant = string(inv)
				}
				v.Field = errorColumn(err)
				report.Violations = append(report.Violations, v)
			}
		}
	}

	report.FinishedAt = time.Now().UTC()
	s.metrics.ObserveAudit(len(report.Violations))
	if len(report.Violations) > 0 {
		s.logger.Warn("Audit found %d violations in %d effects", len(report.Violations), report.Checked)
	} else {
		s.logger.Info("Audit checked %d effects in %d studies, no violations", report.Checked, report.Studies)
	}
	return report, nil
}

// Schedule registers the audit on c with a standard five-field cron spec
func (s *AuditService) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if _, err := s.Run(context.Background()); err != nil {
			s.logger.Error("Scheduled audit failed: %v", err)
		}
	})
}
