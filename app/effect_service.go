package app

import (
	"context"
	"fmt"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"
	"github.com/plew99/cytokines-metaanalysis/internal/metrics"
	"github.com/plew99/cytokines-metaanalysis/ports"
)

// EffectRequest carries the edited fields of one effect record
type EffectRequest struct {
	EffectType string `json:"effect_type"`
	ma.RawInput
}

// EffectService derives effects from edited raw inputs and persists them.
// Every write re-runs the full derivation against the study as stored.
type EffectService struct {
	deriver *effects.Deriver
	studies ports.StudyRepository
	effects ports.EffectRepository
	metrics *metrics.Metrics
	logger  *internal.Logger
}

// NewEffectService creates an effect service
func NewEffectService(deriver *effects.Deriver, studies ports.StudyRepository, effectRepo ports.EffectRepository, m *metrics.Metrics, logger *internal.Logger) *EffectService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &EffectService{
		deriver: deriver,
		studies: studies,
		effects: effectRepo,
		metrics: m,
		logger:  logger.Component("effects"),
	}
}

// Preview derives an effect for the study without persisting it
func (s *EffectService) Preview(ctx context.Context, studyID core.ID, req EffectRequest) (*ma.Effect, error) {
	raw := req.RawInput
	raw.StudyID = studyID
	return s.derive(ctx, raw, req.EffectType)
}

// Create derives and stores a new effect for the study
func (s *EffectService) Create(ctx context.Context, studyID core.ID, req EffectRequest) (*ma.Effect, error) {
	raw := req.RawInput
	raw.ID = ""
	raw.StudyID = studyID

	effect, err := s.derive(ctx, raw, req.EffectType)
	if err != nil {
		return nil, err
	}
	if err := s.effects.Create(ctx, effect); err != nil {
		return nil, err
	}
	s.logger.Info("Created %s effect %s for study %s", effect.Type, effect.ID, studyID)
	return effect, nil
}

// Update re-derives an existing effect from the edited fields, keeping its
// ID and owning study. An empty effect type keeps the stored one.
func (s *EffectService) Update(ctx context.Context, id core.ID, req EffectRequest) (*ma.Effect, error) {
	existing, err := s.effects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	raw := req.RawInput
	raw.ID = existing.ID
	raw.StudyID = existing.StudyID
	symbol := req.EffectType
	if symbol == "" {
		symbol = string(existing.Type)
	}

	effect, err := s.derive(ctx, raw, symbol)
	if err != nil {
		return nil, err
	}
	if err := s.effects.Update(ctx, effect); err != nil {
		return nil, err
	}
	s.logger.Info("Updated effect %s", effect.ID)
	return effect, nil
}

// Get returns one stored effect
func (s *EffectService) Get(ctx context.Context, id core.ID) (*ma.Effect, error) {
	return s.effects.GetByID(ctx, id)
}

// ListByStudy returns the stored effects of a study
func (s *EffectService) ListByStudy(ctx context.Context, studyID core.ID) ([]*ma.Effect, error) {
	if _, err := s.studies.GetStudy(ctx, studyID); err != nil {
		return nil, err
	}
	return s.effects.ListByStudy(ctx, studyID)
}

// Delete removes a stored effect
func (s *EffectService) Delete(ctx context.Context, id core.ID) error {
	if err := s.effects.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted effect %s", id)
	return nil
}

func (s *EffectService) derive(ctx context.Context, raw ma.RawInput, symbol string) (*ma.Effect, error) {
	t, err := ma.ParseEffectType(symbol)
	if err != nil {
		err = &effects.DerivationError{Stage: effects.StageResolve, Err: err}
		s.metrics.ObserveDerivation("", err)
		return nil, err
	}

	sc, err := s.studies.LoadContext(ctx, raw.StudyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load study %s: %w", raw.StudyID, err)
	}

	effect, err := s.deriver.Derive(raw, t, sc)
	s.metrics.ObserveDerivation(t, err)
	if err != nil {
		s.logger.Debug("Derivation of %s for study %s failed: %v", t, raw.StudyID, err)
		return nil, err
	}
	return effect, nil
}
