package ports

import (
	"context"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// EffectRepository stores derived effects. Duplicate effects (same study,
// outcome, type and arm reference) fail with core.ErrConflict.
type EffectRepository interface {
	Create(ctx context.Context, effect *ma.Effect) error
	Update(ctx context.Context, effect *ma.Effect) error
	GetByID(ctx context.Context, id core.ID) (*ma.Effect, error)
	ListByStudy(ctx context.Context, studyID core.ID) ([]*ma.Effect, error)
	// ListStudyIDs returns every study that owns at least one effect
	ListStudyIDs(ctx context.Context) ([]core.ID, error)
	Delete(ctx context.Context, id core.ID) error
}
