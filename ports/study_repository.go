package ports

import (
	"context"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// StudyQuery controls listing order and paging
type StudyQuery struct {
	// Sort is one of title, year, journal, created_at. Empty sorts by created_at.
	Sort string
	// Descending reverses the order
	Descending bool
	// Tag restricts the listing to studies carrying the named tag
	Tag    string
	Limit  int
	Offset int
}

// StudyRepository stores studies and the entities they own
type StudyRepository interface {
	CreateStudy(ctx context.Context, study *ma.Study) error
	UpdateStudy(ctx context.Context, study *ma.Study) error
	GetStudy(ctx context.Context, id core.ID) (*ma.Study, error)
	ListStudies(ctx context.Context, q StudyQuery) ([]*ma.Study, error)
	// DeleteStudy fails with core.ErrHasDependents when the study still owns
	// rows, unless cascade is set.
	DeleteStudy(ctx context.Context, id core.ID, cascade bool) error

	AddArm(ctx context.Context, arm *ma.Arm) error
	AddOutcome(ctx context.Context, outcome *ma.Outcome) error
	AddCovariate(ctx context.Context, covariate *ma.Covariate) error
	// TagStudy attaches the named tag, creating it on first use
	TagStudy(ctx context.Context, studyID core.ID, name string) (*ma.Tag, error)
	ListTags(ctx context.Context, studyID core.ID) ([]ma.Tag, error)

	// LoadContext returns the study with all its arms, outcomes and covariates
	LoadContext(ctx context.Context, studyID core.ID) (ma.StudyContext, error)
}
