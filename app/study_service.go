package app

import (
	"context"
	"sort"
	"strings"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal"
	apperrors "github.com/plew99/cytokines-metaanalysis/internal/errors"
	"github.com/plew99/cytokines-metaanalysis/ports"
)

// StudyDetail is a study with everything it owns
type StudyDetail struct {
	Study      ma.Study       `json:"study"`
	Arms       []ma.Arm       `json:"arms"`
	Outcomes   []ma.Outcome   `json:"outcomes"`
	Covariates []ma.Covariate `json:"covariates"`
	Tags       []ma.Tag       `json:"tags"`
}

// StudyService manages studies and their arms, outcomes, covariates and tags
type StudyService struct {
	studies ports.StudyRepository
	logger  *internal.Logger
}

// NewStudyService creates a study service
func NewStudyService(studies ports.StudyRepository, logger *internal.Logger) *StudyService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &StudyService{studies: studies, logger: logger.Component("studies")}
}

// Create stores a new study
func (s *StudyService) Create(ctx context.Context, study *ma.Study) error {
	study.Title = strings.TrimSpace(study.Title)
	if study.Title == "" {
		return apperrors.InvalidInput("title is required")
	}
	if err := s.studies.CreateStudy(ctx, study); err != nil {
		return err
	}
	s.logger.Info("Created study %s", study.ID)
	return nil
}

// Get returns a study with its arms, outcomes, covariates and tags
func (s *StudyService) Get(ctx context.Context, id core.ID) (*StudyDetail, error) {
	sc, err := s.studies.LoadContext(ctx, id)
	if err != nil {
		return nil, err
	}
	tags, err := s.studies.ListTags(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &StudyDetail{
		Study:      sc.Study,
		Arms:       make([]ma.Arm, 0, len(sc.Arms)),
		Outcomes:   make([]ma.Outcome, 0, len(sc.Outcomes)),
		Covariates: make([]ma.Covariate, 0, len(sc.Covariates)),
		Tags:       tags,
	}
	for _, a := range sc.Arms {
		detail.Arms = append(detail.Arms, a)
	}
	for _, o := range sc.Outcomes {
		detail.Outcomes = append(detail.Outcomes, o)
	}
	for _, c := range sc.Covariates {
		detail.Covariates = append(detail.Covariates, c)
	}
	sortByID(detail.Arms, func(a ma.Arm) core.ID { return a.ID })
	sortByID(detail.Outcomes, func(o ma.Outcome) core.ID { return o.ID })
	sortByID(detail.Covariates, func(c ma.Covariate) core.ID { return c.ID })
	return detail, nil
}

// List returns studies in the requested order
func (s *StudyService) List(ctx context.Context, q ports.StudyQuery) ([]*ma.Study, error) {
	return s.studies.ListStudies(ctx, q)
}

// Delete removes a study. Without cascade, a study that still owns rows is
// left untouched and core.ErrHasDependents is returned.
func (s *StudyService) Delete(ctx context.Context, id core.ID, cascade bool) error {
	if err := s.studies.DeleteStudy(ctx, id, cascade); err != nil {
		return err
	}
	s.logger.Info("Deleted study %s (cascade=%t)", id, cascade)
	return nil
}

// AddArm attaches an arm to a study
func (s *StudyService) AddArm(ctx context.Context, studyID core.ID, arm *ma.Arm) error {
	arm.StudyID = studyID
	if arm.N != nil && *arm.N <= 0 {
		return apperrors.InvalidInput("arm n must be positive")
	}
	return s.studies.AddArm(ctx, arm)
}

// AddOutcome attaches an outcome to a study
func (s *StudyService) AddOutcome(ctx context.Context, studyID core.ID, outcome *ma.Outcome) error {
	outcome.StudyID = studyID
	if strings.TrimSpace(outcome.Name) == "" {
		return apperrors.InvalidInput("outcome name is required")
	}
	return s.studies.AddOutcome(ctx, outcome)
}

// AddCovariate attaches a covariate to a study
func (s *StudyService) AddCovariate(ctx context.Context, studyID core.ID, covariate *ma.Covariate) error {
	covariate.StudyID = studyID
	if strings.TrimSpace(covariate.Name) == "" {
		return apperrors.InvalidInput("covariate name is required")
	}
	return s.studies.AddCovariate(ctx, covariate)
}

// Tag labels a study, creating the tag on first use
func (s *StudyService) Tag(ctx context.Context, studyID core.ID, name string) (*ma.Tag, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.InvalidInput("tag name is required")
	}
	if _, err := s.studies.GetStudy(ctx, studyID); err != nil {
		return nil, err
	}
	return s.studies.TagStudy(ctx, studyID, name)
}

func sortByID[T any](items []T, id func(T) core.ID) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
