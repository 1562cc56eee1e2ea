package metaanalysis

import (
	"time"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
)

// Study is a research publication and the root aggregate for arms, outcomes,
// covariates and effects.
type Study struct {
	ID        core.ID   `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Year      *int      `json:"year,omitempty" db:"year"`
	Journal   string    `json:"journal,omitempty" db:"journal"`
	DOI       *string   `json:"doi,omitempty" db:"doi"`
	Authors   string    `json:"authors,omitempty" db:"authors"`
	Country   string    `json:"country,omitempty" db:"country"`
	Design    string    `json:"design,omitempty" db:"design"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Arm is one experimental or comparison group within a study.
type Arm struct {
	ID          core.ID `json:"id" db:"id"`
	StudyID     core.ID `json:"study_id" db:"study_id"`
	Label       string  `json:"label" db:"label"`
	N           *int    `json:"n,omitempty" db:"n"`
	Description string  `json:"description,omitempty" db:"description"`
}

// Outcome is a measured construct within a study, e.g. a cytokine concentration.
type Outcome struct {
	ID        core.ID `json:"id" db:"id"`
	StudyID   core.ID `json:"study_id" db:"study_id"`
	Name      string  `json:"name" db:"name"`
	Unit      string  `json:"unit,omitempty" db:"unit"`
	Direction string  `json:"direction,omitempty" db:"direction"`
	Domain    string  `json:"domain,omitempty" db:"domain"`
	Method    string  `json:"method,omitempty" db:"method"`
}

// Covariate is a name/value attribute attached to a study.
type Covariate struct {
	ID      core.ID `json:"id" db:"id"`
	StudyID core.ID `json:"study_id" db:"study_id"`
	Name    string  `json:"name" db:"name"`
	Value   string  `json:"value,omitempty" db:"value"`
}

// Tag labels studies; membership is many-to-many.
type Tag struct {
	ID   core.ID `json:"id" db:"id"`
	Name string  `json:"name" db:"name"`
}

// StudyContext is the arena of entities a derivation or validation runs
// against. Lookups are keyed by stable identifiers and every entity carries
// its owning study, so entries from other studies may be present without
// implying ownership.
type StudyContext struct {
	Study      Study
	Arms       map[core.ID]Arm
	Outcomes   map[core.ID]Outcome
	Covariates map[core.ID]Covariate
}

// NewStudyContext indexes the given entities by ID.
func NewStudyContext(study Study, arms []Arm, outcomes []Outcome, covariates []Covariate) StudyContext {
	sc := StudyContext{
		Study:      study,
		Arms:       make(map[core.ID]Arm, len(arms)),
		Outcomes:   make(map[core.ID]Outcome, len(outcomes)),
		Covariates: make(map[core.ID]Covariate, len(covariates)),
	}
	for _, a := range arms {
		sc.Arms[a.ID] = a
	}
	for _, o := range outcomes {
		sc.Outcomes[o.ID] = o
	}
	for _, c := range covariates {
		sc.Covariates[c.ID] = c
	}
	return sc
}

// Arm looks up an arm by ID regardless of owning study.
func (c StudyContext) Arm(id core.ID) (Arm, bool) {
	a, ok := c.Arms[id]
	return a, ok
}

// Outcome looks up an outcome by ID regardless of owning study.
func (c StudyContext) Outcome(id core.ID) (Outcome, bool) {
	o, ok := c.Outcomes[id]
	return o, ok
}
