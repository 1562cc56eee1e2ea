package ports

import (
	"context"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// StudyTag links a study to a tag by name
type StudyTag struct {
	StudyID core.ID
	Name    string
}

// ImportBatch is everything one workbook import persists
type ImportBatch struct {
	Studies    []ma.Study
	Arms       []ma.Arm
	Outcomes   []ma.Outcome
	Covariates []ma.Covariate
	Tags       []StudyTag
	Effects    []ma.Effect
	// Replace clears all stored studies, with everything they own and
	// every tag, before inserting.
	Replace bool
}

// ImportRepository persists import results atomically
type ImportRepository interface {
	SaveBatch(ctx context.Context, batch *ImportBatch) error
	SaveRawRecords(ctx context.Context, records []ma.RawRecord, replace bool) error
}

// Rows counts the entities the batch would write
func (b *ImportBatch) Rows() int {
	return len(b.Studies) + len(b.Arms) + len(b.Outcomes) + len(b.Covariates) + len(b.Tags) + len(b.Effects)
}

// Empty reports whether the batch holds nothing to write
func (b *ImportBatch) Empty() bool {
	return b.Rows() == 0
}
