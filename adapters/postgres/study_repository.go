package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/jmoiron/sqlx"
)

// studyRepository implements the StudyRepository interface
type studyRepository struct {
	db *sqlx.DB
}

// NewStudyRepository creates a new study repository
func NewStudyRepository(db *sqlx.DB) ports.StudyRepository {
	return &studyRepository{db: db}
}

const studyColumns = `id, title, year, journal, doi, authors, country, design, notes, created_at, updated_at`

var studySortColumns = map[string]string{
	"title":      "s.title",
	"year":       "s.year",
	"journal":    "s.journal",
	"created_at": "s.created_at",
}

// CreateStudy inserts a study, stamping its timestamps
func (r *studyRepository) CreateStudy(ctx context.Context, study *ma.Study) error {
	if study.ID.IsEmpty() {
		study.ID = core.NewID()
	}
	return insertStudy(ctx, r.db, study)
}

// UpdateStudy rewrites the descriptive fields of a study
func (r *studyRepository) UpdateStudy(ctx context.Context, study *ma.Study) error {
	study.UpdatedAt = now()
	query := r.db.Rebind(`UPDATE studies SET
		title = ?, year = ?, journal = ?, doi = ?, authors = ?, country = ?, design = ?, notes = ?, updated_at = ?
	WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query,
		study.Title, study.Year, study.Journal, study.DOI, study.Authors,
		study.Country, study.Design, study.Notes, study.UpdatedAt, study.ID,
	)
	if err != nil {
		return mapWriteError(err, "study", "update")
	}
	return affectedOne(res, core.NewNotFoundError("study", study.ID))
}

// GetStudy retrieves a study by its ID
func (r *studyRepository) GetStudy(ctx context.Context, id core.ID) (*ma.Study, error) {
	var study ma.Study
	err := r.db.GetContext(ctx, &study, r.db.Rebind(`SELECT `+studyColumns+` FROM studies WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError("study", id)
		}
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	return &study, nil
}

// ListStudies returns studies ordered by q.Sort
func (r *studyRepository) ListStudies(ctx context.Context, q ports.StudyQuery) ([]*ma.Study, error) {
	column, ok := studySortColumns[strings.ToLower(q.Sort)]
	if !ok {
		column = "s.created_at"
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`SELECT s.id, s.title, s.year, s.journal, s.doi, s.authors, s.country, s.design, s.notes, s.created_at, s.updated_at
	FROM studies s`)
	if q.Tag != "" {
		sb.WriteString(` JOIN study_tags st ON st.study_id = s.id JOIN tags t ON t.id = st.tag_id WHERE t.name = ?`)
		args = append(args, q.Tag)
	}
	fmt.Fprintf(&sb, ` ORDER BY %s %s, s.id ASC`, column, direction)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, q.Limit, q.Offset)
	}

	studies := make([]*ma.Study, 0)
	if err := r.db.SelectContext(ctx, &studies, r.db.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	return studies, nil
}

// DeleteStudy removes a study; with cascade its arms, outcomes, covariates,
// tags and effects go too
func (r *studyRepository) DeleteStudy(ctx context.Context, id core.ID, cascade bool) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return deleteStudy(ctx, tx, id, cascade)
	})
}

// AddArm inserts an arm into an existing study
func (r *studyRepository) AddArm(ctx context.Context, arm *ma.Arm) error {
	if arm.ID.IsEmpty() {
		arm.ID = core.NewID()
	}
	if err := r.requireStudy(ctx, arm.StudyID); err != nil {
		return err
	}
	return insertArm(ctx, r.db, arm)
}

// AddOutcome inserts an outcome into an existing study
func (r *studyRepository) AddOutcome(ctx context.Context, outcome *ma.Outcome) error {
	if outcome.ID.IsEmpty() {
		outcome.ID = core.NewID()
	}
	if err := r.requireStudy(ctx, outcome.StudyID); err != nil {
		return err
	}
	return insertOutcome(ctx, r.db, outcome)
}

// AddCovariate inserts a covariate into an existing study
func (r *studyRepository) AddCovariate(ctx context.Context, covariate *ma.Covariate) error {
	if covariate.ID.IsEmpty() {
		covariate.ID = core.NewID()
	}
	if err := r.requireStudy(ctx, covariate.StudyID); err != nil {
		return err
	}
	return insertCovariate(ctx, r.db, covariate)
}

// TagStudy attaches the named tag to a study
func (r *studyRepository) TagStudy(ctx context.Context, studyID core.ID, name string) (*ma.Tag, error) {
	if err := r.requireStudy(ctx, studyID); err != nil {
		return nil, err
	}
	var tag *ma.Tag
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		tag, err = tagStudy(ctx, tx, studyID, name)
		return err
	})
	return tag, err
}

// ListTags returns the tags of a study ordered by name
func (r *studyRepository) ListTags(ctx context.Context, studyID core.ID) ([]ma.Tag, error) {
	tags := make([]ma.Tag, 0)
	query := r.db.Rebind(`SELECT t.id, t.name FROM tags t
		JOIN study_tags st ON st.tag_id = t.id
		WHERE st.study_id = ? ORDER BY t.name`)
	if err := r.db.SelectContext(ctx, &tags, query, studyID); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// LoadContext loads the study arena used for derivation and validation
func (r *studyRepository) LoadContext(ctx context.Context, studyID core.ID) (ma.StudyContext, error) {
	study, err := r.GetStudy(ctx, studyID)
	if err != nil {
		return ma.StudyContext{}, err
	}

	var arms []ma.Arm
	if err := r.db.SelectContext(ctx, &arms,
		r.db.Rebind(`SELECT id, study_id, label, n, description FROM arms WHERE study_id = ? ORDER BY id`), studyID); err != nil {
		return ma.StudyContext{}, fmt.Errorf("failed to load arms: %w", err)
	}
	var outcomes []ma.Outcome
	if err := r.db.SelectContext(ctx, &outcomes,
		r.db.Rebind(`SELECT id, study_id, name, unit, direction, domain, method FROM outcomes WHERE study_id = ? ORDER BY id`), studyID); err != nil {
		return ma.StudyContext{}, fmt.Errorf("failed to load outcomes: %w", err)
	}
	var covariates []ma.Covariate
	if err := r.db.SelectContext(ctx, &covariates,
		r.db.Rebind(`SELECT id, study_id, name, value FROM covariates WHERE study_id = ? ORDER BY id`), studyID); err != nil {
		return ma.StudyContext{}, fmt.Errorf("failed to load covariates: %w", err)
	}

	return ma.NewStudyContext(*study, arms, outcomes, covariates), nil
}

func (r *studyRepository) requireStudy(ctx context.Context, id core.ID) error {
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM studies WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to check study: %w", err)
	}
	if count == 0 {
		return core.NewNotFoundError("study", id)
	}
	return nil
}

func insertStudy(ctx context.Context, db sqlx.ExtContext, study *ma.Study) error {
	ts := now()
	study.CreatedAt, study.UpdatedAt = ts, ts
	query := db.Rebind(`INSERT INTO studies (` + studyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := db.ExecContext(ctx, query,
		study.ID, study.Title, study.Year, study.Journal, study.DOI, study.Authors,
		study.Country, study.Design, study.Notes, study.CreatedAt, study.UpdatedAt,
	)
	return mapWriteError(err, "study", "create")
}

func insertArm(ctx context.Context, db sqlx.ExtContext, arm *ma.Arm) error {
	_, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO arms (id, study_id, label, n, description) VALUES (?, ?, ?, ?, ?)`),
		arm.ID, arm.StudyID, arm.Label, arm.N, arm.Description)
	return mapWriteError(err, "arm", "create")
}

func insertOutcome(ctx context.Context, db sqlx.ExtContext, o *ma.Outcome) error {
	_, err := db.ExecContext(ctx,
		db.Rebind(`INSERT INTO outcomes (id, study_id, name, unit, direction, domain, method) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		o.ID, o.StudyID, o.Name, o.Unit, o.Direction, o.Domain, o.Method)
	return mapWriteError(err, "outcome", "create")
}

func insertCovariate(ctx context.Context, db sqlx.ExtContext, c *ma.Covariate) error {
	_, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO covariates (id, study_id, name, value) VALUES (?, ?, ?, ?)`),
		c.ID, c.StudyID, c.Name, c.Value)
	return mapWriteError(err, "covariate", "create")
}

func tagStudy(ctx context.Context, db sqlx.ExtContext, studyID core.ID, name string) (*ma.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tag name", ma.ErrMissingRequiredField)
	}

	var tag ma.Tag
	err := sqlx.GetContext(ctx, db, &tag, db.Rebind(`SELECT id, name FROM tags WHERE name = ?`), name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		tag = ma.Tag{ID: core.NewID(), Name: name}
		if _, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO tags (id, name) VALUES (?, ?)`), tag.ID, tag.Name); err != nil {
			return nil, mapWriteError(err, "tag", "create")
		}
	case err != nil:
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	var linked int
	if err := sqlx.GetContext(ctx, db, &linked,
		db.Rebind(`SELECT COUNT(*) FROM study_tags WHERE study_id = ? AND tag_id = ?`), studyID, tag.ID); err != nil {
		return nil, fmt.Errorf("failed to check study tag: %w", err)
	}
	if linked == 0 {
		if _, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO study_tags (study_id, tag_id) VALUES (?, ?)`), studyID, tag.ID); err != nil {
			return nil, mapWriteError(err, "study tag", "create")
		}
	}
	return &tag, nil
}

var studyChildTables = []string{"effects", "covariates", "outcomes", "arms", "study_tags"}

func deleteStudy(ctx context.Context, db sqlx.ExtContext, id core.ID, cascade bool) error {
	if !cascade {
		for _, table := range studyChildTables {
			var count int
			query := db.Rebind(`SELECT COUNT(*) FROM ` + table + ` WHERE study_id = ?`)
			if err := sqlx.GetContext(ctx, db, &count, query, id); err != nil {
				return fmt.Errorf("failed to count %s: %w", table, err)
			}
			if count > 0 {
				return fmt.Errorf("%w: study %s still has %d rows in %s", core.ErrHasDependents, id, count, table)
			}
		}
	} else {
		for _, table := range studyChildTables {
			if _, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM `+table+` WHERE study_id = ?`), id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
	}

	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM studies WHERE id = ?`), id)
	if err != nil {
		return mapWriteError(err, "study", "delete")
	}
	return affectedOne(res, core.NewNotFoundError("study", id))
}
