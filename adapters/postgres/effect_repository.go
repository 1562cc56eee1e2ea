package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/jmoiron/sqlx"
)

// effectRepository implements the EffectRepository interface
type effectRepository struct {
	db *sqlx.DB
}

// NewEffectRepository creates a new effect repository
func NewEffectRepository(db *sqlx.DB) ports.EffectRepository {
	return &effectRepository{db: db}
}

const effectColumns = `id, study_id, outcome_id, effect_type, effect, se, ci_low, ci_high, ci_level,
	arm_id, arm_treat_id, arm_ctrl_id,
	mean_treat, sd_treat, n_treat, mean_ctrl, sd_ctrl, n_ctrl,
	events_treat, total_treat, events_ctrl, total_ctrl,
	continuity_correction, small_sample_correction, created_at, updated_at`

// effectRow is the flat storage shape of an effect
type effectRow struct {
	ID         core.ID         `db:"id"`
	StudyID    core.ID         `db:"study_id"`
	OutcomeID  core.ID         `db:"outcome_id"`
	EffectType string          `db:"effect_type"`
	Effect     float64         `db:"effect"`
	SE         float64         `db:"se"`
	CILow      sql.NullFloat64 `db:"ci_low"`
	CIHigh     sql.NullFloat64 `db:"ci_high"`
	CILevel    sql.NullFloat64 `db:"ci_level"`
	ArmID      sql.NullString  `db:"arm_id"`
	ArmTreatID sql.NullString  `db:"arm_treat_id"`
	ArmCtrlID  sql.NullString  `db:"arm_ctrl_id"`

	MeanTreat   sql.NullFloat64 `db:"mean_treat"`
	SDTreat     sql.NullFloat64 `db:"sd_treat"`
	NTreat      sql.NullFloat64 `db:"n_treat"`
	MeanCtrl    sql.NullFloat64 `db:"mean_ctrl"`
	SDCtrl      sql.NullFloat64 `db:"sd_ctrl"`
	NCtrl       sql.NullFloat64 `db:"n_ctrl"`
	EventsTreat sql.NullFloat64 `db:"events_treat"`
	TotalTreat  sql.NullFloat64 `db:"total_treat"`
	EventsCtrl  sql.NullFloat64 `db:"events_ctrl"`
	TotalCtrl   sql.NullFloat64 `db:"total_ctrl"`

	ContinuityCorrection float64   `db:"continuity_correction"`
	SmallSample          bool      `db:"small_sample_correction"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func newEffectRow(e *ma.Effect) effectRow {
	var raw ma.RawInput
	if e.Inputs != nil {
		raw = e.Inputs.Flatten()
	}
	row := effectRow{
		ID:                   e.ID,
		StudyID:              e.StudyID,
		OutcomeID:            e.OutcomeID,
		EffectType:           string(e.Type),
		Effect:               e.Value,
		SE:                   e.SE,
		ArmID:                nullID(e.ArmID),
		ArmTreatID:           nullID(e.ArmTreatID),
		ArmCtrlID:            nullID(e.ArmCtrlID),
		MeanTreat:            nullFloat(raw.MeanTreat),
		SDTreat:              nullFloat(raw.SDTreat),
		NTreat:               nullFloat(raw.NTreat),
		MeanCtrl:             nullFloat(raw.MeanCtrl),
		SDCtrl:               nullFloat(raw.SDCtrl),
		NCtrl:                nullFloat(raw.NCtrl),
		EventsTreat:          nullFloat(raw.EventsTreat),
		TotalTreat:           nullFloat(raw.TotalTreat),
		EventsCtrl:           nullFloat(raw.EventsCtrl),
		TotalCtrl:            nullFloat(raw.TotalCtrl),
		ContinuityCorrection: e.Adjustment.ContinuityCorrection,
		SmallSample:          e.Adjustment.SmallSample,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
	if e.CI != nil {
		row.CILow = sql.NullFloat64{Float64: e.CI.Low, Valid: true}
		row.CIHigh = sql.NullFloat64{Float64: e.CI.High, Valid: true}
		row.CILevel = sql.NullFloat64{Float64: e.CI.Level, Valid: true}
	}
	return row
}

// effect rebuilds the domain record. Stored inputs that no longer bind leave
// Inputs nil so re-validation reports them.
func (row effectRow) effect() *ma.Effect {
	e := &ma.Effect{
		ID:         row.ID,
		StudyID:    row.StudyID,
		OutcomeID:  row.OutcomeID,
		Type:       ma.EffectType(row.EffectType),
		Value:      row.Effect,
		SE:         row.SE,
		ArmID:      idFromNull(row.ArmID),
		ArmTreatID: idFromNull(row.ArmTreatID),
		ArmCtrlID:  idFromNull(row.ArmCtrlID),
		Adjustment: ma.Adjustment{ContinuityCorrection: row.ContinuityCorrection, SmallSample: row.SmallSample},
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.CILow.Valid && row.CIHigh.Valid {
		e.CI = &ma.Interval{Low: row.CILow.Float64, High: row.CIHigh.Float64, Level: row.CILevel.Float64}
	}

	raw := ma.RawInput{
		MeanTreat:   floatFromNull(row.MeanTreat),
		SDTreat:     floatFromNull(row.SDTreat),
		NTreat:      floatFromNull(row.NTreat),
		MeanCtrl:    floatFromNull(row.MeanCtrl),
		SDCtrl:      floatFromNull(row.SDCtrl),
		NCtrl:       floatFromNull(row.NCtrl),
		EventsTreat: floatFromNull(row.EventsTreat),
		TotalTreat:  floatFromNull(row.TotalTreat),
		EventsCtrl:  floatFromNull(row.EventsCtrl),
		TotalCtrl:   floatFromNull(row.TotalCtrl),
	}
	if in, err := effects.Bind(e.Type, raw); err == nil {
		e.Inputs = in
	}
	return e
}

func (row effectRow) args() []interface{} {
	return []interface{}{
		row.ID, row.StudyID, row.OutcomeID, row.EffectType, row.Effect, row.SE,
		row.CILow, row.CIHigh, row.CILevel,
		row.ArmID, row.ArmTreatID, row.ArmCtrlID,
		row.MeanTreat, row.SDTreat, row.NTreat, row.MeanCtrl, row.SDCtrl, row.NCtrl,
		row.EventsTreat, row.TotalTreat, row.EventsCtrl, row.TotalCtrl,
		row.ContinuityCorrection, row.SmallSample, row.CreatedAt, row.UpdatedAt,
	}
}

// Create inserts a validated effect and stamps its timestamps
func (r *effectRepository) Create(ctx context.Context, effect *ma.Effect) error {
	return insertEffect(ctx, r.db, effect)
}

// Update replaces the stored record for effect.ID, keeping created_at
func (r *effectRepository) Update(ctx context.Context, effect *ma.Effect) error {
	effect.UpdatedAt = now()
	row := newEffectRow(effect)

	query := r.db.Rebind(`UPDATE effects SET
		study_id = ?, outcome_id = ?, effect_type = ?, effect = ?, se = ?, ci_low = ?, ci_high = ?, ci_level = ?,
		arm_id = ?, arm_treat_id = ?, arm_ctrl_id = ?,
		mean_treat = ?, sd_treat = ?, n_treat = ?, mean_ctrl = ?, sd_ctrl = ?, n_ctrl = ?,
		events_treat = ?, total_treat = ?, events_ctrl = ?, total_ctrl = ?,
		continuity_correction = ?, small_sample_correction = ?, updated_at = ?
	WHERE id = ?`)

	args := row.args()[1:24]
	args = append(args, row.UpdatedAt, row.ID)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError(err, "effect", "update")
	}
	if err := affectedOne(res, core.NewNotFoundError("effect", effect.ID)); err != nil {
		return err
	}

	var created time.Time
	if err := r.db.GetContext(ctx, &created, r.db.Rebind(`SELECT created_at FROM effects WHERE id = ?`), effect.ID); err == nil {
		effect.CreatedAt = created
	}
	return nil
}

// GetByID retrieves an effect by its ID
func (r *effectRepository) GetByID(ctx context.Context, id core.ID) (*ma.Effect, error) {
	var row effectRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+effectColumns+` FROM effects WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError("effect", id)
		}
		return nil, fmt.Errorf("failed to get effect: %w", err)
	}
	return row.effect(), nil
}

// ListByStudy returns the effects of a study in creation order
func (r *effectRepository) ListByStudy(ctx context.Context, studyID core.ID) ([]*ma.Effect, error) {
	var rows []effectRow
	query := r.db.Rebind(`SELECT ` + effectColumns + ` FROM effects WHERE study_id = ? ORDER BY created_at, id`)
	if err := r.db.SelectContext(ctx, &rows, query, studyID); err != nil {
		return nil, fmt.Errorf("failed to list effects: %w", err)
	}

	out := make([]*ma.Effect, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.effect())
	}
	return out, nil
}

// ListStudyIDs returns the studies that own effects
func (r *effectRepository) ListStudyIDs(ctx context.Context) ([]core.ID, error) {
	ids := make([]core.ID, 0)
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT study_id FROM effects ORDER BY study_id`); err != nil {
		return nil, fmt.Errorf("failed to list effect studies: %w", err)
	}
	return ids, nil
}

// Delete removes an effect
func (r *effectRepository) Delete(ctx context.Context, id core.ID) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM effects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete effect: %w", err)
	}
	return affectedOne(res, core.NewNotFoundError("effect", id))
}

func insertEffect(ctx context.Context, db sqlx.ExtContext, effect *ma.Effect) error {
	if effect.ID.IsEmpty() {
		effect.ID = core.NewID()
	}
	ts := now()
	effect.CreatedAt, effect.UpdatedAt = ts, ts

	query := db.Rebind(`INSERT INTO effects (` + effectColumns + `) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	)`)
	_, err := db.ExecContext(ctx, query, newEffectRow(effect).args()...)
	return mapWriteError(err, "effect", "create")
}
