package effects

import (
	"fmt"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// Stage names a step of the derivation pipeline.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageCompute  Stage = "compute"
	StageInterval Stage = "interval"
	StageValidate Stage = "validate"
)

// DerivationError wraps the originating error with the stage it came from.
type DerivationError struct {
	Stage Stage
	Err   error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("derive (%s): %v", e.Stage, e.Err)
}

func (e *DerivationError) Unwrap() error {
	return e.Err
}

// Options configures a Deriver.
type Options struct {
	Level float64
	FormulaOptions
}

// DefaultOptions rejects zero cells, skips Hedges' correction and uses 95% intervals.
func DefaultOptions() Options {
	return Options{Level: DefaultLevel}
}

// Deriver turns raw input records into validated effects. It is immutable
// after construction.
type Deriver struct {
	opts Options
}

// NewDeriver validates opts and returns a Deriver.
func NewDeriver(opts Options) (*Deriver, error) {
	if _, err := CriticalValue(opts.Level); err != nil {
		return nil, err
	}
	if !finite(opts.ContinuityCorrection) || opts.ContinuityCorrection < 0 {
		return nil, fmt.Errorf("%w: continuity correction %g must be >= 0", ma.ErrInvalidFieldValue, opts.ContinuityCorrection)
	}
	return &Deriver{opts: opts}, nil
}

// Options returns the configuration the deriver was built with.
func (d *Deriver) Options() Options {
	return d.opts
}

// Derive resolves, computes, builds the interval and validates. Any failure
// aborts the whole derivation; no partial effect is returned.
func (d *Deriver) Derive(raw ma.RawInput, t ma.EffectType, sc ma.StudyContext) (*ma.Effect, error) {
	inputs, err := Bind(t, raw)
	if err != nil {
		return nil, &DerivationError{Stage: StageResolve, Err: err}
	}

	est, err := Compute(inputs, d.opts.FormulaOptions)
	if err != nil {
		return nil, &DerivationError{Stage: StageCompute, Err: err}
	}

	ci, err := BuildInterval(est.Value, est.SE, d.opts.Level)
	if err != nil {
		return nil, &DerivationError{Stage: StageInterval, Err: err}
	}

	id := raw.ID
	if id.IsEmpty() {
		id = core.NewID()
	}
	candidate := ma.Effect{
		ID:         id,
		StudyID:    raw.StudyID,
		OutcomeID:  raw.OutcomeID,
		Type:       t,
		Value:      est.Value,
		SE:         est.SE,
		CI:         &ci,
		ArmID:      raw.ArmID,
		ArmTreatID: raw.ArmTreatID,
		ArmCtrlID:  raw.ArmCtrlID,
		Inputs:     inputs,
		Adjustment: est.Adjustment,
	}

	validated, err := Validate(candidate, sc)
	if err != nil {
		return nil, &DerivationError{Stage: StageValidate, Err: err}
	}
	return &validated, nil
}

var defaultDeriver = &Deriver{opts: DefaultOptions()}

// Derive runs the pipeline with DefaultOptions.
func Derive(raw ma.RawInput, t ma.EffectType, sc ma.StudyContext) (*ma.Effect, error) {
	return defaultDeriver.Derive(raw, t, sc)
}
