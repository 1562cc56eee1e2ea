package effects

import (
	"errors"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// Validate checks a candidate effect against the study arena: study and
// outcome scope, the arm reference form, distinct arms within the study,
// inputs present, in domain and computable under the recorded adjustments,
// and an interval that contains the effect.
// The record is returned unchanged; nothing is mutated.
func Validate(e ma.Effect, sc ma.StudyContext) (ma.Effect, error) {
	req, err := Resolve(e.Type)
	if err != nil {
		return e, &ma.ValidationError{Invariant: ma.InvariantInputs, Field: "effect_type", Detail: err.Error(), Cause: err}
	}
	if err := checkScope(e, sc); err != nil {
		return e, err
	}
	if err := checkArmForm(e, req); err != nil {
		return e, err
	}
	if err := checkArms(e, sc, req); err != nil {
		return e, err
	}
	if err := checkInputs(e); err != nil {
		return e, err
	}
	if err := checkInterval(e); err != nil {
		return e, err
	}
	return e, nil
}

func checkScope(e ma.Effect, sc ma.StudyContext) error {
	if e.StudyID.IsEmpty() || e.StudyID != sc.Study.ID {
		return ma.NewValidationError(ma.InvariantCrossStudy, "study_id",
			"effect study %q does not match context study %q", e.StudyID, sc.Study.ID)
	}
	outcome, ok := sc.Outcome(e.OutcomeID)
	if !ok {
		return ma.NewValidationError(ma.InvariantCrossStudy, "outcome_id",
			"outcome %q not found in study %q", e.OutcomeID, e.StudyID)
	}
	if outcome.StudyID != e.StudyID {
		return ma.NewValidationError(ma.InvariantCrossStudy, "outcome_id",
			"outcome %q belongs to study %q, not %q", e.OutcomeID, outcome.StudyID, e.StudyID)
	}
	return nil
}

func checkArmForm(e ma.Effect, req Requirements) error {
	single := !e.ArmID.IsEmpty()
	treat := !e.ArmTreatID.IsEmpty()
	ctrl := !e.ArmCtrlID.IsEmpty()

	switch {
	case single && (treat || ctrl):
		return ma.NewValidationError(ma.InvariantArmForm, "arm_id", "single arm and arm pair are both populated")
	case !single && !treat && !ctrl:
		return ma.NewValidationError(ma.InvariantArmForm, "arm_id", "no arm reference populated")
	case req.Descriptive && !single:
		return ma.NewValidationError(ma.InvariantArmForm, "arm_id", "%s is descriptive and requires a single arm", e.Type)
	case !req.Descriptive && single:
		return ma.NewValidationError(ma.InvariantArmForm, "arm_treat_id", "%s is comparative and requires an arm pair", e.Type)
	case !req.Descriptive && treat != ctrl:
		field := "arm_ctrl_id"
		if !treat {
			field = "arm_treat_id"
		}
		return ma.NewValidationError(ma.InvariantArmForm, field, "arm pair is incomplete")
	}
	return nil
}

func checkArms(e ma.Effect, sc ma.StudyContext, req Requirements) error {
	if req.Descriptive {
		return armInStudy(sc, e.ArmID, e.StudyID, "arm_id")
	}
	if e.ArmTreatID == e.ArmCtrlID {
		return ma.NewValidationError(ma.InvariantArmPair, "arm_ctrl_id",
			"treatment and control reference the same arm %q", e.ArmTreatID)
	}
	if err := armInStudy(sc, e.ArmTreatID, e.StudyID, "arm_treat_id"); err != nil {
		return err
	}
	return armInStudy(sc, e.ArmCtrlID, e.StudyID, "arm_ctrl_id")
}

func armInStudy(sc ma.StudyContext, id, studyID core.ID, field string) error {
	arm, ok := sc.Arm(id)
	if !ok {
		return ma.NewValidationError(ma.InvariantCrossStudy, field, "arm %q not found in study %q", id, studyID)
	}
	if arm.StudyID != studyID {
		return ma.NewValidationError(ma.InvariantCrossStudy, field,
			"arm %q belongs to study %q, not %q", id, arm.StudyID, studyID)
	}
	return nil
}

func checkInputs(e ma.Effect) error {
	if e.Inputs == nil {
		return &ma.ValidationError{Invariant: ma.InvariantInputs, Field: "inputs", Detail: "raw inputs missing",
			Cause: ma.NewMissingFieldError("inputs")}
	}
	if e.Inputs.EffectType() != e.Type {
		return ma.NewValidationError(ma.InvariantInputs, "inputs",
			"inputs are shaped for %s, effect is %s", e.Inputs.EffectType(), e.Type)
	}
	if _, err := Bind(e.Type, e.Inputs.Flatten()); err != nil {
		return inputsViolation(err)
	}
	if err := CheckDomain(e.Inputs); err != nil {
		return inputsViolation(err)
	}
	if _, err := Compute(e.Inputs, FormulaOptions{
		ContinuityCorrection:  e.Adjustment.ContinuityCorrection,
		SmallSampleCorrection: e.Adjustment.SmallSample,
	}); err != nil {
		return inputsViolation(err)
	}
	if !finite(e.Value) {
		return ma.NewValidationError(ma.InvariantInputs, "effect", "effect %g is not finite", e.Value)
	}
	if !finite(e.SE) || e.SE < 0 {
		return ma.NewValidationError(ma.InvariantInputs, "se", "standard error %g must be finite and >= 0", e.SE)
	}
	return nil
}

func inputsViolation(err error) error {
	ve := &ma.ValidationError{Invariant: ma.InvariantInputs, Field: "inputs", Detail: err.Error(), Cause: err}
	var fe *ma.FieldError
	if errors.As(err, &fe) {
		ve.Field = string(fe.Field)
	}
	return ve
}

func checkInterval(e ma.Effect) error {
	if e.CI == nil {
		return nil
	}
	if !finite(e.CI.Low) || !finite(e.CI.High) {
		return ma.NewValidationError(ma.InvariantInterval, "ci", "interval bounds must be finite")
	}
	if e.CI.Low > e.Value || e.Value > e.CI.High {
		return ma.NewValidationError(ma.InvariantInterval, "ci",
			"effect %g outside [%g, %g]", e.Value, e.CI.Low, e.CI.High)
	}
	return nil
}
