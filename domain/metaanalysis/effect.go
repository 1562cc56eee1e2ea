package metaanalysis

import (
	"strings"
	"time"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
)

// EffectType is the closed enumeration of derivable effect measures.
type EffectType string

const (
	SMD   EffectType = "SMD"
	MD    EffectType = "MD"
	LogOR EffectType = "logOR"
	RR    EffectType = "RR"
)

// EffectTypes lists every supported type in canonical order.
var EffectTypes = []EffectType{SMD, MD, LogOR, RR}

// ParseEffectType matches a symbol case-insensitively against the enumeration.
func ParseEffectType(s string) (EffectType, error) {
	trimmed := strings.TrimSpace(s)
	for _, t := range EffectTypes {
		if strings.EqualFold(trimmed, string(t)) {
			return t, nil
		}
	}
	return "", NewUnsupportedTypeError(s)
}

// Valid reports whether t is one of the four supported symbols.
func (t EffectType) Valid() bool {
	for _, known := range EffectTypes {
		if t == known {
			return true
		}
	}
	return false
}

// LogScale reports whether values of this type are stored log-transformed.
func (t EffectType) LogScale() bool {
	return t == LogOR || t == RR
}

func (t EffectType) String() string { return string(t) }

// Field names a raw input column.
type Field string

const (
	FieldMeanTreat   Field = "mean_treat"
	FieldSDTreat     Field = "sd_treat"
	FieldNTreat      Field = "n_treat"
	FieldMeanCtrl    Field = "mean_ctrl"
	FieldSDCtrl      Field = "sd_ctrl"
	FieldNCtrl       Field = "n_ctrl"
	FieldEventsTreat Field = "events_treat"
	FieldTotalTreat  Field = "total_treat"
	FieldEventsCtrl  Field = "events_ctrl"
	FieldTotalCtrl   Field = "total_ctrl"
)

// AllFields lists every raw numeric input column.
var AllFields = []Field{
	FieldMeanTreat, FieldSDTreat, FieldNTreat,
	FieldMeanCtrl, FieldSDCtrl, FieldNCtrl,
	FieldEventsTreat, FieldTotalTreat, FieldEventsCtrl, FieldTotalCtrl,
}

// RawInput is the flat, nullable record produced by import rows and edit
// forms. Nil means the value was not supplied.
type RawInput struct {
	ID         core.ID `json:"id,omitempty"`
	StudyID    core.ID `json:"study_id"`
	OutcomeID  core.ID `json:"outcome_id"`
	ArmID      core.ID `json:"arm_id,omitempty"`
	ArmTreatID core.ID `json:"arm_treat_id,omitempty"`
	ArmCtrlID  core.ID `json:"arm_ctrl_id,omitempty"`

	MeanTreat   *float64 `json:"mean_treat,omitempty"`
	SDTreat     *float64 `json:"sd_treat,omitempty"`
	NTreat      *float64 `json:"n_treat,omitempty"`
	MeanCtrl    *float64 `json:"mean_ctrl,omitempty"`
	SDCtrl      *float64 `json:"sd_ctrl,omitempty"`
	NCtrl       *float64 `json:"n_ctrl,omitempty"`
	EventsTreat *float64 `json:"events_treat,omitempty"`
	TotalTreat  *float64 `json:"total_treat,omitempty"`
	EventsCtrl  *float64 `json:"events_ctrl,omitempty"`
	TotalCtrl   *float64 `json:"total_ctrl,omitempty"`
}

// Value returns the named field, or nil when absent.
func (r RawInput) Value(f Field) *float64 {
	switch f {
	case FieldMeanTreat:
		return r.MeanTreat
	case FieldSDTreat:
		return r.SDTreat
	case FieldNTreat:
		return r.NTreat
	case FieldMeanCtrl:
		return r.MeanCtrl
	case FieldSDCtrl:
		return r.SDCtrl
	case FieldNCtrl:
		return r.NCtrl
	case FieldEventsTreat:
		return r.EventsTreat
	case FieldTotalTreat:
		return r.TotalTreat
	case FieldEventsCtrl:
		return r.EventsCtrl
	case FieldTotalCtrl:
		return r.TotalCtrl
	}
	return nil
}

// Set assigns the named field. Unknown fields are ignored.
func (r *RawInput) Set(f Field, v *float64) {
	switch f {
	case FieldMeanTreat:
		r.MeanTreat = v
	case FieldSDTreat:
		r.SDTreat = v
	case FieldNTreat:
		r.NTreat = v
	case FieldMeanCtrl:
		r.MeanCtrl = v
	case FieldSDCtrl:
		r.SDCtrl = v
	case FieldNCtrl:
		r.NCtrl = v
	case FieldEventsTreat:
		r.EventsTreat = v
	case FieldTotalTreat:
		r.TotalTreat = v
	case FieldEventsCtrl:
		r.EventsCtrl = v
	case FieldTotalCtrl:
		r.TotalCtrl = v
	}
}

// ContinuousArm holds the summary statistics of one arm for mean-based measures.
type ContinuousArm struct {
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd"`
	N    float64 `json:"n"`
}

// BinaryArm holds the event counts of one arm for ratio measures.
type BinaryArm struct {
	Events float64 `json:"events"`
	Total  float64 `json:"total"`
}

// Inputs is the closed set of typed raw inputs, one variant per effect type.
type Inputs interface {
	EffectType() EffectType
	// Flatten writes the variant's fields into a RawInput without identifiers.
	Flatten() RawInput
	sealed()
}

// MDInputs feeds the mean difference.
type MDInputs struct{ Treat, Ctrl ContinuousArm }

// SMDInputs feeds the standardized mean difference.
type SMDInputs struct{ Treat, Ctrl ContinuousArm }

// LogORInputs feeds the log odds ratio.
type LogORInputs struct{ Treat, Ctrl BinaryArm }

// RRInputs feeds the log risk ratio.
type RRInputs struct{ Treat, Ctrl BinaryArm }

func (MDInputs) EffectType() EffectType    { return MD }
func (SMDInputs) EffectType() EffectType   { return SMD }
func (LogORInputs) EffectType() EffectType { return LogOR }
func (RRInputs) EffectType() EffectType    { return RR }

func (MDInputs) sealed()    {}
func (SMDInputs) sealed()   {}
func (LogORInputs) sealed() {}
func (RRInputs) sealed()    {}

func (in MDInputs) Flatten() RawInput    { return flattenContinuous(in.Treat, in.Ctrl) }
func (in SMDInputs) Flatten() RawInput   { return flattenContinuous(in.Treat, in.Ctrl) }
func (in LogORInputs) Flatten() RawInput { return flattenBinary(in.Treat, in.Ctrl) }
func (in RRInputs) Flatten() RawInput    { return flattenBinary(in.Treat, in.Ctrl) }

func flattenContinuous(t, c ContinuousArm) RawInput {
	return RawInput{
		MeanTreat: ptr(t.Mean), SDTreat: ptr(t.SD), NTreat: ptr(t.N),
		MeanCtrl: ptr(c.Mean), SDCtrl: ptr(c.SD), NCtrl: ptr(c.N),
	}
}

func flattenBinary(t, c BinaryArm) RawInput {
	return RawInput{
		EventsTreat: ptr(t.Events), TotalTreat: ptr(t.Total),
		EventsCtrl: ptr(c.Events), TotalCtrl: ptr(c.Total),
	}
}

func ptr(v float64) *float64 { return &v }

// Interval is a two-sided confidence interval at Level.
type Interval struct {
	Low   float64 `json:"ci_low"`
	High  float64 `json:"ci_high"`
	Level float64 `json:"ci_level"`
}

// Adjustment records opt-in corrections applied during derivation.
type Adjustment struct {
	ContinuityCorrection float64 `json:"continuity_correction,omitempty"`
	SmallSample          bool    `json:"small_sample_correction,omitempty"`
}

// Effect is the derived, persisted-ready effect record.
type Effect struct {
	ID        core.ID    `json:"id"`
	StudyID   core.ID    `json:"study_id"`
	OutcomeID core.ID    `json:"outcome_id"`
	Type      EffectType `json:"effect_type"`

	Value float64   `json:"effect"`
	SE    float64   `json:"se"`
	CI    *Interval `json:"ci,omitempty"`

	ArmID      core.ID `json:"arm_id,omitempty"`
	ArmTreatID core.ID `json:"arm_treat_id,omitempty"`
	ArmCtrlID  core.ID `json:"arm_ctrl_id,omitempty"`

	Inputs     Inputs     `json:"-"`
	Adjustment Adjustment `json:"adjustment"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Raw rebuilds the flat input record, identifiers included, from the effect.
func (e Effect) Raw() RawInput {
	var raw RawInput
	if e.Inputs != nil {
		raw = e.Inputs.Flatten()
	}
	raw.ID = e.ID
	raw.StudyID = e.StudyID
	raw.OutcomeID = e.OutcomeID
	raw.ArmID = e.ArmID
	raw.ArmTreatID = e.ArmTreatID
	raw.ArmCtrlID = e.ArmCtrlID
	return raw
}
