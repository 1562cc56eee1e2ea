package metaanalysis

import (
	"errors"
	"fmt"
)

// Derivation and validation errors. All are recoverable at the call site.
var (
	ErrUnsupportedEffectType  = errors.New("unsupported effect type")
	ErrMissingRequiredField   = errors.New("missing required field")
	ErrInvalidSampleSize      = errors.New("invalid sample size")
	ErrDegenerateVariance     = errors.New("degenerate variance")
	ErrZeroCellCount          = errors.New("zero cell count")
	ErrInvalidConfidenceLevel = errors.New("invalid confidence level")
	ErrInvalidFieldValue      = errors.New("invalid field value")
	ErrValidation             = errors.New("effect validation failed")
)

// FieldError ties a taxonomy error to the raw input field that caused it.
type FieldError struct {
	Field  Field
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s (%s)", e.Err, e.Field, e.Detail)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// NewMissingFieldError reports an absent required input.
func NewMissingFieldError(field Field) error {
	return &FieldError{Field: field, Err: ErrMissingRequiredField}
}

// NewInvalidFieldError reports an input outside its numeric domain.
func NewInvalidFieldError(field Field, detail string) error {
	return &FieldError{Field: field, Err: ErrInvalidFieldValue, Detail: detail}
}

// NewSampleSizeError reports a non-positive n or total.
func NewSampleSizeError(field Field, value float64) error {
	return &FieldError{Field: field, Err: ErrInvalidSampleSize, Detail: fmt.Sprintf("got %g", value)}
}

// NewUnsupportedTypeError reports an effect type symbol outside the enumeration.
func NewUnsupportedTypeError(symbol string) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedEffectType, symbol)
}

// Invariant names the structural rule a ValidationError reports.
type Invariant string

const (
	// InvariantArmForm: exactly one of the single-arm or arm-pair forms.
	InvariantArmForm Invariant = "arm_form"
	// InvariantArmPair: distinct treatment/control arms within the effect's study.
	InvariantArmPair Invariant = "arm_pair"
	// InvariantInputs: required raw fields present and in domain.
	InvariantInputs Invariant = "inputs"
	// InvariantInterval: ci_low <= effect <= ci_high.
	InvariantInterval Invariant = "interval"
	// InvariantCrossStudy: outcome and arms resolve within the effect's study.
	InvariantCrossStudy Invariant = "cross_study_reference"
)

// ValidationError carries the violated invariant.
type ValidationError struct {
	Invariant Invariant
	Field     string
	Detail    string
	Cause     error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrValidation, e.Invariant)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError builds a ValidationError with a formatted detail.
func NewValidationError(inv Invariant, field string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Invariant: inv, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// ViolatedInvariant extracts the invariant from err, if it is a validation failure.
func ViolatedInvariant(err error) (Invariant, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Invariant, true
	}
	return "", false
}
