package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	// Field and Invariant locate derivation and validation failures.
	Field     string
	Invariant string
	Cause     error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:      appErr.Code,
			Message:   message,
			Field:     appErr.Field,
			Invariant: appErr.Invariant,
			Cause:     err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:      code,
			Message:   appErr.Message,
			Field:     appErr.Field,
			Invariant: appErr.Invariant,
			Cause:     appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeDerivationError = "DERIVATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// FromDomain classifies engine and repository errors. Errors that are
// already AppErrors are returned as is; unknown errors become INTERNAL_ERROR.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	out := &AppError{Message: err.Error(), Cause: err}

	var ve *ma.ValidationError
	if stderrors.As(err, &ve) {
		out.Code = CodeValidationError
		out.Invariant = string(ve.Invariant)
		out.Field = ve.Field
		return out
	}

	var fe *ma.FieldError
	if stderrors.As(err, &fe) {
		out.Field = string(fe.Field)
	}

	switch {
	case stderrors.Is(err, core.ErrNotFound):
		out.Code = CodeNotFound
	case stderrors.Is(err, core.ErrConflict):
		out.Code = CodeConflict
	case stderrors.Is(err, ma.ErrUnsupportedEffectType),
		stderrors.Is(err, ma.ErrMissingRequiredField),
		stderrors.Is(err, ma.ErrInvalidSampleSize),
		stderrors.Is(err, ma.ErrInvalidFieldValue),
		stderrors.Is(err, ma.ErrDegenerateVariance),
		stderrors.Is(err, ma.ErrZeroCellCount):
		out.Code = CodeDerivationError
	case stderrors.Is(err, ma.ErrInvalidConfidenceLevel):
		out.Code = CodeInvalidInput
	default:
		out.Code = CodeInternalError
	}
	return out
}

// HTTPStatus maps an error code to its response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeValidationError, CodeDerivationError:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalidInput, CodeConfigInvalid:
		return http.StatusBadRequest
	case CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
