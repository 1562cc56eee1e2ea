package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrStudyNotFound    = fmt.Errorf("%w: study", ErrNotFound)
	ErrArmNotFound      = fmt.Errorf("%w: arm", ErrNotFound)
	ErrOutcomeNotFound  = fmt.Errorf("%w: outcome", ErrNotFound)
	ErrEffectNotFound   = fmt.Errorf("%w: effect", ErrNotFound)
	ErrCovariateMissing = fmt.Errorf("%w: covariate", ErrNotFound)

	// Persistence errors
	ErrConflict      = errors.New("conflicting record")
	ErrDuplicate     = fmt.Errorf("%w: duplicate", ErrConflict)
	ErrHasDependents = fmt.Errorf("%w: record has dependents", ErrConflict)
)

// NewNotFoundError reports a missing resource by kind and id
func NewNotFoundError(resource string, id ID) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewConflictError reports a conflicting write on the named resource
func NewConflictError(resource string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConflict, resource, reason)
}

// IsNotFoundError reports whether err is a not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError reports whether err is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}
