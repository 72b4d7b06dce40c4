package metrics

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a metric definition does not exist, is
	// inactive, or is suppressed by the feature gate.
	ErrNotFound = errors.New("metric not found")
	// ErrPermissionDenied is returned when editing or deleting a system metric
	// or another user's custom metric.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrScopeMismatch is returned by write paths when the target kind does
	// not match the metric's scope.
	ErrScopeMismatch = errors.New("scope mismatch")
	// ErrInvalidValue is returned when a write violates a value invariant.
	ErrInvalidValue = errors.New("invalid value")
	// ErrInvalidDefinition is returned for malformed metric definitions.
	ErrInvalidDefinition = errors.New("invalid metric definition")
	// ErrDuplicateName is returned when a custom metric name is already taken in its scope.
	ErrDuplicateName = errors.New("metric name already exists in scope")
	// ErrCyclicDependency is returned when evaluation revisits a metric on the same target.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrExternalUnavailable is returned by market data collaborators that
	// cannot produce a price.
	ErrExternalUnavailable = errors.New("external data unavailable")
)

// CycleError reports the dependency path that closed a cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// ValidationError names the value invariant a write violated.
type ValidationError struct {
	Rule string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidValue, e.Rule)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidValue
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Rule: fmt.Sprintf(format, args...)}
}
