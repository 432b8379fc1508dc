// Package errs defines the error taxonomy shared by the object-graph builder,
// the backfill walker and the experiment orchestrator.
//
// Every configuration or programmer error is one of four typed errors. Each
// type matches its sentinel through errors.Is, so callers can branch on the
// category without caring about the details:
//
//	if errors.Is(err, errs.ErrTypeMismatch) { ... }
//
// Job failures are not errors in this sense: the orchestrator turns them into
// FAILURE results and never returns them.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation reports a Definition that does not fit its constructor.
	ErrValidation = errors.New("validation error")
	// ErrTypeMismatch reports a value that does not satisfy a declared type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnknownVariant reports an object_type tag missing from its family.
	ErrUnknownVariant = errors.New("unknown variant")
	// ErrConstruction reports a constructor that failed.
	ErrConstruction = errors.New("construction failure")
)

// ValidationError is raised before any construction starts.
type ValidationError struct {
	Class   string
	Missing []string
	Unknown []string
	// Detail carries free-form context, e.g. duplicate keys in a document.
	Detail string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required keys [%s]", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("unknown keys [%s]", strings.Join(e.Unknown, ", ")))
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return fmt.Sprintf("invalid definition for %s: %s", e.Class, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TypeMismatchError names the class, the parameter, and both types.
type TypeMismatchError struct {
	Class    string
	Param    string
	Expected string
	Actual   string
	Reason   string
}

func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("type mismatch in %s.%s: expected %s, got %s", e.Class, e.Param, e.Expected, e.Actual)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// UnknownVariantError is returned when a tag has no entry in the lookup table.
type UnknownVariantError struct {
	Family string
	Tag    string
	Known  []string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown object_type %q for family %s (known: %s)", e.Tag, e.Family, strings.Join(e.Known, ", "))
}

func (e *UnknownVariantError) Is(target error) bool { return target == ErrUnknownVariant }

// ConstructionError wraps whatever the target constructor returned or panicked with.
type ConstructionError struct {
	Class string
	Cause error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("failed to construct %s: %v", e.Class, e.Cause)
}

func (e *ConstructionError) Is(target error) bool { return target == ErrConstruction }

func (e *ConstructionError) Unwrap() error { return e.Cause }
