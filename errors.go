package relorm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by single-row finders when nothing matches.
	ErrNotFound = errors.New("relorm: not found")

	// ErrConstraintViolation matches every *ConstraintViolationError.
	ErrConstraintViolation = errors.New("relorm: constraint violation")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("relorm: validation failed")

	// ErrUnknownEntity is returned when a type is not registered on the connection.
	ErrUnknownEntity = errors.New("relorm: entity is not registered")

	// ErrNotManaged is returned when removing an entity the session does not track.
	ErrNotManaged = errors.New("relorm: entity is not managed by this session")

	ErrFlushInProgress = errors.New("relorm: flush already in progress")
)

type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintPrimaryKey ConstraintKind = "primary_key"
	ConstraintCheck      ConstraintKind = "check"
)

// ConstraintViolationError is a unique, foreign key or not null breach
// reported by the database while flushing.
type ConstraintViolationError struct {
	Table string
	Kind  ConstraintKind
	Err   error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("relorm: %s constraint violated on %s: %v", e.Kind, e.Table, e.Err)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

func (e *ConstraintViolationError) Is(target error) bool { return target == ErrConstraintViolation }

// ValidationError reports a malformed entity or query.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("relorm: invalid %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("relorm: invalid %s.%s: %s", e.Entity, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(entity, field, format string, args ...interface{}) error {
	return &ValidationError{Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}
