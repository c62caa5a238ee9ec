package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated.
// Use AsDuplicate to recover the offending field.
var ErrDuplicate = errors.New("duplicate value")

// DuplicateError names the column that violated a unique constraint so
// handlers can report the offending field. A concurrent insert losing
// the uniqueness race produces the same error as a pre-insert check.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// AsDuplicate extracts the duplicate field from err, if any.
func AsDuplicate(err error) (*DuplicateError, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}

const pqUniqueViolation = "23505"

// translateError maps driver-level errors onto store sentinels.
// Unique violations carry the constraint name (users_email_key), from
// which the field name is recovered.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return &DuplicateError{Field: fieldFromConstraint(pqErr.Constraint)}
	}
	return err
}

func fieldFromConstraint(constraint string) string {
	name := strings.TrimSuffix(constraint, "_key")
	if idx := strings.Index(name, "_"); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		return "value"
	}
	return name
}
