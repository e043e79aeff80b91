// Package store provides persistence for castforge projects and the saved
// device record.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateName is returned when creating a project whose name is
	// already taken.
	ErrDuplicateName = errors.New("project with this name already exists")

	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when database migration fails.
	ErrMigrationFailed = errors.New("database migration failed")
)

// StoreError wraps errors with operation context.
type StoreError struct {
	Op      string // Operation that failed (e.g., "CreateProject")
	Name    string // Project name if applicable
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Name, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError wrapping err.
func NewStoreError(op, name, message string, err error) *StoreError {
	return &StoreError{Op: op, Name: name, Message: message, Err: err}
}
