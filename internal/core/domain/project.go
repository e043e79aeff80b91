// Package domain contains the core castforge entities.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Project Errors
// =============================================================================

var (
	ErrEmptyProjectName   = errors.New("project name is empty")
	ErrInvalidProjectName = errors.New("project name contains invalid characters")
	ErrMissingRootDir     = errors.New("project root directory is not set")
	ErrMissingSignKey     = errors.New("project signing key is not set")
)

// =============================================================================
// Project
// =============================================================================

// Project describes one deployable application. Projects are owned by the
// project store; the pipeline only reads them.
type Project struct {
	// Name is the unique project key. Alphanumerics, hyphens and
	// underscores only.
	Name string `json:"name" db:"name"`

	// RootDir is the absolute path to the project source tree.
	RootDir string `json:"root_dir" db:"root_dir"`

	// SignKey is the signing credential submitted when rekeying a device
	// and when requesting a signed package.
	SignKey string `json:"sign_key" db:"sign_key"`

	// SignPackageLocation is the path to a previously-signed reference
	// package used to re-authorize a device.
	SignPackageLocation string `json:"sign_package_location" db:"sign_package_location"`

	// OutputLocation is where the final signed artifact should land.
	OutputLocation string `json:"output_location" db:"output_location"`

	// CreatedAt and UpdatedAt are maintained by the store.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ValidateName checks that a project name is usable as a unique key.
//
// Allowed characters are ASCII letters, digits, hyphen and underscore.
// This is a pure function with no side effects.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyProjectName
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidProjectName, r)
		}
	}
	return nil
}

// Validate checks that a project record carries everything the pipeline
// needs. Field-level errors wrap the sentinel errors above.
func (p *Project) Validate() error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if p.RootDir == "" {
		return ErrMissingRootDir
	}
	if p.SignKey == "" {
		return ErrMissingSignKey
	}
	return nil
}
