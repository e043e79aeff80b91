package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// ValidateName Tests
// =============================================================================

func TestValidateName_Valid(t *testing.T) {
	for _, name := range []string{"demo", "my-app", "my_app2", "APP", "a"} {
		assert.NoError(t, ValidateName(name), name)
	}
}

func TestValidateName_Empty(t *testing.T) {
	assert.ErrorIs(t, ValidateName(""), ErrEmptyProjectName)
}

func TestValidateName_InvalidCharacters(t *testing.T) {
	for _, name := range []string{"my app", "app!", "café", "a/b", "a.b"} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidProjectName, name)
	}
}

// =============================================================================
// Project Validate Tests
// =============================================================================

func TestProjectValidate_Complete(t *testing.T) {
	p := Project{Name: "demo", RootDir: "/app", SignKey: "abc"}
	assert.NoError(t, p.Validate())
}

func TestProjectValidate_MissingRootDir(t *testing.T) {
	p := Project{Name: "demo", SignKey: "abc"}
	assert.ErrorIs(t, p.Validate(), ErrMissingRootDir)
}

func TestProjectValidate_MissingSignKey(t *testing.T) {
	p := Project{Name: "demo", RootDir: "/app"}
	assert.ErrorIs(t, p.Validate(), ErrMissingSignKey)
}
