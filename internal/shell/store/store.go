package store

import (
	"context"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for castforge records: named
// projects plus a singleton device credential record.
type Store interface {
	// Project operations
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, name string) (*domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, name string) error
	ListProjects(ctx context.Context) ([]domain.Project, error)

	// Device operations. There is at most one saved device; SaveDevice
	// replaces any previous record.
	SaveDevice(ctx context.Context, device *domain.AuthorizedDevice) error
	GetDevice(ctx context.Context) (*domain.AuthorizedDevice, error)

	// Close releases the underlying database handle.
	Close() error
}
