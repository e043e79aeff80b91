package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/castforge/castforge/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Project Operations
// =============================================================================

// projectRow represents a project row in the database.
type projectRow struct {
	Name                string `db:"name"`
	RootDir             string `db:"root_dir"`
	SignKey             string `db:"sign_key"`
	SignPackageLocation string `db:"sign_package_location"`
	OutputLocation      string `db:"output_location"`
	CreatedAt           string `db:"created_at"`
	UpdatedAt           string `db:"updated_at"`
}

func (r projectRow) toDomain() domain.Project {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	updated, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return domain.Project{
		Name:                r.Name,
		RootDir:             r.RootDir,
		SignKey:             r.SignKey,
		SignPackageLocation: r.SignPackageLocation,
		OutputLocation:      r.OutputLocation,
		CreatedAt:           created,
		UpdatedAt:           updated,
	}
}

func (s *SQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return NewStoreError("CreateProject", project.Name, err.Error(), err)
	}

	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, root_dir, sign_key, sign_package_location, output_location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.Name, project.RootDir, project.SignKey, project.SignPackageLocation,
		project.OutputLocation, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return NewStoreError("CreateProject", project.Name, "name already taken", ErrDuplicateName)
		}
		return NewStoreError("CreateProject", project.Name, err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, name string) (*domain.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM projects WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("GetProject", name, "not found", ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("GetProject", name, err.Error(), err)
	}
	project := row.toDomain()
	return &project, nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return NewStoreError("UpdateProject", project.Name, err.Error(), err)
	}

	project.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET root_dir = ?, sign_key = ?, sign_package_location = ?, output_location = ?, updated_at = ?
		WHERE name = ?`,
		project.RootDir, project.SignKey, project.SignPackageLocation,
		project.OutputLocation, project.UpdatedAt.Format(time.RFC3339), project.Name,
	)
	if err != nil {
		return NewStoreError("UpdateProject", project.Name, err.Error(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewStoreError("UpdateProject", project.Name, "not found", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, name)
	if err != nil {
		return NewStoreError("DeleteProject", name, err.Error(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewStoreError("DeleteProject", name, "not found", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM projects ORDER BY name`); err != nil {
		return nil, NewStoreError("ListProjects", "", err.Error(), err)
	}
	projects := make([]domain.Project, len(rows))
	for i, row := range rows {
		projects[i] = row.toDomain()
	}
	return projects, nil
}

// =============================================================================
// Device Operations
// =============================================================================

// deviceRow represents the singleton device row.
type deviceRow struct {
	ID              int    `db:"id"`
	Address         string `db:"address"`
	Name            string `db:"name"`
	Model           string `db:"model"`
	Serial          string `db:"serial"`
	SoftwareVersion string `db:"software_version"`
	DeviceClass     string `db:"device_class"`
	Credential      string `db:"credential"`
	UpdatedAt       string `db:"updated_at"`
}

func (s *SQLiteStore) SaveDevice(ctx context.Context, device *domain.AuthorizedDevice) error {
	// id is fixed at 1 so the table holds at most one row.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device (id, address, name, model, serial, software_version, device_class, credential, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address = excluded.address,
			name = excluded.name,
			model = excluded.model,
			serial = excluded.serial,
			software_version = excluded.software_version,
			device_class = excluded.device_class,
			credential = excluded.credential,
			updated_at = excluded.updated_at`,
		device.Address, device.Name, device.Model, device.Serial,
		device.SoftwareVersion, device.DeviceClass, device.Credential,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return NewStoreError("SaveDevice", "", err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) GetDevice(ctx context.Context) (*domain.AuthorizedDevice, error) {
	var row deviceRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM device WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("GetDevice", "", "no device saved", ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("GetDevice", "", err.Error(), err)
	}
	return &domain.AuthorizedDevice{
		Device: domain.Device{
			Address:         row.Address,
			Name:            row.Name,
			Model:           row.Model,
			Serial:          row.Serial,
			SoftwareVersion: row.SoftwareVersion,
			DeviceClass:     row.DeviceClass,
		},
		Credential: row.Credential,
	}, nil
}
