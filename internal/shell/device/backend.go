package device

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Deployment Backend
// =============================================================================

// DeployAndSign zips the build directory, pushes it to the device's
// installer, then asks the device for a signed package. Returns the staged
// artifact path.
func (c *Client) DeployAndSign(ctx context.Context, dev domain.AuthorizedDevice, buildDir, appName, signKey string) (string, error) {
	var archive bytes.Buffer
	if err := zipDir(&archive, buildDir); err != nil {
		return "", fmt.Errorf("archive build directory: %w", err)
	}

	c.logger.Info("installing build", "device", dev.Address, "app", appName, "archive_bytes", archive.Len())
	if err := c.Install(ctx, dev, &archive, appName+".zip"); err != nil {
		return "", err
	}

	return c.CreatePackage(ctx, dev, appName, signKey)
}

// PackageOnly asks the device for a signed package of the already-installed
// app, without pushing a build first. Returns the staged artifact path.
func (c *Client) PackageOnly(ctx context.Context, dev domain.AuthorizedDevice, appName, signKey string) (string, error) {
	return c.CreatePackage(ctx, dev, appName, signKey)
}

// zipDir writes dir's contents (relative paths, files only) as a zip archive.
func zipDir(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		return err
	}
	return zw.Close()
}
