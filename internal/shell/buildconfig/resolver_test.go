package buildconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0o644))
}

func TestResolveBuildDir_StagingWins(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "staging: staged\nout_dir: dist\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist"), 0o755))

	got, err := ResolveBuildDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "staged"), got)
}

func TestResolveBuildDir_AbsoluteStaging(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "staging: /abs/staged\n")

	got, err := ResolveBuildDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "/abs/staged", got)
}

func TestResolveBuildDir_DeclaredOutDir(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "out_dir: output\n")

	got, err := ResolveBuildDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "output"), got)
}

func TestResolveBuildDir_ConventionalDirs(t *testing.T) {
	dir := t.TempDir()
	// "build" exists, "dist" does not; "dist" has higher priority but only
	// existing directories count.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0o755))

	got, err := ResolveBuildDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "build"), got)
}

func TestResolveBuildDir_ConventionalPriority(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0o755))

	got, err := ResolveBuildDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dist"), got)
}

func TestResolveBuildDir_FallsBackToRoot(t *testing.T) {
	dir := t.TempDir()

	got, err := ResolveBuildDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestResolveBuildDir_MalformedConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "staging: [oops")

	_, err := ResolveBuildDir(dir)
	assert.Error(t, err)
}
