package taskcatalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/castforge/castforge/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CatalogFile), []byte(content), 0o644))
}

func TestListTasks_ParsesDocument(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, `
version: "1"
tasks:
  - label: build
    kind: shell
    command: make release
    dir: app
    env:
      NODE_ENV: production
  - label: zip
    kind: script
    command: package
    group: build
`)

	tasks, err := ListTasks(dir)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "build", tasks[0].Label)
	assert.Equal(t, domain.TaskKindShell, tasks[0].Kind)
	assert.Equal(t, "make release", tasks[0].Command)
	assert.Equal(t, "app", tasks[0].Dir)
	assert.Equal(t, "production", tasks[0].Env["NODE_ENV"])

	assert.Equal(t, domain.TaskKindScript, tasks[1].Kind)
	assert.Equal(t, "build", tasks[1].Group)
}

func TestListTasks_DefaultsKindToShell(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "tasks:\n  - label: build\n    command: make\n")

	tasks, err := ListTasks(dir)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskKindShell, tasks[0].Kind)
}

func TestListTasks_MissingCatalog(t *testing.T) {
	_, err := ListTasks(t.TempDir())
	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestListTasks_DuplicateLabel(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "tasks:\n  - label: build\n    command: a\n  - label: build\n    command: b\n")

	_, err := ListTasks(dir)
	assert.ErrorIs(t, err, ErrDuplicateLabel)
}

func TestListTasks_MissingLabel(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "tasks:\n  - command: make\n")

	_, err := ListTasks(dir)
	assert.Error(t, err)
}

func TestListTasks_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "tasks: [unclosed")

	_, err := ListTasks(dir)
	assert.Error(t, err)
}
