package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// IsBuildLike Tests
// =============================================================================

func TestIsBuildLike_LabelHints(t *testing.T) {
	for _, label := range []string{"build", "Build App", "compile-release", "package zip", "deploy-stage"} {
		task := BuildTask{Label: label}
		assert.True(t, task.IsBuildLike(), label)
	}
}

func TestIsBuildLike_GroupTag(t *testing.T) {
	task := BuildTask{Label: "release", Group: "build"}
	assert.True(t, task.IsBuildLike())
}

func TestIsBuildLike_Unrelated(t *testing.T) {
	task := BuildTask{Label: "lint"}
	assert.False(t, task.IsBuildLike())
}

// =============================================================================
// FilterBuildLike / FindTask Tests
// =============================================================================

func TestFilterBuildLike_PreservesOrder(t *testing.T) {
	tasks := []BuildTask{
		{Label: "lint"},
		{Label: "build-dev"},
		{Label: "test"},
		{Label: "release", Group: "build"},
	}

	got := FilterBuildLike(tasks)

	assert.Equal(t, []string{"build-dev", "release"}, TaskLabels(got))
}

func TestFindTask_Found(t *testing.T) {
	tasks := []BuildTask{{Label: "a"}, {Label: "b"}}

	task, ok := FindTask(tasks, "b")

	assert.True(t, ok)
	assert.Equal(t, "b", task.Label)
}

func TestFindTask_Missing(t *testing.T) {
	_, ok := FindTask([]BuildTask{{Label: "a"}}, "zzz")
	assert.False(t, ok)
}
