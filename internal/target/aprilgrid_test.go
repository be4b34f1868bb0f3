package target

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteYAMLKeyOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "april.yaml")
	require.NoError(t, DefaultAprilGrid().WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{
		"target_type: aprilgrid",
		"tagCols: 6",
		"tagRows: 6",
		"tagSize: 0.0275",
		"tagSpacing: 0.3",
	}, lines)
}

func TestLoadYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "april.yaml")
	g := AprilGrid{TargetType: TypeAprilGrid, TagCols: 7, TagRows: 5, TagSize: 0.088, TagSpacing: 0.25}
	require.NoError(t, g.WriteYAML(path))

	got, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, g, got)
}

func TestLoadYAMLDefaultsMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_type: aprilgrid\ntagCols: 4\n"), 0o644))

	got, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, 4, got.TagCols)
	assert.Equal(t, 6, got.TagRows)
	assert.Equal(t, 0.0275, got.TagSize)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultAprilGrid().Validate())

	bad := AprilGrid{TargetType: "checkerboard", TagCols: 0, TagRows: 3, TagSize: -1, TagSpacing: 1.5}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"target_type", "at least one tag", "tagSize", "tagSpacing"} {
		assert.Contains(t, err.Error(), want)
	}

	assert.Error(t, bad.WriteYAML(filepath.Join(t.TempDir(), "bad.yaml")))
}

func TestSize(t *testing.T) {
	w, h := AprilGrid{TargetType: TypeAprilGrid, TagCols: 2, TagRows: 1, TagSize: 1, TagSpacing: 0.5}.Size()
	assert.InDelta(t, 2.5, w, 1e-12)
	assert.InDelta(t, 1.0, h, 1e-12)
}

func TestLoadYAMLErrors(t *testing.T) {
	_, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tagCols: [1, 2"), 0o644))
	_, err = LoadYAML(path)
	assert.Error(t, err)
}
