package preflight

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestCheckTargetAccessible(t *testing.T) {
	t.Run("Target exists", func(t *testing.T) {
		assert.NoError(t, CheckTargetAccessible(t.TempDir()))
	})

	t.Run("Target does not exist, parent exists", func(t *testing.T) {
		assert.NoError(t, CheckTargetAccessible(filepath.Join(t.TempDir(), "new_dir")))
	})

	t.Run("Deep target below existing ancestor", func(t *testing.T) {
		assert.NoError(t, CheckTargetAccessible(filepath.Join(t.TempDir(), "a", "b", "c")))
	})

	t.Run("Target is a file", func(t *testing.T) {
		targetFile := filepath.Join(t.TempDir(), "target.txt")
		require.NoError(t, os.WriteFile(targetFile, []byte("i am a file"), 0644))
		err := CheckTargetAccessible(targetFile)
		assert.ErrorContains(t, err, "is not a directory")
	})
}

func TestCheckSourceAccessible(t *testing.T) {
	assert.NoError(t, CheckSourceAccessible(t.TempDir()))

	err := CheckSourceAccessible(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "does not exist")

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.ErrorContains(t, CheckSourceAccessible(file), "is not a directory")
}

func TestCheckPathNesting(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "data")
	other := filepath.Join(root, "photos")

	testCases := []struct {
		name    string
		sources []string
		target  string
		wantErr string
	}{
		{"Siblings", []string{src, other}, filepath.Join(root, "backup"), ""},
		{"Similar prefix is not nested", []string{src}, filepath.Join(root, "data-backup"), ""},
		{"Target inside source", []string{src}, filepath.Join(src, "backup"), "is inside source"},
		{"Target equals source", []string{src}, src, "is inside source"},
		{"Source inside target", []string{filepath.Join(root, "backup", "data")}, filepath.Join(root, "backup"), "is inside target"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPathNesting(tc.sources, tc.target)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestCheckTargetWritable(t *testing.T) {
	target := filepath.Join(t.TempDir(), "new", "target")
	require.NoError(t, CheckTargetWritable(target))
	assert.DirExists(t, target)

	entries, err := os.ReadDir(target)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file is removed")
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.Mkdir(src, 0755))
	target := filepath.Join(root, "target")

	require.NoError(t, Run(BackupPlan(1), []string{src}, target))
	assert.DirExists(t, target)

	err := Run(BackupPlan(0), []string{filepath.Join(root, "missing")}, target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreflight)
	assert.ErrorContains(t, err, "does not exist")

	err = Run(BackupPlan(0), []string{src}, filepath.Join(src, "inner"))
	assert.ErrorIs(t, err, ErrPreflight)
}

func TestFreeSpace(t *testing.T) {
	free, err := FreeSpace(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, free)
}
