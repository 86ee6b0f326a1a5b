package pathcopy

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/pkg/exclusion"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// writeAged creates a file whose modification time lies age in the past.
func writeAged(t *testing.T, path, content string, age time.Duration) time.Time {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	mtime := time.Now().Add(-age).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return mtime
}

func TestOutcome(t *testing.T) {
	testCases := []struct {
		outcome   Outcome
		name      string
		retryable bool
		failure   bool
	}{
		{OK, "OK", false, false},
		{Ineligible, "Ineligible", false, false},
		{AlreadyBackedUp, "AlreadyBackedUp", false, false},
		{WriteInProgress, "WriteInProgress", true, true},
		{Exception, "Exception", true, true},
		{PathTooLong, "PathTooLong", false, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, tc.outcome.String())
			assert.Equal(t, tc.retryable, tc.outcome.Retryable())
			assert.Equal(t, tc.failure, tc.outcome.IsFailure())
			parsed, ok := ParseOutcome(tc.name)
			assert.True(t, ok)
			assert.Equal(t, tc.outcome, parsed)
		})
	}
	assert.Equal(t, "unknown_outcome(99)", Outcome(99).String())
}

func TestDecideAndCopy_CopyThenAlreadyBackedUp(t *testing.T) {
	srcDir, trgDir := t.TempDir(), filepath.Join(t.TempDir(), "nested", "target")
	src := filepath.Join(srcDir, "report.txt")
	mtime := writeAged(t, src, "hello", time.Hour)

	m := &metrics.RunMetrics{}
	c := NewCopier(nil, 500*time.Millisecond, WithMetrics(m))

	outcome, err := c.DecideAndCopy(src, trgDir, false)
	require.NoError(t, err)
	assert.Equal(t, OK, outcome)
	assert.EqualValues(t, 5, m.BytesWritten.Load())

	trg := filepath.Join(trgDir, "report.txt")
	data, err := os.ReadFile(trg)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	info, err := os.Stat(trg)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "modification time is preserved")

	outcome, err = c.DecideAndCopy(src, trgDir, false)
	require.NoError(t, err)
	assert.Equal(t, AlreadyBackedUp, outcome)

	entries, err := os.ReadDir(trgDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestDecideAndCopy_ModifiedSourceOverwritesReadOnlyTarget(t *testing.T) {
	srcDir, trgDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	writeAged(t, src, "old", 2*time.Hour)
	require.NoError(t, os.Chmod(src, 0444))

	c := NewCopier(nil, 0)
	outcome, err := c.DecideAndCopy(src, trgDir, false)
	require.NoError(t, err)
	require.Equal(t, OK, outcome)

	trg := filepath.Join(trgDir, "a.txt")
	info, err := os.Stat(trg)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0644), info.Mode().Perm(), "owner write is added")
	}

	require.NoError(t, os.Chmod(trg, 0444))
	require.NoError(t, os.Chmod(src, 0644))
	newMtime := writeAged(t, src, "new content", time.Hour)

	outcome, err = c.DecideAndCopy(src, trgDir, false)
	require.NoError(t, err)
	assert.Equal(t, OK, outcome)
	data, err := os.ReadFile(trg)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))
	info, err = os.Stat(trg)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(newMtime))
}

func TestDecideAndCopy_WriteInProgress(t *testing.T) {
	srcDir, trgDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "growing.log")
	mtime := writeAged(t, src, "partial", time.Hour)

	c := NewCopier(nil, 500*time.Millisecond, WithClock(func() time.Time {
		return mtime.Add(100 * time.Millisecond)
	}))
	outcome, err := c.DecideAndCopy(src, trgDir, false)
	assert.Equal(t, WriteInProgress, outcome)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(trgDir, "growing.log"))

	settled := NewCopier(nil, 500*time.Millisecond, WithClock(func() time.Time {
		return mtime.Add(time.Second)
	}))
	outcome, err = settled.DecideAndCopy(src, trgDir, false)
	require.NoError(t, err)
	assert.Equal(t, OK, outcome)
}

func TestDecideAndCopy_Ineligible(t *testing.T) {
	srcDir, trgDir := t.TempDir(), t.TempDir()
	filter := exclusion.NewFilter(nil, []string{"tmp"}, true)
	c := NewCopier(filter, 0)

	tmp := filepath.Join(srcDir, "scratch.TMP")
	writeAged(t, tmp, "x", time.Hour)
	outcome, err := c.DecideAndCopy(tmp, trgDir, false)
	require.NoError(t, err)
	assert.Equal(t, Ineligible, outcome)

	plain := filepath.Join(srcDir, "plain.txt")
	writeAged(t, plain, "x", time.Hour)
	outcome, err = c.DecideAndCopy(plain, trgDir, true)
	require.NoError(t, err)
	assert.Equal(t, Ineligible, outcome, "hidden status inherited from the parent directory")

	entries, err := os.ReadDir(trgDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecideAndCopy_SymlinkIsIneligible(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs privileges on Windows")
	}
	srcDir, trgDir := t.TempDir(), t.TempDir()
	realFile := filepath.Join(srcDir, "real.txt")
	writeAged(t, realFile, "x", time.Hour)
	link := filepath.Join(srcDir, "link.txt")
	require.NoError(t, os.Symlink(realFile, link))

	outcome, err := NewCopier(nil, 0).DecideAndCopy(link, trgDir, false)
	require.NoError(t, err)
	assert.Equal(t, Ineligible, outcome)
}

func TestDecideAndCopy_PathTooLong(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("long path support depends on system configuration")
	}
	srcDir, trgRoot := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	writeAged(t, src, "x", time.Hour)

	trgDir := filepath.Join(trgRoot, strings.Repeat("d", 300))
	outcome, err := NewCopier(nil, 0).DecideAndCopy(src, trgDir, false)
	assert.Equal(t, PathTooLong, outcome)
	assert.Error(t, err)
	assert.False(t, outcome.Retryable())

	entries, err := os.ReadDir(trgRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "target is left untouched")
}

func TestDecideAndCopy_Exception(t *testing.T) {
	srcDir, trgRoot := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	writeAged(t, src, "x", time.Hour)

	// The target directory path is occupied by a regular file.
	blocker := filepath.Join(trgRoot, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0644))

	outcome, err := NewCopier(nil, 0).DecideAndCopy(src, blocker, false)
	assert.Equal(t, Exception, outcome)
	assert.Error(t, err)

	outcome, err = NewCopier(nil, 0).DecideAndCopy(filepath.Join(srcDir, "missing.txt"), trgRoot, false)
	assert.Equal(t, Exception, outcome)
	assert.Error(t, err)
}
