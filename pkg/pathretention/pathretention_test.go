package pathretention

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/metafile"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/snapshot"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// createSnapshot creates a snapshot directory for ts holding one file.
func createSnapshot(t *testing.T, root string, ts time.Time) string {
	t.Helper()
	name, err := snapshot.NextName(root, ts)
	require.NoError(t, err)
	dir := filepath.Join(root, name, "docs")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	return name
}

func TestApply(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	root := t.TempDir()

	old1 := createSnapshot(t, root, now.AddDate(0, 0, -40))
	old2 := createSnapshot(t, root, now.AddDate(0, 0, -31))
	recent := createSnapshot(t, root, now.AddDate(0, 0, -3))
	current := createSnapshot(t, root, now)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "SubDir1"), 0755))

	m := &metrics.RunMetrics{}
	mgr := NewManager(WithClock(func() time.Time { return now }), WithWorkers(2), WithMetrics(m))

	expired, err := mgr.Expired(root, 30, current)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, old1, expired[0].Name)
	assert.Equal(t, old2, expired[1].Name)

	deleted, err := mgr.Apply(context.Background(), root, 30, current)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.EqualValues(t, 2, m.SnapshotsPruned.Load())

	assert.NoDirExists(t, filepath.Join(root, old1))
	assert.NoDirExists(t, filepath.Join(root, old2))
	assert.DirExists(t, filepath.Join(root, recent))
	assert.DirExists(t, filepath.Join(root, current))
	assert.DirExists(t, filepath.Join(root, "SubDir1"), "non-snapshot directories are never touched")
}

func TestApply_CurrentSnapshotIsNeverPruned(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	root := t.TempDir()
	current := createSnapshot(t, root, now.AddDate(-1, 0, 0))

	deleted, err := NewManager(WithClock(func() time.Time { return now })).Apply(context.Background(), root, 1, current)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.DirExists(t, filepath.Join(root, current))
}

func TestApply_Disabled(t *testing.T) {
	root := t.TempDir()
	name := createSnapshot(t, root, time.Now().AddDate(-5, 0, 0))

	deleted, err := NewManager().Apply(context.Background(), root, 0, "")
	assert.Zero(t, deleted)
	assert.ErrorIs(t, err, ErrRetentionDisabled)
	assert.True(t, hints.IsHint(err))
	assert.DirExists(t, filepath.Join(root, name))
}

func TestApply_DryRun(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	root := t.TempDir()
	name := createSnapshot(t, root, now.AddDate(0, 0, -10))

	deleted, err := NewManager(WithClock(func() time.Time { return now }), WithDryRun(true)).Apply(context.Background(), root, 5, "")
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.DirExists(t, filepath.Join(root, name))
}

func TestApply_MissingRoot(t *testing.T) {
	deleted, err := NewManager().Apply(context.Background(), filepath.Join(t.TempDir(), "absent"), 5, "")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestApply_Cancelled(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	root := t.TempDir()
	name := createSnapshot(t, root, now.AddDate(0, 0, -10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewManager(WithClock(func() time.Time { return now })).Apply(ctx, root, 5, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.DirExists(t, filepath.Join(root, name))
}

func TestApply_RemovesSnapshotMetadata(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	root := t.TempDir()
	old := createSnapshot(t, root, now.AddDate(0, 0, -40))
	recent := createSnapshot(t, root, now.AddDate(0, 0, -1))
	for _, name := range []string{old, recent} {
		require.NoError(t, metafile.Write(filepath.Join(root, name), metafile.Content{RunID: name}))
	}

	deleted, err := NewManager(WithClock(func() time.Time { return now })).Apply(context.Background(), root, 30, "")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, metafile.Path(filepath.Join(root, old)))
	assert.FileExists(t, metafile.Path(filepath.Join(root, recent)))
}
