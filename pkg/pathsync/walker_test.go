package pathsync

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/pkg/exclusion"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/pathcopy"
)

func TestWalk_MirrorsTree(t *testing.T) {
	src, trg := t.TempDir(), t.TempDir()
	createFiles(t, src,
		"a.txt",
		"b.tmp",
		"docs/c.txt",
		"docs/deep/d.txt",
		"node_modules/pkg/e.js",
	)

	filter := exclusion.NewFilter([]string{"node_modules"}, []string{"tmp"}, true)
	m := &metrics.RunMetrics{}
	rec := &recorder{}
	w := NewWalker(pathcopy.NewCopier(filter, 0), filter, 3, WithSink(rec.sink), WithMetrics(m))

	queue := NewErrorQueue()
	count, err := w.Walk(context.Background(), src, "mirror", trg, queue)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Zero(t, queue.Len())

	assert.FileExists(t, filepath.Join(trg, "mirror", "a.txt"))
	assert.FileExists(t, filepath.Join(trg, "mirror", "docs", "deep", "d.txt"))
	assert.NoFileExists(t, filepath.Join(trg, "mirror", "b.tmp"))
	assert.NoDirExists(t, filepath.Join(trg, "mirror", "node_modules"))
	assert.EqualValues(t, 1, m.FilesExcluded.Load())
	assert.EqualValues(t, 1, m.DirsExcluded.Load())
	assert.Equal(t, 3, rec.count(EventCopied))

	// Files of a directory are handled before its subdirectories.
	require.GreaterOrEqual(t, len(rec.events), 3)
	assert.Equal(t, EventCopied+" mirror/a.txt", rec.events[0])

	t.Run("Second walk copies nothing", func(t *testing.T) {
		count, err := w.Walk(context.Background(), src, "mirror", trg, queue)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.EqualValues(t, 3, m.FilesUpToDate.Load())
	})
}

func TestWalk_HiddenDirectoriesAreSkipped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("dot-prefix hidden convention is Unix only")
	}
	src, trg := t.TempDir(), t.TempDir()
	createFiles(t, src, "visible.txt", ".git/config", ".env", "sub/.hidden/inner/x.txt")

	t.Run("Ignored", func(t *testing.T) {
		filter := exclusion.NewFilter(nil, nil, true)
		w := NewWalker(pathcopy.NewCopier(filter, 0), filter, 3, WithSink(nil))
		count, err := w.Walk(context.Background(), src, "", filepath.Join(trg, "ignored"), NewErrorQueue())
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("Included", func(t *testing.T) {
		filter := exclusion.NewFilter(nil, nil, false)
		w := NewWalker(pathcopy.NewCopier(filter, 0), filter, 3, WithSink(nil))
		count, err := w.Walk(context.Background(), src, "", filepath.Join(trg, "included"), NewErrorQueue())
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})
}

func TestWalk_ExcessiveErrors(t *testing.T) {
	testCases := []struct {
		name     string
		failures int
		fatal    bool
	}{
		{"Three failures are tolerated", 3, false},
		{"Four failures abort the run", 4, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src, trg := t.TempDir(), t.TempDir()
			for i := 0; i < tc.failures; i++ {
				p := filepath.Join(src, "busy", string(rune('a'+i))+".log")
				require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
				require.NoError(t, os.WriteFile(p, []byte("still writing"), 0644))
			}
			createFiles(t, src, "z-after/ok.txt")

			// Every freshly written file is inside the quiescence window.
			w := NewWalker(pathcopy.NewCopier(nil, time.Hour), nil, 3, WithSink(nil))
			queue := NewErrorQueue()
			_, err := w.Walk(context.Background(), src, "", trg, queue)
			if tc.fatal {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrExcessiveErrors)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.failures, queue.Len())
			assert.Len(t, queue.GroupByOutcome()[pathcopy.WriteInProgress], tc.failures)
			assert.FileExists(t, filepath.Join(trg, "z-after", "ok.txt"), "siblings are still processed")
		})
	}
}

func TestWalk_UnreadableDirectoryIsDeferred(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("needs POSIX permissions enforced for the current user")
	}
	src, trg := t.TempDir(), t.TempDir()
	createFiles(t, src, "ok.txt", "locked/secret.txt", "open/fine.txt")
	locked := filepath.Join(src, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	rec := &recorder{}
	w := NewWalker(pathcopy.NewCopier(nil, 0), nil, 3, WithSink(rec.sink))
	queue := NewErrorQueue()
	count, err := w.Walk(context.Background(), src, "", trg, queue)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Equal(t, 1, queue.Len())
	assert.True(t, queue.Entries()[0].IsDir)
	assert.False(t, queue.Entries()[0].Retryable())
	assert.Equal(t, []string{locked}, queue.UnreadableDirs())
	assert.Equal(t, 1, rec.count(EventDirUnreadable))
}

func TestWalk_Cancelled(t *testing.T) {
	src, trg := t.TempDir(), t.TempDir()
	createFiles(t, src, "a.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWalker(pathcopy.NewCopier(nil, 0), nil, 3, WithSink(nil))
	_, err := w.Walk(ctx, src, "", trg, NewErrorQueue())
	assert.ErrorIs(t, err, context.Canceled)
}
