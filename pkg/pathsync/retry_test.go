package pathsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/pkg/pathcopy"
)

func TestRetry_RecoversSettledFile(t *testing.T) {
	src, trg := t.TempDir(), t.TempDir()
	createFiles(t, src, "busy.log", "done.txt")
	info, err := os.Stat(filepath.Join(src, "busy.log"))
	require.NoError(t, err)
	mtime := info.ModTime()

	// The copier clock is moved forward between the walk and the retry.
	now := mtime.Add(10 * time.Millisecond)
	copier := pathcopy.NewCopier(nil, 500*time.Millisecond, pathcopy.WithClock(func() time.Time { return now }))

	queue := NewErrorQueue()
	w := NewWalker(copier, nil, 3, WithSink(nil))
	count, err := w.Walk(context.Background(), src, "", trg, queue)
	require.NoError(t, err)
	assert.Zero(t, count)
	require.Equal(t, 2, queue.Retryable())

	now = mtime.Add(time.Second)
	rec := &recorder{}
	r := NewRetrier(copier, true, time.Millisecond, time.Second, WithSink(rec.sink))
	assert.Equal(t, 2, r.Retry(context.Background(), queue))
	assert.Zero(t, queue.Len())
	assert.Equal(t, 2, rec.count(EventRecovered))
	assert.FileExists(t, filepath.Join(trg, "busy.log"))
}

func TestRetry_Disabled(t *testing.T) {
	src, trg := t.TempDir(), t.TempDir()
	createFiles(t, src, "a.txt")
	queue := NewErrorQueue()
	queue.Add(DeferredError{SourceFile: filepath.Join(src, "a.txt"), TargetDir: trg, Outcome: pathcopy.Exception})

	r := NewRetrier(pathcopy.NewCopier(nil, 0), false, time.Millisecond, time.Second, WithSink(nil))
	assert.Zero(t, r.Retry(context.Background(), queue))
	assert.Equal(t, 1, queue.Len())
	assert.NoFileExists(t, filepath.Join(trg, "a.txt"))
}

func TestRetry_BudgetExhausted(t *testing.T) {
	src, trg := t.TempDir(), t.TempDir()
	createFiles(t, src, "a.txt")
	queue := NewErrorQueue()
	queue.Add(DeferredError{SourceFile: filepath.Join(src, "a.txt"), TargetDir: trg, Outcome: pathcopy.WriteInProgress})

	// The file never leaves the quiescence window.
	copier := pathcopy.NewCopier(nil, 24*time.Hour)
	r := NewRetrier(copier, true, 5*time.Millisecond, 30*time.Millisecond, WithSink(nil))

	start := time.Now()
	assert.Zero(t, r.Retry(context.Background(), queue))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Equal(t, 1, queue.Len())
	assert.Equal(t, pathcopy.WriteInProgress, queue.Entries()[0].Outcome)
	assert.Error(t, queue.Entries()[0].Err)
}

func TestRetry_PathTooLongIsNeverRetried(t *testing.T) {
	queue := NewErrorQueue()
	queue.Add(DeferredError{SourceFile: "/src/x", TargetDir: "/trg", Outcome: pathcopy.PathTooLong})
	queue.Add(DeferredError{SourceFile: "/src/dir", TargetDir: "/trg", Outcome: pathcopy.Exception, IsDir: true})

	r := NewRetrier(pathcopy.NewCopier(nil, 0), true, time.Hour, time.Hour, WithSink(nil))
	assert.Zero(t, r.Retry(context.Background(), queue), "returns at once without sleeping")
	assert.Equal(t, 2, queue.Len())
}

func TestRetry_Cancelled(t *testing.T) {
	queue := NewErrorQueue()
	queue.Add(DeferredError{SourceFile: "/src/x", TargetDir: "/trg", Outcome: pathcopy.Exception})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRetrier(pathcopy.NewCopier(nil, 0), true, time.Hour, time.Hour, WithSink(nil))
	assert.Zero(t, r.Retry(ctx, queue))
	assert.Equal(t, 1, queue.Len())
}

func TestReportUnresolved(t *testing.T) {
	queue := NewErrorQueue()
	queue.Add(DeferredError{SourceFile: "/s/long", Outcome: pathcopy.PathTooLong, Err: errors.New("name too long")})
	queue.Add(DeferredError{SourceFile: "/s/locked", Outcome: pathcopy.Exception, Err: errors.New("sharing violation")})
	queue.Add(DeferredError{SourceFile: "/s/busy", Outcome: pathcopy.WriteInProgress, Err: errors.New("modified 1ms ago")})

	rec := &recorder{}
	ReportUnresolved(queue, rec.sink)
	require.Len(t, rec.events, 3)
	assert.True(t, strings.HasPrefix(rec.events[0], EventUnresolved+" WriteInProgress: /s/busy"))
	assert.True(t, strings.HasPrefix(rec.events[1], EventUnresolved+" Exception: /s/locked"))
	assert.True(t, strings.HasPrefix(rec.events[2], EventUnresolved+" PathTooLong: /s/long"))

	assert.NotPanics(t, func() { ReportUnresolved(NewErrorQueue(), nil) })
}

func TestErrorQueue(t *testing.T) {
	q := NewErrorQueue()
	q.Add(DeferredError{SourceFile: "a", Outcome: pathcopy.Exception})
	q.Add(DeferredError{SourceFile: "b", Outcome: pathcopy.PathTooLong})
	q.Add(DeferredError{SourceFile: "c", Outcome: pathcopy.WriteInProgress})

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 2, q.Retryable())

	entries := q.Entries()
	entries[0].SourceFile = "mutated"
	assert.Equal(t, "a", q.Entries()[0].SourceFile, "Entries returns a copy")

	assert.True(t, q.Remove("a"))
	assert.False(t, q.Remove("a"))
	assert.Equal(t, []string{"b", "c"}, []string{q.Entries()[0].SourceFile, q.Entries()[1].SourceFile})

	groups := q.GroupByOutcome()
	assert.Len(t, groups[pathcopy.PathTooLong], 1)
	assert.Len(t, groups[pathcopy.WriteInProgress], 1)
	assert.Empty(t, q.UnreadableDirs())
}
