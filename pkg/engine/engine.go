// Package engine runs one backup task from start to finish.
//
// A run validates the settings, checks the filesystem, locks the target and then
// hands every source to the mode's strategy. Files that failed during the
// traversal are retried once the traversal is complete, and whatever is still
// unresolved is reported grouped by its classification.
package engine

import (
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/pathsync"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// ErrUnresolvedFiles is returned by Result.Err when some files could not be backed up.
var ErrUnresolvedFiles = errors.Base("some files could not be backed up")

// Result describes a finished run.
type Result struct {
	RunID string
	Mode  config.Mode
	// SnapshotDir is the absolute path of the snapshot written in isolated mode.
	SnapshotDir string
	FilesCopied int
	// Errors counts the failures left after the retry pass.
	Errors   int
	Duration time.Duration
}

// Err reports a run that completed but left unresolved failures behind.
func (r Result) Err() error {
	if r.Errors > 0 {
		return errors.Errorf("%w: %d unresolved", ErrUnresolvedFiles, r.Errors)
	}
	return nil
}

// Runner executes tasks. A Runner holds no per-run state and may be reused.
type Runner struct {
	sink             plog.Sink
	now              func() time.Time
	progressInterval time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink routes traversal events to s. Nil discards them.
func WithSink(s plog.Sink) Option {
	return func(r *Runner) {
		if s == nil {
			s = plog.DiscardSink
		}
		r.sink = s
	}
}

// WithClock replaces the wall clock used for snapshot names, quiescence and retention.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithProgress logs the run counters every interval. Zero disables progress lines.
func WithProgress(interval time.Duration) Option {
	return func(r *Runner) { r.progressInterval = interval }
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		sink: pathsync.DefaultSink,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
