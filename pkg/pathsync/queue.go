package pathsync

import (
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/pathcopy"
)

// DeferredError records one failed attempt for a later retry or the final report.
type DeferredError struct {
	// SourceFile is the absolute path of the source file, or of the source
	// directory when IsDir is set.
	SourceFile string
	// RelSubDir is the directory of SourceFile relative to the source root.
	RelSubDir string
	// TargetDir is the absolute directory the file is copied into.
	TargetDir       string
	InheritedHidden bool
	// IsDir marks a source directory that could not be enumerated.
	IsDir    bool
	Outcome  pathcopy.Outcome
	Err      error
	FailedAt time.Time
}

// Retryable reports whether the retry engine may attempt the entry again.
func (e DeferredError) Retryable() bool {
	return !e.IsDir && e.Outcome.Retryable()
}

// ErrorQueue collects the deferred errors of one run. It is owned by a single
// run and is not safe for concurrent use.
type ErrorQueue struct {
	entries []DeferredError
}

// NewErrorQueue returns an empty queue.
func NewErrorQueue() *ErrorQueue {
	return &ErrorQueue{}
}

// Add appends an entry.
func (q *ErrorQueue) Add(e DeferredError) {
	q.entries = append(q.entries, e)
}

// Len returns the number of unresolved entries.
func (q *ErrorQueue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the entries in insertion order.
func (q *ErrorQueue) Entries() []DeferredError {
	out := make([]DeferredError, len(q.entries))
	copy(out, q.entries)
	return out
}

// Retryable returns the number of entries the retry engine may still attempt.
func (q *ErrorQueue) Retryable() int {
	n := 0
	for _, e := range q.entries {
		if e.Retryable() {
			n++
		}
	}
	return n
}

// Remove deletes the entry for sourceFile and reports whether one was found.
func (q *ErrorQueue) Remove(sourceFile string) bool {
	for i, e := range q.entries {
		if e.SourceFile == sourceFile {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// update replaces the entry for e.SourceFile.
func (q *ErrorQueue) update(e DeferredError) {
	for i := range q.entries {
		if q.entries[i].SourceFile == e.SourceFile {
			q.entries[i] = e
			return
		}
	}
}

// GroupByOutcome returns the entries keyed by their classification.
func (q *ErrorQueue) GroupByOutcome() map[pathcopy.Outcome][]DeferredError {
	groups := make(map[pathcopy.Outcome][]DeferredError)
	for _, e := range q.entries {
		groups[e.Outcome] = append(groups[e.Outcome], e)
	}
	return groups
}

// UnreadableDirs returns the source directories that could not be enumerated.
func (q *ErrorQueue) UnreadableDirs() []string {
	var dirs []string
	for _, e := range q.entries {
		if e.IsDir {
			dirs = append(dirs, e.SourceFile)
		}
	}
	return dirs
}
