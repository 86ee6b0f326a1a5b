package pathsync

import (
	"context"
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/pathcopy"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Retrier re-attempts transient failures once the traversal pass is complete.
type Retrier struct {
	copier   *pathcopy.Copier
	enabled  bool
	interval time.Duration
	budget   time.Duration
	options
}

// NewRetrier creates a Retrier. A disabled Retrier leaves every queue untouched.
func NewRetrier(copier *pathcopy.Copier, enabled bool, interval, budget time.Duration, opts ...Option) *Retrier {
	return &Retrier{
		copier:   copier,
		enabled:  enabled,
		interval: interval,
		budget:   budget,
		options:  newOptions(opts),
	}
}

// Retry sleeps for the interval and re-attempts every retryable entry, repeating
// until none remain or the budget has elapsed. Entries that no longer fail are
// removed from the queue. It returns the number of files copied on retry.
func (r *Retrier) Retry(ctx context.Context, queue *ErrorQueue) int {
	if !r.enabled || queue.Retryable() == 0 {
		return 0
	}

	plog.Info("Retrying deferred files", "count", queue.Retryable(), "interval", r.interval, "budget", r.budget)
	start := time.Now()
	recovered := 0
	for sweep := 1; queue.Retryable() > 0; sweep++ {
		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return recovered
		case <-timer.C:
		}

		for _, e := range queue.Entries() {
			if !e.Retryable() {
				continue
			}
			r.metrics.AddFilesRetried(1)
			outcome, err := r.copier.DecideAndCopy(e.SourceFile, e.TargetDir, e.InheritedHidden)
			if !outcome.IsFailure() {
				queue.Remove(e.SourceFile)
				switch outcome {
				case pathcopy.OK:
					recovered++
					r.metrics.AddFilesCopied(1)
				case pathcopy.AlreadyBackedUp:
					r.metrics.AddFilesUpToDate(1)
				case pathcopy.Ineligible:
					r.metrics.AddFilesExcluded(1)
				}
				r.sink(EventRecovered, fmt.Sprintf("%s: %s", outcome, e.SourceFile))
				continue
			}
			e.Outcome, e.Err, e.FailedAt = outcome, err, r.now()
			queue.update(e)
		}
		plog.Debug("Retry sweep finished", "sweep", sweep, "remaining", queue.Retryable())

		if time.Since(start) >= r.budget {
			break
		}
	}
	return recovered
}

// reportOrder fixes the order in which failure groups are reported.
var reportOrder = []pathcopy.Outcome{pathcopy.WriteInProgress, pathcopy.Exception, pathcopy.PathTooLong}

// ReportUnresolved logs what is left in queue, grouped by classification.
// Every entry is also passed to sink.
func ReportUnresolved(queue *ErrorQueue, sink plog.Sink) {
	if queue.Len() == 0 {
		return
	}
	if sink == nil {
		sink = plog.DiscardSink
	}
	plog.Warn("Some files could not be backed up", "count", queue.Len())
	groups := queue.GroupByOutcome()
	for _, outcome := range reportOrder {
		entries := groups[outcome]
		if len(entries) == 0 {
			continue
		}
		plog.Warn("Unresolved", "outcome", outcome.String(), "count", len(entries))
		for _, e := range entries {
			path := e.SourceFile
			if e.IsDir {
				path = util.NormalizePath(e.SourceFile) + "/"
			}
			sink(EventUnresolved, fmt.Sprintf("%s: %s: %v", outcome, path, e.Err))
		}
	}
}
