package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/exclusion"
	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/lockfile"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/pathcopy"
	"github.com/paulschiretz/pgl-mirror/pkg/pathretention"
	"github.com/paulschiretz/pgl-mirror/pkg/pathsync"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// run is the state of a single task. It is created fresh for every Run call.
type run struct {
	id        string
	settings  config.Settings
	target    string
	sources   []string
	start     time.Time
	now       func() time.Time
	queue     *pathsync.ErrorQueue
	metrics   *metrics.RunMetrics
	filter    *exclusion.Filter
	walker    *pathsync.Walker
	retrier   *pathsync.Retrier
	pruner    *pathsync.Pruner
	retention *pathretention.Manager
	snapshot  string
	copied    int
}

// Run executes one task with settings. A run skipped because another process
// holds the target lock returns a hint error. A run that finished with
// unresolved failures returns a nil error; check Result.Err.
func (r *Runner) Run(ctx context.Context, settings config.Settings) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := settings.Validate(); err != nil {
		return Result{}, err
	}

	target, sources, err := absPaths(settings)
	if err != nil {
		return Result{}, err
	}
	if err := preflight.Run(preflight.BackupPlan(settings.MinFreeSpaceMB), sources, target); err != nil {
		return Result{}, err
	}

	release, err := acquireTargetLock(ctx, target)
	if err != nil {
		return Result{}, err
	}
	defer release()

	st := r.newRun(settings, target, sources)
	plog.Info("Starting run", "runID", st.id, "mode", settings.Mode, "target", target, "sources", len(sources))
	if r.progressInterval > 0 {
		st.metrics.StartProgress("Progress", r.progressInterval)
	}
	defer st.metrics.StopProgress()

	strategy := strategyFor(settings.Mode)
	runErr := strategy.mirror(ctx, st)
	if runErr == nil {
		recovered := st.retrier.Retry(ctx, st.queue)
		st.copied += recovered
		pathsync.ReportUnresolved(st.queue, r.sink)
		runErr = strategy.finish(ctx, st)
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	res := Result{
		RunID:       st.id,
		Mode:        settings.Mode,
		SnapshotDir: st.snapshot,
		FilesCopied: st.copied,
		Errors:      st.queue.Len(),
		Duration:    time.Since(st.start).Round(time.Millisecond),
	}
	st.metrics.StopProgress()
	st.metrics.LogSummary("Run finished")
	if runErr != nil {
		return res, runErr
	}
	plog.Info(buildinfo.Name+" run completed", "runID", res.RunID, "copied", res.FilesCopied, "errors", res.Errors, "duration", res.Duration)
	return res, nil
}

func (r *Runner) newRun(settings config.Settings, target string, sources []string) *run {
	m := &metrics.RunMetrics{}
	filter := exclusion.NewFilter(settings.ExcludeDirs, settings.ExcludeFileTypes, settings.IgnoreHidden)
	copier := pathcopy.NewCopier(filter, settings.MinWriteWait(),
		pathcopy.WithClock(r.now),
		pathcopy.WithMetrics(m),
	)
	opts := []pathsync.Option{
		pathsync.WithSink(r.sink),
		pathsync.WithMetrics(m),
		pathsync.WithClock(r.now),
	}
	return &run{
		id:        uuid.NewString(),
		settings:  settings,
		target:    target,
		sources:   sources,
		start:     time.Now(),
		now:       r.now,
		queue:     pathsync.NewErrorQueue(),
		metrics:   m,
		filter:    filter,
		walker:    pathsync.NewWalker(copier, filter, settings.MaxErrorsPerDir, opts...),
		retrier:   pathsync.NewRetrier(copier, settings.RetryEnabled, settings.RetryInterval(), settings.RetryBudget(), opts...),
		pruner:    pathsync.NewPruner(filter, opts...),
		retention: pathretention.NewManager(
			pathretention.WithWorkers(settings.DeleteWorkers),
			pathretention.WithClock(r.now),
			pathretention.WithMetrics(m),
		),
	}
}

// walkSources mirrors every source into absRoot/relPrefix/<base(source)>.
func (st *run) walkSources(ctx context.Context, relPrefix string) error {
	for _, src := range st.sources {
		rel := filepath.Join(relPrefix, filepath.Base(src))
		plog.Info("Mirroring source", "source", src, "destination", filepath.Join(st.target, rel))
		n, err := st.walker.Walk(ctx, src, rel, st.target, st.queue)
		st.copied += n
		if err != nil {
			return errors.Errorf("failed to mirror %s: %w", src, err)
		}
	}
	return nil
}

// absPaths resolves the target and the sources to cleaned absolute paths.
// A leading tilde is expanded to the home directory.
func absPaths(settings config.Settings) (string, []string, error) {
	target, err := absPath(settings.Target)
	if err != nil {
		return "", nil, err
	}
	sources := make([]string, 0, len(settings.Sources))
	for _, s := range settings.Sources {
		abs, err := absPath(s)
		if err != nil {
			return "", nil, err
		}
		sources = append(sources, abs)
	}
	return target, sources, nil
}

func absPath(p string) (string, error) {
	expanded, err := util.ExpandPath(p)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", errors.Errorf("could not resolve path %s: %w", p, err)
	}
	return abs, nil
}

// acquireTargetLock locks the target directory for the duration of a run. A lock
// held by another process is returned as a hint.
func acquireTargetLock(ctx context.Context, absTarget string) (func(), error) {
	appID := fmt.Sprintf("%s:%s", buildinfo.Name, absTarget)
	plog.Debug("Attempting to acquire lock", "path", absTarget)
	lock, err := lockfile.Acquire(ctx, absTarget, appID)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Another run is active for this target, skipping", "details", lockErr.Error())
			return nil, hints.Wrap(err)
		}
		return nil, errors.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired")
	return lock.Release, nil
}
