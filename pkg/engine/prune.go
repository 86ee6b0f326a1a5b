package engine

import (
	"context"
	"os"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/pathretention"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
)

// ErrNotIsolated is returned by Prune for targets that hold no snapshots.
var ErrNotIsolated = hints.New("retention only applies to isolated mode")

// Prune applies the retention window to the snapshots in the target without
// running a backup. With dryRun set, expired snapshots are only logged.
func (r *Runner) Prune(ctx context.Context, settings config.Settings, dryRun bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if settings.Mode != config.IsolatedMode {
		return 0, ErrNotIsolated
	}
	if settings.DeleteWorkers < 1 || settings.RetentionDays < 0 {
		return 0, errors.Errorf("%w: deleteWorkers must be positive and retentionDays not negative", config.ErrInvalidSettings)
	}

	target, err := absPath(settings.Target)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return 0, errors.Errorf("target directory %s is not accessible: %w", target, err)
	}
	if !info.IsDir() {
		return 0, errors.Errorf("target path %s is not a directory", target)
	}
	if err := preflight.CheckTargetAccessible(target); err != nil {
		return 0, err
	}

	release, err := acquireTargetLock(ctx, target)
	if err != nil {
		return 0, err
	}
	defer release()

	m := &metrics.RunMetrics{}
	manager := pathretention.NewManager(
		pathretention.WithWorkers(settings.DeleteWorkers),
		pathretention.WithDryRun(dryRun),
		pathretention.WithClock(r.now),
		pathretention.WithMetrics(m),
	)
	plog.Info("Starting prune", "target", target, "retentionDays", settings.RetentionDays, "dryRun", dryRun)
	n, err := manager.Apply(ctx, target, settings.RetentionDays, "")
	if err != nil {
		return n, err
	}
	plog.Info("Prune completed", "deleted", m.SnapshotsPruned.Load())
	return n, nil
}
