// Package pathretention deletes isolated snapshots that have outlived the
// configured retention window.
//
// A directory below the target root is a snapshot only if its name parses as a
// snapshot name; the age of a snapshot is taken from that name alone. Mirrored
// source directories and anything else with a non-matching name are never touched.
package pathretention

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/metafile"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/snapshot"
)

// ErrRetentionDisabled is returned as a hint when the retention window is 0.
var ErrRetentionDisabled = hints.New("retention is disabled")

// Manager applies an age based retention window to a target root.
type Manager struct {
	numWorkers int
	dryRun     bool
	now        func() time.Time
	metrics    metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers sets how many snapshots are deleted concurrently. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(m *Manager) { m.numWorkers = max(n, 1) }
}

// WithDryRun makes Apply report the snapshots it would delete without deleting them.
func WithDryRun(dryRun bool) Option {
	return func(m *Manager) { m.dryRun = dryRun }
}

// WithClock replaces time.Now as the reference point for snapshot ages.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics counts pruned snapshots.
func WithMetrics(mt metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a Manager that deletes sequentially by default.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		numWorkers: 1,
		now:        time.Now,
		metrics:    &metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Expired returns the snapshots below absTargetRoot that are older than
// retentionDays, oldest first. The snapshot named exclude is never returned.
func (m *Manager) Expired(absTargetRoot string, retentionDays int, exclude string) ([]snapshot.Entry, error) {
	entries, err := snapshot.List(absTargetRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	window := time.Duration(retentionDays) * 24 * time.Hour
	now := m.now()
	var expired []snapshot.Entry
	for _, e := range entries {
		if e.Name == exclude {
			continue
		}
		if now.Sub(e.Timestamp) > window {
			expired = append(expired, e)
		}
	}
	return expired, nil
}

// Apply deletes every expired snapshot below absTargetRoot except exclude, which
// is the snapshot of the current run. The returned count is valid on failure too.
// A zero retention window returns ErrRetentionDisabled.
func (m *Manager) Apply(ctx context.Context, absTargetRoot string, retentionDays int, exclude string) (int, error) {
	if retentionDays <= 0 {
		return 0, ErrRetentionDisabled
	}

	expired, err := m.Expired(absTargetRoot, retentionDays, exclude)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		plog.Debug("No snapshots need deletion", "retentionDays", retentionDays)
		return 0, nil
	}

	if m.dryRun {
		for _, e := range expired {
			plog.Info("[DRY RUN] DELETE", "snapshot", e.Name, "age", m.now().Sub(e.Timestamp).Round(time.Hour).String())
		}
		return 0, nil
	}

	plog.Info("Deleting outdated snapshots", "count", len(expired), "retentionDays", retentionDays)
	var deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.numWorkers)
	for _, e := range expired {
		if gctx.Err() != nil {
			break
		}
		e := e // per-iteration copy (go directive is 1.21)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plog.Info("DELETE", "snapshot", e.Name)
			if err := os.RemoveAll(e.Path); err != nil {
				return errors.Errorf("failed to delete snapshot %s: %w", e.Path, err)
			}
			if err := metafile.Remove(e.Path); err != nil {
				plog.Warn("Snapshot deleted but its metadata was kept", "snapshot", e.Name, "error", err)
			}
			deleted.Add(1)
			m.metrics.AddSnapshotsPruned(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(deleted.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(deleted.Load()), err
	}
	return int(deleted.Load()), nil
}
