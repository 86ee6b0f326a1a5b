package engine

import (
	"context"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/metafile"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/snapshot"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// strategy is the per-mode part of a run. mirror runs before the retry pass,
// finish after it.
type strategy interface {
	mirror(ctx context.Context, st *run) error
	finish(ctx context.Context, st *run) error
}

func strategyFor(mode config.Mode) strategy {
	switch mode {
	case config.SyncMode:
		return syncStrategy{}
	case config.IsolatedMode:
		return isolatedStrategy{}
	default:
		return copyStrategy{}
	}
}

// copyStrategy adds and updates files, it never deletes.
type copyStrategy struct{}

func (copyStrategy) mirror(ctx context.Context, st *run) error {
	return st.walkSources(ctx, "")
}

func (copyStrategy) finish(context.Context, *run) error { return nil }

// syncStrategy mirrors like copy mode, then removes target entries that no
// longer exist in their source. Entries that changed between file and directory
// are removed before the walk so they can be copied again.
type syncStrategy struct{}

func (syncStrategy) mirror(ctx context.Context, st *run) error {
	for _, src := range st.sources {
		trg := filepath.Join(st.target, filepath.Base(src))
		n, err := st.pruner.PruneMismatched(ctx, src, trg)
		if err != nil {
			return err
		}
		if n > 0 {
			plog.Info("Removed entries whose type changed in the source", "target", trg, "deleted", n)
		}
	}
	if err := st.walkSources(ctx, ""); err != nil {
		return err
	}
	unreadable := st.queue.UnreadableDirs()
	for _, src := range st.sources {
		trg := filepath.Join(st.target, filepath.Base(src))
		plog.Info("Removing entries missing from source", "source", src, "target", trg)
		n, err := st.pruner.Prune(ctx, src, trg, unreadable)
		if err != nil {
			return err
		}
		plog.Debug("Deletion phase finished", "target", trg, "deleted", n)
	}
	return nil
}

func (syncStrategy) finish(context.Context, *run) error { return nil }

// isolatedStrategy writes each run into its own dated snapshot and prunes
// snapshots past the retention window.
type isolatedStrategy struct{}

func (isolatedStrategy) mirror(ctx context.Context, st *run) error {
	name, err := snapshot.NextName(st.target, st.now())
	if err != nil {
		return err
	}
	dir := filepath.Join(st.target, name)
	if err := os.Mkdir(dir, util.UserWritableDirPerms); err != nil {
		return errors.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	st.snapshot = dir
	meta := metafile.Content{
		Version:      buildinfo.Version,
		RunID:        st.id,
		TimestampUTC: st.now().UTC(),
		Mode:         st.settings.Mode.String(),
		Sources:      st.sources,
	}
	if err := metafile.Write(dir, meta); err != nil {
		return err
	}
	plog.Info("Created snapshot", "name", name)
	return st.walkSources(ctx, name)
}

func (isolatedStrategy) finish(ctx context.Context, st *run) error {
	n, err := st.retention.Apply(ctx, st.target, st.settings.RetentionDays, filepath.Base(st.snapshot))
	switch {
	case hints.IsHint(err):
		plog.Debug("Skipping retention", "reason", err)
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		plog.Warn("Retention failed, old snapshots were kept", "deleted", n, "error", err)
	case n > 0:
		plog.Info("Retention finished", "deleted", n)
	}
	return nil
}
