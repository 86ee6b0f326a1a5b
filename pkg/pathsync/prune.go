package pathsync

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/exclusion"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Pruner removes target entries whose source counterpart no longer exists or
// has changed between file and directory.
type Pruner struct {
	filter *exclusion.Filter
	options
}

// NewPruner creates a Pruner. Entries the filter excludes are never deleted.
func NewPruner(filter *exclusion.Filter, opts ...Option) *Pruner {
	if filter == nil {
		filter = exclusion.NewFilter(nil, nil, false)
	}
	return &Pruner{filter: filter, options: newOptions(opts)}
}

// Prune walks absTrgDir, the mirror of absSrcDir, and deletes every entry that is
// missing from the source or whose type no longer matches it. Nothing outside
// absTrgDir is touched. Source directories listed in unreadable, and everything
// below them, are left alone. It returns the number of deleted entries; failed
// deletions are reported to the sink and do not stop the pass.
func (p *Pruner) Prune(ctx context.Context, absSrcDir, absTrgDir string, unreadable []string) (int, error) {
	return p.prune(ctx, absSrcDir, absTrgDir, unreadable, false)
}

// PruneMismatched deletes only the entries of absTrgDir whose source counterpart
// exists as a different type: a directory where the source has a file, or a file
// where the source has a directory. Run before the walk, it lets the copy pass
// recreate those entries.
func (p *Pruner) PruneMismatched(ctx context.Context, absSrcDir, absTrgDir string) (int, error) {
	return p.prune(ctx, absSrcDir, absTrgDir, nil, true)
}

func (p *Pruner) prune(ctx context.Context, absSrcDir, absTrgDir string, unreadable []string, mismatchOnly bool) (int, error) {
	deleted := 0
	remove := func(path, rel string, isDir bool) {
		if err := os.RemoveAll(path); err != nil {
			p.sink(EventDeleteFailed, fmt.Sprintf("%s: %v", path, err))
			return
		}
		deleted++
		if isDir {
			p.metrics.AddDirsDeleted(1)
		} else {
			p.metrics.AddFilesDeleted(1)
		}
		p.sink(EventDeleted, util.NormalizePath(rel))
	}

	err := filepath.WalkDir(absTrgDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			p.sink(EventDeleteFailed, fmt.Sprintf("%s: %v", path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(absTrgDir, path)
		if err != nil {
			return errors.Errorf("failed to resolve %s relative to %s: %w", path, absTrgDir, err)
		}
		if rel == "." {
			// The mirror root of a source directory must itself be a directory.
			if !d.IsDir() {
				remove(path, filepath.Base(path), false)
			}
			return nil
		}

		if p.keep(path, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		srcPath := filepath.Join(absSrcDir, rel)
		for _, u := range unreadable {
			if util.IsNested(u, srcPath) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		// Only a definite "does not exist" or a type change deletes; any other
		// stat error keeps the entry.
		srcInfo, err := os.Lstat(srcPath)
		switch {
		case err == nil:
			if srcInfo.IsDir() == d.IsDir() {
				return nil
			}
		case os.IsNotExist(err):
			if mismatchOnly {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		default:
			return nil
		}

		remove(path, rel, d.IsDir())
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return deleted, errors.Errorf("deletion phase failed: %w", err)
	}
	return deleted, nil
}

// keep reports whether a target entry is shielded from deletion by the filter.
// Hidden entries below a hidden directory never get here because that directory
// is skipped as a whole.
func (p *Pruner) keep(path string, d fs.DirEntry) bool {
	if d.IsDir() {
		if p.filter.IsDirectoryExcluded(d.Name()) {
			return true
		}
	} else if p.filter.IsFileTypeExcluded(d.Name()) {
		return true
	}
	if !p.filter.IgnoreHidden() {
		return false
	}
	info, _ := d.Info()
	return exclusion.IsHidden(path, info)
}
