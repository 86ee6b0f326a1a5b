package pathsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/exclusion"
	"github.com/paulschiretz/pgl-mirror/pkg/pathcopy"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Walker performs the traversal pass of a run.
type Walker struct {
	copier          *pathcopy.Copier
	filter          *exclusion.Filter
	maxErrorsPerDir int
	options
}

// NewWalker creates a Walker. A directory that yields more than maxErrorsPerDir
// failures aborts the walk with ErrExcessiveErrors.
func NewWalker(copier *pathcopy.Copier, filter *exclusion.Filter, maxErrorsPerDir int, opts ...Option) *Walker {
	if filter == nil {
		filter = exclusion.NewFilter(nil, nil, false)
	}
	return &Walker{
		copier:          copier,
		filter:          filter,
		maxErrorsPerDir: maxErrorsPerDir,
		options:         newOptions(opts),
	}
}

// Walk mirrors absSrcDir into absTargetRoot/relSubDir and returns the number of
// files copied. Files of a directory are handled before its subdirectories.
// Failures are added to queue; only a tripped circuit breaker or a cancelled
// context end the walk early.
//
// absSrcDir itself is always walked. Exclusion and hidden rules apply to the
// directories below it.
func (w *Walker) Walk(ctx context.Context, absSrcDir, relSubDir, absTargetRoot string, queue *ErrorQueue) (int, error) {
	count, err := w.walkDir(ctx, absSrcDir, relSubDir, absTargetRoot, false, queue)
	if errors.Is(err, errDirUnreadable) {
		return count, nil
	}
	return count, err
}

func (w *Walker) walkDir(ctx context.Context, absDir, relDir, absTargetRoot string, hidden bool, queue *ErrorQueue) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	absTrgDir := filepath.Join(absTargetRoot, relDir)
	entries, err := os.ReadDir(absDir)
	if err != nil {
		queue.Add(DeferredError{
			SourceFile: absDir,
			RelSubDir:  relDir,
			TargetDir:  absTrgDir,
			IsDir:      true,
			Outcome:    pathcopy.Exception,
			Err:        err,
			FailedAt:   w.now(),
		})
		w.sink(EventDirUnreadable, fmt.Sprintf("%s: %v", absDir, err))
		return 0, errDirUnreadable
	}

	count := 0
	dirErrors := 0
	fail := func(e DeferredError) error {
		queue.Add(e)
		dirErrors++
		if dirErrors > w.maxErrorsPerDir {
			w.sink(EventExcessiveErrors, absDir)
			return errors.Errorf("%w: %d failures in %s", ErrExcessiveErrors, dirErrors, absDir)
		}
		return nil
	}

	var subDirs []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			subDirs = append(subDirs, entry)
			continue
		}
		absFile := filepath.Join(absDir, entry.Name())
		outcome, err := w.copier.DecideAndCopy(absFile, absTrgDir, hidden)
		switch outcome {
		case pathcopy.OK:
			count++
			w.metrics.AddFilesCopied(1)
			w.sink(EventCopied, util.NormalizePath(filepath.Join(relDir, entry.Name())))
		case pathcopy.AlreadyBackedUp:
			w.metrics.AddFilesUpToDate(1)
		case pathcopy.Ineligible:
			w.metrics.AddFilesExcluded(1)
		default:
			w.sink(EventDeferred, fmt.Sprintf("%s: %s: %v", outcome, absFile, err))
			if ferr := fail(DeferredError{
				SourceFile:      absFile,
				RelSubDir:       relDir,
				TargetDir:       absTrgDir,
				InheritedHidden: hidden,
				Outcome:         outcome,
				Err:             err,
				FailedAt:        w.now(),
			}); ferr != nil {
				return count, ferr
			}
		}
	}

	for _, entry := range subDirs {
		name := entry.Name()
		absSub := filepath.Join(absDir, name)
		relSub := filepath.Join(relDir, name)
		if w.filter.IsDirectoryExcluded(name) {
			w.metrics.AddDirsExcluded(1)
			w.sink(EventDirExcluded, util.NormalizePath(relSub))
			continue
		}
		// A nil info makes the hidden check fall back to the path.
		info, err := entry.Info()
		if os.IsNotExist(err) {
			continue
		}
		subHidden := w.filter.IsDirectoryHidden(absSub, info, hidden)
		if subHidden && w.filter.IgnoreHidden() {
			w.metrics.AddDirsExcluded(1)
			w.sink(EventDirExcluded, util.NormalizePath(relSub))
			continue
		}

		n, err := w.walkDir(ctx, absSub, relSub, absTargetRoot, subHidden, queue)
		count += n
		switch {
		case err == nil:
		case errors.Is(err, errDirUnreadable):
			// Already queued by the child; it counts against this directory.
			dirErrors++
			if dirErrors > w.maxErrorsPerDir {
				w.sink(EventExcessiveErrors, absDir)
				return count, errors.Errorf("%w: %d failures in %s", ErrExcessiveErrors, dirErrors, absDir)
			}
		default:
			return count, err
		}
	}
	return count, nil
}
