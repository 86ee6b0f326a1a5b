// Package pathcopy decides, for one source file, whether it must be copied and
// performs the copy.
//
// A file is identified with its backed-up copy purely by modification time:
// equal timestamps mean the target is current, no content is compared. Files
// modified within the quiescence window are treated as still being written and
// are not read at all.
//
// Copies go through a temporary file in the target directory that is renamed
// over the final name once its content, permissions and timestamps are set, so
// an interrupted copy never leaves a truncated target behind.
package pathcopy

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/exclusion"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/pool"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

const (
	tempFilePattern = ".~pgl-mirror-*.tmp"

	minCopyBuffer = 4 * 1024
	maxCopyBuffer = 1024 * 1024
)

// Copier applies the copy decision to single files. It keeps no per-run state
// besides the injected metrics, so one Copier can serve several runs.
type Copier struct {
	filter       *exclusion.Filter
	minWriteWait time.Duration
	now          func() time.Time
	metrics      metrics.Metrics
	buffers      *pool.CopyBufferPool
}

// Option configures a Copier.
type Option func(*Copier)

// WithClock replaces time.Now for the quiescence check.
func WithClock(now func() time.Time) Option {
	return func(c *Copier) { c.now = now }
}

// WithMetrics makes the copier count written bytes.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *Copier) { c.metrics = m }
}

// NewCopier creates a Copier. A nil filter excludes nothing.
func NewCopier(filter *exclusion.Filter, minWriteWait time.Duration, opts ...Option) *Copier {
	if filter == nil {
		filter = exclusion.NewFilter(nil, nil, false)
	}
	buffers, err := pool.NewCopyBufferPool(minCopyBuffer, maxCopyBuffer)
	if err != nil {
		// Both bounds are constants.
		panic(err)
	}
	c := &Copier{
		filter:       filter,
		minWriteWait: minWriteWait,
		now:          time.Now,
		metrics:      &metrics.NoopMetrics{},
		buffers:      buffers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DecideAndCopy classifies absSrcFile and, when needed, copies it into absTargetDir
// under the same name. inheritedHidden is the effective hidden status of the
// directory the file lives in. For failure outcomes the cause is returned as well.
func (c *Copier) DecideAndCopy(absSrcFile, absTargetDir string, inheritedHidden bool) (Outcome, error) {
	srcInfo, err := os.Lstat(absSrcFile)
	if err != nil {
		return classify(errors.Errorf("failed to stat source file %s: %w", absSrcFile, err))
	}
	// Symlinks, devices, sockets and pipes are never followed or copied.
	if !srcInfo.Mode().IsRegular() {
		return Ineligible, nil
	}
	if c.filter.IsFileExcluded(absSrcFile, srcInfo, inheritedHidden) {
		return Ineligible, nil
	}

	if age := c.now().Sub(srcInfo.ModTime()); age < c.minWriteWait {
		return WriteInProgress, errors.Errorf("%s was modified %s ago", absSrcFile, age.Round(time.Millisecond))
	}

	absTrgFile := filepath.Join(absTargetDir, srcInfo.Name())
	trgInfo, err := os.Lstat(absTrgFile)
	switch {
	case err == nil:
		if trgInfo.Mode().IsRegular() && trgInfo.ModTime().Equal(srcInfo.ModTime()) {
			return AlreadyBackedUp, nil
		}
	case !os.IsNotExist(err):
		return classify(errors.Errorf("failed to stat target file %s: %w", absTrgFile, err))
	}

	if err := c.copyFile(absSrcFile, absTrgFile, srcInfo, trgInfo); err != nil {
		return classify(err)
	}
	return OK, nil
}

func (c *Copier) copyFile(absSrcFile, absTrgFile string, srcInfo, trgInfo os.FileInfo) error {
	in, err := os.Open(absSrcFile)
	if err != nil {
		return errors.Errorf("failed to open source file %s: %w", absSrcFile, err)
	}
	defer in.Close()

	absTrgDir := filepath.Dir(absTrgFile)
	if err := os.MkdirAll(absTrgDir, util.UserWritableDirPerms); err != nil {
		return errors.Errorf("failed to create target directory %s: %w", absTrgDir, err)
	}
	if trgInfo != nil {
		if err := clearReadOnly(absTrgFile, trgInfo); err != nil {
			return errors.Errorf("failed to clear read-only flag on %s: %w", absTrgFile, err)
		}
	}

	out, err := os.CreateTemp(absTrgDir, tempFilePattern)
	if err != nil {
		return errors.Errorf("failed to create temporary file in %s: %w", absTrgDir, err)
	}
	tempPath := out.Name()
	// Cleared after a successful rename.
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	buf := c.buffers.Get(srcInfo.Size())
	defer c.buffers.Put(buf)

	n, err := io.CopyBuffer(out, in, *buf)
	if err != nil {
		out.Close()
		return errors.Errorf("failed to copy content from %s to %s: %w", absSrcFile, tempPath, err)
	}
	if err := out.Chmod(util.WithUserWritePermission(srcInfo.Mode().Perm())); err != nil {
		out.Close()
		return errors.Errorf("failed to set permissions on temporary file %s: %w", tempPath, err)
	}
	// Close flushes and may touch the modification time, so it precedes Chtimes.
	if err := out.Close(); err != nil {
		return errors.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}
	if err := os.Chtimes(tempPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return errors.Errorf("failed to set timestamps on %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, absTrgFile); err != nil {
		return errors.Errorf("failed to move %s into place: %w", absTrgFile, err)
	}
	tempPath = ""
	c.metrics.AddBytesWritten(n)
	return nil
}

// classify maps an I/O failure onto its outcome.
func classify(err error) (Outcome, error) {
	if isPathTooLong(err) {
		return PathTooLong, err
	}
	return Exception, err
}
