// Package preflight provides the checks that run before a backup starts. Apart
// from creating the target directory and probing it with a temporary file, the
// checks do not change the filesystem.
package preflight

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// ErrPreflight is wrapped by every failed check.
var ErrPreflight = errors.Base("preflight check failed")

// checkError marks a failed check as ErrPreflight while keeping its cause.
type checkError struct {
	err error
}

func (e *checkError) Error() string        { return "preflight check failed: " + e.err.Error() }
func (e *checkError) Unwrap() error        { return e.err }
func (e *checkError) Is(target error) bool { return target == ErrPreflight }

// Run performs the checks selected by plan. sources and target must be absolute.
func Run(plan Plan, sources []string, target string) error {
	if plan.SourceAccessible {
		for _, src := range sources {
			if err := CheckSourceAccessible(src); err != nil {
				return &checkError{err: err}
			}
		}
	}
	if plan.TargetAccessible {
		if err := CheckTargetAccessible(target); err != nil {
			return &checkError{err: err}
		}
	}
	if plan.PathNesting {
		if err := CheckPathNesting(sources, target); err != nil {
			return &checkError{err: err}
		}
	}
	if plan.TargetWritable {
		if err := CheckTargetWritable(target); err != nil {
			return &checkError{err: err}
		}
	}
	if plan.FreeSpace {
		free, err := FreeSpace(target)
		switch {
		case err != nil:
			plog.Debug("Could not determine free space", "path", target, "error", err)
		case free < uint64(plan.MinFreeSpaceMB)*1024*1024:
			plog.Warn("Target volume is low on free space",
				"path", target,
				"free", util.ByteCountIEC(int64(free)),
				"threshold", util.ByteCountIEC(int64(plan.MinFreeSpaceMB)*1024*1024))
		}
	}
	return nil
}

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("source directory %s does not exist", srcPath)
		}
		return errors.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !info.IsDir() {
		return errors.Errorf("source path %s is not a directory", srcPath)
	}
	if _, err := os.ReadDir(srcPath); err != nil {
		return errors.Errorf("source directory %s is not readable: %w", srcPath, err)
	}
	return nil
}

// CheckTargetAccessible verifies that the target is an existing directory or can be
// created below an accessible parent, and that the volume it lives on is present.
func CheckTargetAccessible(targetPath string) error {
	if err := validateVolume(targetPath); err != nil {
		return err
	}

	info, err := os.Stat(targetPath)
	if err == nil {
		if !info.IsDir() {
			return errors.Errorf("target path exists but is not a directory: %s", targetPath)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Errorf("cannot access target path: %w", err)
	}

	// The target will be created, so its deepest existing ancestor must be usable.
	ancestor := filepath.Dir(targetPath)
	for {
		_, err := os.Stat(ancestor)
		if err == nil {
			break
		}
		if !os.IsNotExist(err) {
			return errors.Errorf("cannot access ancestor directory %s: %w", ancestor, err)
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return errors.Errorf("no existing ancestor for target path %s", targetPath)
		}
		ancestor = parent
	}
	return nil
}

// CheckPathNesting rejects configurations where the target lies inside a source
// or a source inside the target, since the walk would then copy its own output.
func CheckPathNesting(sources []string, target string) error {
	for _, src := range sources {
		if util.IsNested(src, target) {
			return errors.Errorf("target %s is inside source %s", target, src)
		}
		if util.IsNested(target, src) {
			return errors.Errorf("source %s is inside target %s", src, target)
		}
	}
	return nil
}

// CheckTargetWritable creates the target directory if needed and probes it with a
// temporary file.
func CheckTargetWritable(targetPath string) error {
	if err := os.MkdirAll(targetPath, util.UserWritableDirPerms); err != nil {
		return errors.Errorf("failed to create target directory %s: %w", targetPath, err)
	}
	f, err := os.CreateTemp(targetPath, ".~pgl-mirror-writetest-*.tmp")
	if err != nil {
		return errors.Errorf("target directory %s is not writable: %w", targetPath, err)
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return nil
}

// FreeSpace returns the bytes available to the current user on the volume of path.
func FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, errors.Errorf("failed to query disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}
