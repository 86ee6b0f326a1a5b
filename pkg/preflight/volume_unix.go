//go:build !windows

package preflight

import (
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

// mountRoots are directories whose children are expected to be mount points of
// removable or network volumes.
var mountRoots = []string{"/mnt", "/media", "/run/media", "/Volumes"}

// validateVolume guards against "ghost" targets: when the target lies on a volume
// below one of the mount roots and that volume is not mounted, the backup would
// silently fill the system disk instead.
func validateVolume(path string) error {
	for _, root := range mountRoots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		mountPoint := filepath.Join(root, strings.SplitN(rel, string(filepath.Separator), 2)[0])
		if _, err := os.Stat(mountPoint); os.IsNotExist(err) {
			return errors.Errorf("volume %s is not mounted. Ensure the drive is connected", mountPoint)
		}
		mounted, err := IsMountPoint(mountPoint)
		if err != nil {
			return errors.Errorf("cannot check mount point %s: %w", mountPoint, err)
		}
		if !mounted {
			return errors.Errorf("path '%s' is on the same filesystem as %s. Ensure your external drive is mounted", path, root)
		}
		return nil
	}
	return nil
}

// IsMountPoint reports whether path is on a different device than its parent.
func IsMountPoint(path string) (bool, error) {
	parent := filepath.Dir(path)
	if parent == path {
		return true, nil
	}
	var st, parentSt unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, err
	}
	if err := unix.Stat(parent, &parentSt); err != nil {
		return false, err
	}
	return st.Dev != parentSt.Dev, nil
}
