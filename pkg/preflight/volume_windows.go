//go:build windows

package preflight

import (
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/windows"
)

// validateVolume verifies that the drive or network share root of path exists,
// e.g. "Z:\" for "Z:\backup".
func validateVolume(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil
	}
	root := volume
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return errors.Errorf("volume root does not exist: %s. Ensure the drive is connected", root)
	}
	return nil
}

// IsMountPoint reports whether path is the root of a volume.
func IsMountPoint(path string) (bool, error) {
	p, err := windows.UTF16PtrFromString(filepath.Clean(path) + string(filepath.Separator))
	if err != nil {
		return false, err
	}
	buf := make([]uint16, windows.MAX_PATH+1)
	if err := windows.GetVolumePathName(p, &buf[0], uint32(len(buf))); err != nil {
		return false, err
	}
	volRoot := strings.TrimSuffix(windows.UTF16ToString(buf), string(filepath.Separator))
	return strings.EqualFold(volRoot, strings.TrimSuffix(filepath.Clean(path), string(filepath.Separator))), nil
}
