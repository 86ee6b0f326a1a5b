//go:build !windows

package pathcopy

import (
	"os"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

func isPathTooLong(err error) bool {
	return errors.Is(err, unix.ENAMETOOLONG)
}

// clearReadOnly gives the owner write access to an existing target file.
func clearReadOnly(absPath string, info os.FileInfo) error {
	perm := info.Mode().Perm()
	if perm&util.PermUserWrite != 0 {
		return nil
	}
	return os.Chmod(absPath, util.WithUserWritePermission(perm))
}
