//go:build windows

package pathcopy

import (
	"os"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/windows"
)

func isPathTooLong(err error) bool {
	return errors.Is(err, windows.ERROR_FILENAME_EXCED_RANGE)
}

// clearReadOnly drops FILE_ATTRIBUTE_READONLY so the rename can replace the file.
func clearReadOnly(absPath string, _ os.FileInfo) error {
	p, err := windows.UTF16PtrFromString(absPath)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	if attrs&windows.FILE_ATTRIBUTE_READONLY == 0 {
		return nil
	}
	return windows.SetFileAttributes(p, attrs&^windows.FILE_ATTRIBUTE_READONLY)
}
