//go:build windows

package exclusion

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/windows"
)

// IsHidden reports whether the entry carries FILE_ATTRIBUTE_HIDDEN.
func IsHidden(absPath string, info fs.FileInfo) bool {
	if info != nil {
		if data, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
			return data.FileAttributes&windows.FILE_ATTRIBUTE_HIDDEN != 0
		}
	}
	p, err := windows.UTF16PtrFromString(absPath)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false
	}
	return attrs&windows.FILE_ATTRIBUTE_HIDDEN != 0
}
