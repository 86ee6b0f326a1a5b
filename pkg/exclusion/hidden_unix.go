//go:build !windows

package exclusion

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// IsHidden reports whether the entry carries the hidden attribute. On Unix-like
// systems that is the dot-prefix naming convention.
func IsHidden(absPath string, info fs.FileInfo) bool {
	name := filepath.Base(absPath)
	if info != nil {
		name = info.Name()
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
