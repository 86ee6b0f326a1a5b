// Package exclusion holds the pure predicates that decide which files and
// directories are left out of a backup: excluded directory names, excluded
// file extensions and, when configured, hidden entries.
package exclusion

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	// dirLiterals are lower-cased directory names matched exactly.
	dirLiterals map[string]struct{}
	// dirPatterns are lower-cased doublestar patterns matched against the directory name.
	dirPatterns []string
	// fileTypes are lower-cased extensions without the leading dot.
	fileTypes    map[string]struct{}
	ignoreHidden bool
}

// NewFilter builds a Filter. Directory entries containing glob metacharacters are
// treated as patterns; all other entries are literal names. Extensions may be given
// with or without a leading dot.
func NewFilter(excludeDirs, excludeFileTypes []string, ignoreHidden bool) *Filter {
	f := &Filter{
		dirLiterals:  make(map[string]struct{}, len(excludeDirs)),
		fileTypes:    make(map[string]struct{}, len(excludeFileTypes)),
		ignoreHidden: ignoreHidden,
	}
	for _, d := range excludeDirs {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if strings.ContainsAny(d, "*?[{") {
			f.dirPatterns = append(f.dirPatterns, d)
		} else {
			f.dirLiterals[d] = struct{}{}
		}
	}
	for _, ext := range excludeFileTypes {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			f.fileTypes[ext] = struct{}{}
		}
	}
	return f
}

// IgnoreHidden reports whether hidden entries are excluded.
func (f *Filter) IgnoreHidden() bool {
	return f.ignoreHidden
}

// IsFileTypeExcluded reports whether the file's extension is in the excluded set.
// Files without an extension are never excluded by type.
func (f *Filter) IsFileTypeExcluded(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return false
	}
	_, ok := f.fileTypes[strings.ToLower(ext)]
	return ok
}

// IsFileExcluded reports whether a file is excluded by type or, when hidden entries
// are ignored, because it or one of its ancestors is hidden.
func (f *Filter) IsFileExcluded(absPath string, info fs.FileInfo, inheritedHidden bool) bool {
	if f.IsFileTypeExcluded(filepath.Base(absPath)) {
		return true
	}
	return f.ignoreHidden && (inheritedHidden || IsHidden(absPath, info))
}

// IsDirectoryExcluded reports whether the directory name is excluded.
func (f *Filter) IsDirectoryExcluded(name string) bool {
	name = strings.ToLower(name)
	if _, ok := f.dirLiterals[name]; ok {
		return true
	}
	for _, p := range f.dirPatterns {
		match, err := doublestar.Match(p, name)
		if err != nil {
			plog.Warn("Invalid exclusion pattern", "pattern", p, "error", err)
			continue
		}
		if match {
			return true
		}
	}
	return false
}

// IsDirectoryHidden returns the effective hidden status of a directory. Hiddenness
// is inherited: once an ancestor is hidden, everything beneath it is hidden.
func (f *Filter) IsDirectoryHidden(absPath string, info fs.FileInfo, inheritedHidden bool) bool {
	return inheritedHidden || IsHidden(absPath, info)
}
