// Package snapshot names the dated directories written by isolated runs.
//
// A snapshot is named after the local start time of its run, "2006-01-02 150405"
// in Go layout terms. When a directory with that name already exists a numeric
// suffix is appended ("-1", "-2", ...) until the name is free.
package snapshot

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Layout is the time layout of a snapshot directory name.
const Layout = "2006-01-02 150405"

// maxSuffix bounds the collision search.
const maxSuffix = 10000

var namePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{6})(?:-([1-9]\d*))?$`)

// FormatName returns the base snapshot name for t.
func FormatName(t time.Time) string {
	return t.Format(Layout)
}

// NextName returns the first snapshot name for t that does not exist yet in absTargetRoot.
func NextName(absTargetRoot string, t time.Time) (string, error) {
	base := FormatName(t)
	name := base
	for i := 1; i <= maxSuffix; i++ {
		_, err := os.Lstat(filepath.Join(absTargetRoot, name))
		if os.IsNotExist(err) {
			return name, nil
		}
		if err != nil {
			return "", errors.Errorf("failed to check snapshot name %q: %w", name, err)
		}
		name = base + "-" + strconv.Itoa(i)
	}
	return "", errors.Errorf("no free snapshot name for %q in %s", base, absTargetRoot)
}

// ParseName recovers the timestamp encoded in a snapshot directory name. Names that
// are not snapshot names, such as mirrored source directories, yield false.
func ParseName(name string) (time.Time, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(Layout, m[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Entry is one snapshot directory found under a target root.
type Entry struct {
	Name      string
	Path      string
	Timestamp time.Time
}

// List returns the snapshot directories directly below absTargetRoot, oldest first.
// Entries that are not directories or whose names do not parse are ignored.
func List(absTargetRoot string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(absTargetRoot)
	if err != nil {
		return nil, errors.Errorf("failed to read target directory %s: %w", absTargetRoot, err)
	}
	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		ts, ok := ParseName(de.Name())
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Name:      de.Name(),
			Path:      filepath.Join(absTargetRoot, de.Name()),
			Timestamp: ts,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}
