// Package metafile records which run produced a snapshot.
//
// The metadata lives next to the snapshot directory, not inside it, so a
// snapshot holds only mirrored files. For a snapshot "2024-01-02_..." the file is
// ".2024-01-02_....meta.json" in the same target root.
package metafile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// MetaFileSuffix ends the name of every metadata file.
const MetaFileSuffix = ".meta.json"

// Content is the data stored in a snapshot's metadata file.
type Content struct {
	Version      string    `json:"version"`
	RunID        string    `json:"runID"`
	TimestampUTC time.Time `json:"timestampUTC"`
	Mode         string    `json:"mode"`
	Sources      []string  `json:"sources"`
}

// Path returns the metadata file of the snapshot at snapshotDir.
func Path(snapshotDir string) string {
	clean := filepath.Clean(snapshotDir)
	return filepath.Join(filepath.Dir(clean), "."+filepath.Base(clean)+MetaFileSuffix)
}

// Write stores content for the snapshot at snapshotDir.
func Write(snapshotDir string, content Content) error {
	path := Path(snapshotDir)
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return errors.Errorf("could not marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
		return errors.Errorf("could not write metafile %s: %w", path, err)
	}
	return nil
}

// Read parses the metadata of the snapshot at snapshotDir. A missing file is
// reported with an error matching os.ErrNotExist.
func Read(snapshotDir string) (Content, error) {
	path := Path(snapshotDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, err
	}
	var content Content
	if err := json.Unmarshal(data, &content); err != nil {
		return Content{}, errors.Errorf("could not parse metafile %s, it may be corrupt: %w", path, err)
	}
	return content, nil
}

// Remove deletes the metadata of the snapshot at snapshotDir. A missing file is
// not an error.
func Remove(snapshotDir string) error {
	path := Path(snapshotDir)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Errorf("could not remove metafile %s: %w", path, err)
	}
	return nil
}
