package config

import (
	"fmt"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Mode selects the backup policy applied for a run.
type Mode int

const (
	// CopyMode mirrors sources into the target and never deletes anything.
	CopyMode Mode = iota
	// SyncMode mirrors sources and removes target entries that vanished from the source.
	SyncMode
	// IsolatedMode writes a fresh dated snapshot per run and prunes old snapshots.
	IsolatedMode
)

var modeToString = map[Mode]string{
	CopyMode:     "copy",
	SyncMode:     "sync",
	IsolatedMode: "isolated",
}
var stringToMode map[string]Mode

func init() {
	stringToMode = util.InvertMap(modeToString)
}

// String returns the string representation of a Mode.
func (m Mode) String() string {
	if str, ok := modeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_mode(%d)", m)
}

// ParseMode parses a case-insensitive string and returns the corresponding Mode.
func ParseMode(s string) (Mode, error) {
	if mode, ok := stringToMode[strings.ToLower(strings.TrimSpace(s))]; ok {
		return mode, nil
	}
	return 0, errors.Errorf("invalid mode: %q. Must be 'copy', 'sync' or 'isolated'", s)
}

// MarshalYAML implements the yaml.Marshaler interface for Mode.
func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Mode.
func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.Errorf("mode should be a string, got %q", value.Value)
	}
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
