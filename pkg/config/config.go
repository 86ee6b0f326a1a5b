package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// ConfigFileName is the default name of the configuration file.
const ConfigFileName = "pgl-mirror.yaml"

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.Base("invalid settings")

// Settings is the fully resolved configuration for one run. It is treated as
// immutable once a run has started.
type Settings struct {
	Version string `yaml:"version"`

	Sources []string `yaml:"sources"`
	Target  string   `yaml:"target"`
	Mode    Mode     `yaml:"mode"`

	// ExcludeDirs holds case-insensitive directory names. Entries containing
	// glob metacharacters are matched as patterns against the directory name.
	ExcludeDirs []string `yaml:"excludeDirs"`
	// ExcludeFileTypes holds case-insensitive extensions; a leading dot is optional.
	ExcludeFileTypes []string `yaml:"excludeFileTypes"`
	IgnoreHidden     bool     `yaml:"ignoreHidden"`

	// RetentionDays is only used in isolated mode. 0 disables pruning.
	RetentionDays int `yaml:"retentionDays"`

	RetryEnabled    bool `yaml:"retryEnabled"`
	RetryIntervalMS int  `yaml:"retryIntervalMS"`
	RetryBudgetMS   int  `yaml:"retryBudgetMS"`
	MinWriteWaitMS  int  `yaml:"minWriteWaitMS"`
	MaxErrorsPerDir int  `yaml:"maxErrorsPerDir"`

	DeleteWorkers  int `yaml:"deleteWorkers"`
	MinFreeSpaceMB int `yaml:"minFreeSpaceMB"`

	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile,omitempty"`
}

// NewDefault creates and returns a Settings value with sensible defaults.
// Sources and Target are left empty, so the result is not valid on its own.
func NewDefault() Settings {
	return Settings{
		Version:          buildinfo.Version,
		Mode:             CopyMode,
		ExcludeDirs:      []string{},
		ExcludeFileTypes: []string{},
		IgnoreHidden:     true,
		RetentionDays:    0,
		RetryEnabled:     true,
		RetryIntervalMS:  500,
		RetryBudgetMS:    3000,
		MinWriteWaitMS:   500,
		MaxErrorsPerDir:  3,
		DeleteWorkers:    1,
		MinFreeSpaceMB:   1024,
		LogLevel:         "info",
	}
}

// MinWriteWait returns the quiescence window as a duration.
func (s Settings) MinWriteWait() time.Duration {
	return time.Duration(s.MinWriteWaitMS) * time.Millisecond
}

// RetryInterval returns the pause between retry sweeps.
func (s Settings) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalMS) * time.Millisecond
}

// RetryBudget returns the wall-clock budget of the retry loop.
func (s Settings) RetryBudget() time.Duration {
	return time.Duration(s.RetryBudgetMS) * time.Millisecond
}

// Load reads a YAML settings file. If the file doesn't exist, it returns the
// defaults without an error. Fields missing from the file keep their default.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return Settings{}, errors.Errorf("error reading config file %s: %w", path, err)
	}

	plog.Info("Loading configuration", "path", path)
	settings := NewDefault()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil {
		return Settings{}, errors.Errorf("error parsing config file %s: %w", path, err)
	}
	settings.Version = buildinfo.Version
	return settings, nil
}

// Save writes the settings as YAML to path, creating the parent directory if needed.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return errors.Errorf("could not create config directory for %s: %w", path, err)
	}
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(s); err != nil {
		return errors.Errorf("could not marshal config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return errors.Errorf("could not marshal config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), util.UserWritableFilePerms); err != nil {
		return errors.Errorf("could not write config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings for logical errors. A Settings value that fails
// validation must never reach the backup engine.
func (s Settings) Validate() error {
	if len(s.Sources) == 0 {
		return errors.Errorf("%w: at least one source directory is required", ErrInvalidSettings)
	}
	if strings.TrimSpace(s.Target) == "" {
		return errors.Errorf("%w: target directory cannot be empty", ErrInvalidSettings)
	}

	// Every source mirrors to <target>/<base name>, so base names must be unique.
	// Names differing only in case collide where the host folds case.
	seen := make(map[string]string, len(s.Sources))
	for _, src := range s.Sources {
		if strings.TrimSpace(src) == "" {
			return errors.Errorf("%w: source directory cannot be empty", ErrInvalidSettings)
		}
		base := filepath.Base(filepath.Clean(src))
		if util.IsHostCaseInsensitiveFS() {
			base = strings.ToLower(base)
		}
		if prev, ok := seen[base]; ok {
			return errors.Errorf("%w: sources %q and %q share the directory name %q", ErrInvalidSettings, prev, src, base)
		}
		seen[base] = src
	}

	if _, ok := modeToString[s.Mode]; !ok {
		return errors.Errorf("%w: unknown mode %d", ErrInvalidSettings, s.Mode)
	}

	numeric := []struct {
		name  string
		value int
	}{
		{"retentionDays", s.RetentionDays},
		{"retryIntervalMS", s.RetryIntervalMS},
		{"retryBudgetMS", s.RetryBudgetMS},
		{"minWriteWaitMS", s.MinWriteWaitMS},
		{"maxErrorsPerDir", s.MaxErrorsPerDir},
		{"minFreeSpaceMB", s.MinFreeSpaceMB},
	}
	for _, n := range numeric {
		if n.value < 0 {
			return errors.Errorf("%w: %s cannot be negative (got %d)", ErrInvalidSettings, n.name, n.value)
		}
	}
	if s.DeleteWorkers < 1 {
		return errors.Errorf("%w: deleteWorkers must be at least 1 (got %d)", ErrInvalidSettings, s.DeleteWorkers)
	}

	for _, p := range s.ExcludeDirs {
		if !doublestar.ValidatePattern(strings.ToLower(p)) {
			return errors.Errorf("%w: invalid pattern in excludeDirs: %q", ErrInvalidSettings, p)
		}
	}
	return nil
}

// LogSummary prints a user-friendly summary of the settings.
func (s Settings) LogSummary() {
	plog.Info("Configuration",
		"sources", strings.Join(s.Sources, ", "),
		"target", s.Target,
		"mode", s.Mode,
		"ignoreHidden", s.IgnoreHidden,
		"retry", s.RetryEnabled,
	)
	if len(s.ExcludeDirs) > 0 || len(s.ExcludeFileTypes) > 0 {
		plog.Info("Exclusions",
			"dirs", strings.Join(s.ExcludeDirs, ", "),
			"fileTypes", strings.Join(s.ExcludeFileTypes, ", "),
		)
	}
	if s.Mode == IsolatedMode {
		if s.RetentionDays > 0 {
			plog.Info("Retention", "days", s.RetentionDays)
		} else {
			plog.Info("Retention disabled")
		}
	}
}
