// Package cmd implements the pgl-mirror command line.
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// Log file rotation limits used when a log file is configured.
const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
)

// rootOpts holds the flags shared by every command.
type rootOpts struct {
	configFile string
	logLevel   string
	logFile    string
	quiet      bool

	logCloser io.Closer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOpts{}
	cmd := &cobra.Command{
		Use:   "pgl-mirror",
		Short: "Mirror directories into a backup target",
		Long: `pgl-mirror copies one or more source directories into a target directory.

Modes:
  copy      add and update files, never delete
  sync      like copy, and remove files that vanished from the source
  isolated  write every run into its own dated snapshot`,
		Version:       buildinfo.Describe(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return opts.closeLog()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", config.ConfigFileName, "path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides the config file)")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write a rotated JSON log to this file")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(
		newBackupCmd(opts),
		newInitCmd(opts),
		newPruneCmd(opts),
		newListCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command line with ctx and returns the first error.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// loadSettings reads the configuration file and applies the logging flags.
func (o *rootOpts) loadSettings() (config.Settings, error) {
	settings, err := config.Load(o.configFile)
	if err != nil {
		return config.Settings{}, errors.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		settings.LogLevel = o.logLevel
	}
	if o.logFile != "" {
		settings.LogFile = o.logFile
	}
	o.setupLogging(settings)
	return settings, nil
}

func (o *rootOpts) setupLogging(settings config.Settings) {
	plog.SetLevel(plog.LevelFromString(settings.LogLevel))
	plog.SetQuiet(o.quiet)
	if settings.LogFile != "" && o.logCloser == nil {
		o.logCloser = plog.SetLogFile(settings.LogFile, logFileMaxSizeMB, logFileMaxBackups)
	}
}

func (o *rootOpts) closeLog() error {
	if o.logCloser == nil {
		return nil
	}
	err := o.logCloser.Close()
	o.logCloser = nil
	return err
}
