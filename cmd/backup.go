package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/engine"
	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// settingsFlags are the per-run overrides of the configuration file. Only flags
// the user set are applied.
type settingsFlags struct {
	sources         []string
	target          string
	mode            string
	excludeDirs     []string
	excludeTypes    []string
	ignoreHidden    bool
	retentionDays   int
	retry           bool
	minWriteWaitMS  int
	maxErrorsPerDir int
	deleteWorkers   int
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVarP(&f.sources, "source", "s", nil, "source directory, may be repeated")
	fs.StringVarP(&f.target, "target", "t", "", "target directory")
	fs.StringVarP(&f.mode, "mode", "m", "", "backup mode: copy, sync or isolated")
	fs.StringSliceVar(&f.excludeDirs, "exclude-dir", nil, "directory name or pattern to skip, may be repeated")
	fs.StringSliceVar(&f.excludeTypes, "exclude-type", nil, "file extension to skip, may be repeated")
	fs.BoolVar(&f.ignoreHidden, "ignore-hidden", true, "skip hidden files and directories")
	fs.IntVar(&f.retentionDays, "retention-days", 0, "delete isolated snapshots older than this many days (0 keeps all)")
	fs.BoolVar(&f.retry, "retry", true, "retry files that failed during the traversal")
	fs.IntVar(&f.minWriteWaitMS, "min-write-wait-ms", 0, "skip files modified less than this many milliseconds ago")
	fs.IntVar(&f.maxErrorsPerDir, "max-errors-per-dir", 0, "abort when a single directory yields more failures than this")
	fs.IntVar(&f.deleteWorkers, "delete-workers", 0, "number of concurrent snapshot deletions")
}

// apply overrides settings with every flag the user set on cmd.
func (f *settingsFlags) apply(cmd *cobra.Command, settings *config.Settings) error {
	fs := cmd.Flags()
	if fs.Changed("source") {
		settings.Sources = f.sources
	}
	if fs.Changed("target") {
		settings.Target = f.target
	}
	if fs.Changed("mode") {
		mode, err := config.ParseMode(f.mode)
		if err != nil {
			return err
		}
		settings.Mode = mode
	}
	if fs.Changed("exclude-dir") {
		settings.ExcludeDirs = f.excludeDirs
	}
	if fs.Changed("exclude-type") {
		settings.ExcludeFileTypes = f.excludeTypes
	}
	if fs.Changed("ignore-hidden") {
		settings.IgnoreHidden = f.ignoreHidden
	}
	if fs.Changed("retention-days") {
		settings.RetentionDays = f.retentionDays
	}
	if fs.Changed("retry") {
		settings.RetryEnabled = f.retry
	}
	if fs.Changed("min-write-wait-ms") {
		settings.MinWriteWaitMS = f.minWriteWaitMS
	}
	if fs.Changed("max-errors-per-dir") {
		settings.MaxErrorsPerDir = f.maxErrorsPerDir
	}
	if fs.Changed("delete-workers") {
		settings.DeleteWorkers = f.deleteWorkers
	}
	return nil
}

func newBackupCmd(opts *rootOpts) *cobra.Command {
	flags := &settingsFlags{}
	var progress time.Duration
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run a backup task",
		Long: `Run a backup task with the settings from the configuration file.
Flags override individual settings for this run only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.loadSettings()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, &settings); err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return err
			}
			settings.LogSummary()

			runner := engine.NewRunner(engine.WithProgress(progress))
			res, err := runner.Run(cmd.Context(), settings)
			if hints.IsHint(err) {
				plog.Info("Run skipped", "reason", err)
				return nil
			}
			printSummary(cmd.OutOrStdout(), res, err)
			if err != nil {
				return err
			}
			return res.Err()
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&progress, "progress", 0, "log progress at this interval (0 disables)")
	return cmd
}
