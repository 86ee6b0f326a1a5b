package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/engine"
	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func newPruneCmd(opts *rootOpts) *cobra.Command {
	var (
		target        string
		retentionDays int
		dryRun        bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete isolated snapshots past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("target") {
				settings.Target = target
			}
			if cmd.Flags().Changed("retention-days") {
				settings.RetentionDays = retentionDays
			}
			// Pruning only makes sense for snapshot targets.
			settings.Mode = config.IsolatedMode

			n, err := engine.NewRunner().Prune(cmd.Context(), settings, dryRun)
			if hints.IsHint(err) {
				plog.Info("Prune skipped", "reason", err)
				return nil
			}
			if err != nil {
				return err
			}
			if !dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d snapshot(s)\n", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "target directory")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "delete snapshots older than this many days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only log what would be deleted")
	return cmd
}
