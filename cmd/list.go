package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/metafile"
	"github.com/paulschiretz/pgl-mirror/pkg/snapshot"
)

func newListCmd(opts *rootOpts) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the snapshots in the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("target") {
				settings.Target = target
			}
			if settings.Target == "" {
				return errors.New("no target configured, use --target")
			}
			absTarget, err := filepath.Abs(settings.Target)
			if err != nil {
				return errors.Errorf("could not resolve target %s: %w", settings.Target, err)
			}

			entries, err := snapshot.List(absTarget)
			if err != nil {
				return errors.Errorf("failed to list snapshots in %s: %w", absTarget, err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No snapshots found in %s\n", absTarget)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tAGE\tRUN ID")
			now := time.Now()
			for _, e := range entries {
				runID := "-"
				if meta, err := metafile.Read(e.Path); err == nil {
					runID = meta.RunID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, now.Sub(e.Timestamp).Round(time.Minute), runID)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d snapshot(s)\n", len(entries))
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "target directory")
	return cmd
}
