package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/paulschiretz/pgl-mirror/pkg/engine"
)

// printSummary writes a single coloured status line for a finished run.
func printSummary(w io.Writer, res engine.Result, err error) {
	var status string
	switch {
	case err != nil:
		status = color.RedString("✗ failed")
	case res.Errors > 0:
		status = color.YellowString("! completed with %d unresolved", res.Errors)
	default:
		status = color.GreenString("✓ completed")
	}
	fmt.Fprintf(w, "%s  mode=%s copied=%d duration=%s\n", status, res.Mode, res.FilesCopied, res.Duration)
	if res.SnapshotDir != "" {
		fmt.Fprintf(w, "  snapshot: %s\n", res.SnapshotDir)
	}
	if err != nil {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
}
