package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func newInitCmd(opts *rootOpts) *cobra.Command {
	flags := &settingsFlags{}
	var force, defaults bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: `Write the configuration file named by --config. Settings from an existing
file are kept unless --default is given; flags override individual settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.loadSettings()
			if err != nil {
				plog.Warn("Could not load existing configuration, starting with defaults", "reason", err)
				settings = config.NewDefault()
			}
			if defaults {
				settings = config.NewDefault()
			}
			if err := flags.apply(cmd, &settings); err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return err
			}

			if _, err := os.Stat(opts.configFile); err == nil && !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration file already exists at %s.\n", opts.configFile)
				if !PromptForConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), "Overwrite it?", false) {
					plog.Info(buildinfo.Name + " init canceled")
					return nil
				}
			}

			if err := config.Save(opts.configFile, settings); err != nil {
				return errors.Errorf("failed to write configuration: %w", err)
			}
			plog.Info("Configuration written", "path", opts.configFile)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file without asking")
	cmd.Flags().BoolVar(&defaults, "default", false, "start from the default settings instead of the existing file")
	return cmd
}

// PromptForConfirmation asks a yes/no question on out and reads the answer from in.
// An empty answer selects the default.
func PromptForConfirmation(in io.Reader, out io.Writer, prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s: ", prompt, suffix)

	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.ToLower(strings.TrimSpace(response))
	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
