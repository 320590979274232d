// Package cmd builds the mcmigrate command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/mcmigrate/cmd/checkkey"
	"github.com/tphakala/mcmigrate/cmd/initconfig"
	"github.com/tphakala/mcmigrate/cmd/migrate"
	"github.com/tphakala/mcmigrate/cmd/status"
	"github.com/tphakala/mcmigrate/internal/buildinfo"
	"github.com/tphakala/mcmigrate/internal/conf"
)

// RootCommand creates and returns the root command. Subcommands share
// settings, which are loaded before any of them runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:          "mcmigrate",
		Short:        "Migrate MailChimp list and group tokens to API v3",
		Version:      build.GetVersion(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	initCmd := initconfig.Command()
	rootCmd.AddCommand(
		migrate.Command(settings, build),
		status.Command(settings),
		checkkey.Command(settings),
		initCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// writing a config must not require a valid one
		if cmd.Name() == initCmd.Name() {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		*settings = *loaded
		settings.Version = build.GetVersion()
		if debug {
			settings.Debug = true
		}
		return nil
	}

	return rootCmd
}
