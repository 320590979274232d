// Package migrate implements the migrate command.
package migrate

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/mcmigrate/internal/app"
	"github.com/tphakala/mcmigrate/internal/buildinfo"
	"github.com/tphakala/mcmigrate/internal/conf"
)

// Command creates the migrate command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		serve     bool
		batchSize int
		reset     []string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the configured migration stages",
		Long: "Run the configured migration stages in order. A run resumes from the last " +
			"committed chunk, so an interrupted migration is continued by running it again.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("batch") {
				settings.Migration.BatchSize = batchSize
			}
			if cmd.Flags().Changed("serve") {
				settings.API.Enabled = serve
			}

			a, err := app.New(settings, app.WithBuildInfo(build))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if len(reset) > 0 {
				if err := a.Reset(cmd.Context(), reset); err != nil {
					return err
				}
			}
			return a.Run(cmd.Context(), settings.API.Enabled)
		},
	}

	cmd.Flags().BoolVar(&serve, "serve", false, "Serve the control API while migrating")
	cmd.Flags().IntVar(&batchSize, "batch", conf.DefaultBatchSize, "Rows per chunk")
	cmd.Flags().StringSliceVar(&reset, "reset", nil, "Reset stages before running (eventrel, listgroup)")

	return cmd
}
