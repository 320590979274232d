// Package status implements the status command.
package status

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/mcmigrate/internal/conf"
	"github.com/tphakala/mcmigrate/internal/datastore"
	"github.com/tphakala/mcmigrate/internal/logger"
)

// Command creates the status command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		stage string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stage progress and recorded errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := datastore.Open(settings, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			state := datastore.NewStateManager(store.DB(), "", nil)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			stages, err := state.ListStages(ctx)
			if err != nil {
				return err
			}
			if len(stages) == 0 {
				fmt.Fprintln(out, "no stage has run yet")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tSTATUS\tMIGRATED\tTOTAL\tERRORS\tCURSOR")
			for i := range stages {
				s := &stages[i]
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
					s.Name, s.Status, s.MigratedRecords, s.TotalRecords, s.ErrorCount, s.LastMigratedID)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if limit == 0 {
				return nil
			}
			entries, err := state.Errors(ctx, stage, limit)
			if err != nil {
				return err
			}
			if len(entries) > 0 {
				fmt.Fprintln(out)
			}
			for i := range entries {
				e := &entries[i]
				row := "-"
				if e.RowID != nil {
					row = fmt.Sprint(*e.RowID)
				}
				fmt.Fprintf(out, "[%s] %s row %s (%s): %s\n", e.Stage, e.CreatedAt.Format("2006-01-02 15:04:05"), row, e.Category, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Only show errors of this stage")
	cmd.Flags().IntVar(&limit, "errors", 20, "Number of errors to show, 0 hides them")
	return cmd
}
