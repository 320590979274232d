// Package checkkey implements the check-key command.
package checkkey

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/mcmigrate/internal/conf"
	"github.com/tphakala/mcmigrate/internal/mailchimp"
)

// Command creates the check-key command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check-key",
		Short: "Verify the configured MailChimp API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := mailchimp.NewClient(mailchimp.Config{
				APIKey:  settings.MailChimp.APIKey,
				BaseURL: settings.MailChimp.BaseURL,
				Timeout: settings.MailChimp.Timeout,
			})
			defer client.Close()

			if err := client.ValidateKey(cmd.Context()); err != nil {
				return fmt.Errorf("api key rejected: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key is valid")
			return nil
		},
	}
}
