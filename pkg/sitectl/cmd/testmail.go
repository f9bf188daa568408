package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTestmailCommand asks the server for a delivery check through its SMTP
// transport.
func NewTestmailCommand() *cobra.Command {
	var receiver string

	cmd := &cobra.Command{
		Use:   "testmail",
		Short: "Send a delivery-check email through the server's SMTP transport",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			api, err := rt.buildClient()
			if err != nil {
				return err
			}

			result, err := api.SendTestMail(cmd.Context(), receiver)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(rt.Writer(), "Test mail sent to %s via %s (%s)\n",
				result.Receiver, result.Host, result.Mechanism)
			return nil
		},
	}

	cmd.Flags().StringVar(&receiver, "receiver", "", "Receiver address (defaults to the configured admin address)")

	return cmd
}
