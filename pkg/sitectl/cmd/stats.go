package cmd

import (
	"github.com/spf13/cobra"

	"github.com/diaspora-enterprise/website/pkg/sitectl/output"
)

// NewStatsCommand shows the submission counters.
func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show contact submission counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			api, err := rt.buildClient()
			if err != nil {
				return err
			}

			stats, err := api.GetStats(cmd.Context())
			if err != nil {
				return err
			}

			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteStats(rt.Writer(), stats)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, stats)
		},
	}
}
