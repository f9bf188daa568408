package cmd

import (
	"github.com/spf13/cobra"

	"github.com/diaspora-enterprise/website/pkg/sitectl/client"
	"github.com/diaspora-enterprise/website/pkg/sitectl/output"
)

// NewContactsCommand groups the contact-submission subcommands.
func NewContactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Browse and manage contact-form submissions",
	}

	cmd.AddCommand(
		newContactsListCommand(),
		newContactsShowCommand(),
		newContactsReadCommand(),
		newContactsUnreadCommand(),
	)

	return cmd
}

func newContactsListCommand() *cobra.Command {
	var (
		unreadOnly bool
		readOnly   bool
		query      string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contact submissions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			api, err := rt.buildClient()
			if err != nil {
				return err
			}

			opts := client.ListOptions{Query: query, Limit: limit, Offset: offset}
			if unreadOnly {
				read := false
				opts.Read = &read
			} else if readOnly {
				read := true
				opts.Read = &read
			}

			list, err := api.ListContacts(cmd.Context(), opts)
			if err != nil {
				return err
			}

			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteContactTable(rt.Writer(), list.Contacts)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, list)
		},
	}

	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only unread submissions")
	cmd.Flags().BoolVar(&readOnly, "read", false, "Only read submissions")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Substring match on name, email and subject")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip the first N results")
	cmd.MarkFlagsMutuallyExclusive("unread", "read")

	return cmd
}

func newContactsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one submission in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			api, err := rt.buildClient()
			if err != nil {
				return err
			}

			c, err := api.GetContact(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteContactDetail(rt.Writer(), c)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, c)
		},
	}
	return cmd
}

func newContactsReadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a submission as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			api, err := rt.buildClient()
			if err != nil {
				return err
			}
			return api.MarkRead(cmd.Context(), args[0])
		},
	}
}

func newContactsUnreadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unread <id>",
		Short: "Mark a submission as unread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			api, err := rt.buildClient()
			if err != nil {
				return err
			}
			return api.MarkUnread(cmd.Context(), args[0])
		},
	}
}
