package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diaspora-enterprise/website/pkg/sitectl/client"
)

// NewLoginCommand exchanges the admin password for a session token and
// stores it for the active context.
func NewLoginCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the website admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			ctx, err := rt.resolveContext()
			if err != nil {
				return err
			}
			server := rt.resolveServer(ctx)
			if server == "" {
				return errors.New("no server configured")
			}

			if password == "" {
				password = os.Getenv("SITECTL_PASSWORD")
			}
			if password == "" {
				_, _ = fmt.Fprint(rt.Writer(), "Admin password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
				password = strings.TrimSpace(line)
			}
			if password == "" {
				return errors.New("password is required")
			}

			var opts []client.Option
			if ctx != nil && (ctx.CAFile != "" || ctx.InsecureSkipTLSVerify) {
				opts = append(opts, client.WithTLSConfig(ctx.CAFile, ctx.InsecureSkipTLSVerify))
			}
			api, err := client.New(server, opts...)
			if err != nil {
				return err
			}

			result, err := api.Login(cmd.Context(), password)
			if err != nil {
				return err
			}

			store, err := rt.tokenStore()
			if err != nil {
				return err
			}
			contextName := rt.ResolveContextName()
			if contextName == "" {
				contextName = "default"
			}
			if err := store.Save(contextName, result.Token); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(rt.Writer(), "Logged in to %s (session valid until %s)\n",
				server, result.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Admin password (prefer SITECTL_PASSWORD or the prompt)")

	return cmd
}
