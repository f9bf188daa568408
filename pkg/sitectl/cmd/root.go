// Package cmd wires the sitectl command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/diaspora-enterprise/website/pkg/sitectl/client"
	"github.com/diaspora-enterprise/website/pkg/sitectl/config"
	"github.com/diaspora-enterprise/website/pkg/sitectl/output"
	"github.com/diaspora-enterprise/website/pkg/sitectl/tokenstore"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
}

type runtimeState struct {
	configPath           string
	cfg                  *config.Config
	contextOverride      string
	outputFormat         string
	serverOverride       string
	tokenOverride        string
	tokenStorageOverride string
	tokenFile            string
	writer               io.Writer
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{configPath: cfg.ConfigPath, writer: cfg.OutputWriter}

	root := &cobra.Command{
		Use:   "sitectl",
		Short: "Diaspora Enterprise website admin CLI",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.contextOverride == "" {
				rt.contextOverride = os.Getenv("SITECTL_CONTEXT")
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("SITECTL_OUTPUT")
			}
			if rt.serverOverride == "" {
				rt.serverOverride = os.Getenv("SITECTL_SERVER")
			}
			if rt.tokenOverride == "" {
				rt.tokenOverride = os.Getenv("SITECTL_TOKEN")
			}
			if rt.tokenStorageOverride == "" {
				rt.tokenStorageOverride = os.Getenv("SITECTL_TOKEN_STORAGE")
			}
			if rt.tokenFile == "" {
				rt.tokenFile = os.Getenv("SITECTL_TOKEN_FILE")
			}
			if rt.tokenFile == "" {
				rt.tokenFile = config.DefaultTokenPath()
			}

			// Commands that don't talk to a server skip config loading.
			if cmd.Name() == "version" || cmd.Name() == "completion" || cmd.Name() == "init" {
				return nil
			}
			// A full server/token override works without a config file.
			if rt.serverOverride != "" && rt.tokenOverride != "" {
				rt.cfg = &config.Config{Version: config.VersionV1}
				return nil
			}

			loaded, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.contextOverride, "context", "c", "", "Context name override")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().StringVar(&rt.serverOverride, "server", "", "Server override (bypass config)")
	root.PersistentFlags().StringVar(&rt.tokenOverride, "token", "", "Bearer token override")
	root.PersistentFlags().StringVar(&rt.tokenStorageOverride, "token-storage", "", "Token storage backend: keyring or file")
	root.PersistentFlags().StringVar(&rt.tokenFile, "token-file", "", "Path of the file token store")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewInitCommand(),
		NewLoginCommand(),
		NewContactsCommand(),
		NewStatsCommand(),
		NewTestmailCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) ResolveContextName() string {
	if rt.contextOverride != "" {
		return rt.contextOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentContextOrDefault()
	}
	return ""
}

func (rt *runtimeState) OutputFormat() (output.Format, error) {
	if rt.outputFormat != "" {
		return output.ParseFormat(rt.outputFormat)
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return output.ParseFormat(rt.cfg.Settings.OutputFormat)
	}
	return output.FormatTable, nil
}

func (rt *runtimeState) tokenStore() (tokenstore.Store, error) {
	backend := rt.tokenStorageOverride
	if backend == "" && rt.cfg != nil {
		backend = rt.cfg.Settings.TokenStorage
	}
	return tokenstore.New(backend, rt.tokenFile)
}

// resolveContext returns the active context, or nil when a server override
// stands in for one.
func (rt *runtimeState) resolveContext() (*config.Context, error) {
	if rt.serverOverride != "" {
		return nil, nil
	}
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveContextName()
	if name == "" {
		return nil, errors.New("no context configured, run 'sitectl init' first")
	}
	return rt.cfg.FindContext(name)
}

func (rt *runtimeState) resolveServer(ctx *config.Context) string {
	if rt.serverOverride != "" {
		return rt.serverOverride
	}
	if ctx != nil {
		return ctx.Server
	}
	return ""
}

// resolveToken finds the session token: explicit override first, then the
// token store keyed by context name.
func (rt *runtimeState) resolveToken(contextName string) (string, error) {
	if rt.tokenOverride != "" {
		return rt.tokenOverride, nil
	}
	store, err := rt.tokenStore()
	if err != nil {
		return "", err
	}
	token, err := store.Load(contextName)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return "", fmt.Errorf("not logged in to context %s, run 'sitectl login'", contextName)
		}
		return "", err
	}
	return token, nil
}

// buildClient assembles an authenticated API client for the active context.
func (rt *runtimeState) buildClient() (*client.Client, error) {
	ctx, err := rt.resolveContext()
	if err != nil {
		return nil, err
	}
	server := rt.resolveServer(ctx)
	if server == "" {
		return nil, errors.New("no server configured")
	}

	contextName := rt.ResolveContextName()
	token, err := rt.resolveToken(contextName)
	if err != nil {
		return nil, err
	}

	opts := []client.Option{client.WithToken(token)}
	if ctx != nil && (ctx.CAFile != "" || ctx.InsecureSkipTLSVerify) {
		opts = append(opts, client.WithTLSConfig(ctx.CAFile, ctx.InsecureSkipTLSVerify))
	}
	return client.New(server, opts...)
}
