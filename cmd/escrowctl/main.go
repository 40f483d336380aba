// Command escrowctl is the operator CLI: migrations, tokens, and trade
// administration against the configured ledger.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/amirasaad/escrow/infra/initializer"
	"github.com/amirasaad/escrow/pkg/app"
	"github.com/amirasaad/escrow/pkg/config"
	"github.com/spf13/cobra"
)

var Version = "dev"

// env holds what the commands need, swapped out in tests.
type env struct {
	loadConfig func() (*config.App, error)
	newApp     func(cfg *config.App) (*app.App, error)
	out        io.Writer
}

func defaultEnv() *env {
	return &env{
		loadConfig: func() (*config.App, error) { return config.Load(".env") },
		newApp: func(cfg *config.App) (*app.App, error) {
			if cfg.DB == nil || cfg.DB.Url == "" {
				return nil, fmt.Errorf("DATABASE_URL is required")
			}
			deps, err := initializer.InitializeDependencies(cfg)
			if err != nil {
				return nil, err
			}
			return app.New(deps, cfg)
		},
		out: os.Stdout,
	}
}

func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "escrowctl",
		Short:         "Operate the escrow broker",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(e.out)
	rootCmd.AddCommand(migrateCmd(e))
	rootCmd.AddCommand(tokenCmd(e))
	rootCmd.AddCommand(tradesCmd(e))
	rootCmd.AddCommand(archiveCmd(e))
	rootCmd.AddCommand(chatCmd(e))
	return rootCmd
}

func main() {
	if err := newRootCmd(defaultEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads the configuration, builds the app, and closes it after fn.
func (e *env) withApp(fn func(a *app.App) error) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a, err := e.newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close() //nolint: errcheck
	return fn(a)
}
