package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/systmms/dbrotate/cmd/dbrotate/commands"
	"github.com/systmms/dbrotate/internal/config"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	secure.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment and defaults still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	// Create config placeholder
	cfg := &config.Config{}

	rotateCmd := commands.NewRotateCommand(cfg, commands.DefaultRuntime())

	rootCmd := &cobra.Command{
		Use:   "dbrotate",
		Short: "Rotate PostgreSQL role passwords and update their secrets",
		Long: `dbrotate generates a new password for every configured database role, applies it
in a transaction and writes it to the role's secret in the secret store.

Run with --dry-run first: nothing is changed and every planned statement and
secret payload is printed with the password redacted.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
			cfg.NonInteractive = nonInteractive
		},
		// The bare command rotates, like 'dbrotate rotate'
		RunE: rotateCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: ./dbrotate.yaml or /etc/dbrotate/dbrotate.yaml if present)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt; requires ADMIN_PASSWORD_SOURCE=keyring for live runs")
	rootCmd.Flags().AddFlagSet(rotateCmd.Flags())

	rootCmd.AddCommand(
		rotateCmd,
		commands.NewHistoryCommand(cfg),
	)

	return rootCmd.ExecuteContext(ctx)
}
