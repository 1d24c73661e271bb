package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/dbrotate/internal/config"
	"github.com/systmms/dbrotate/internal/database"
	"github.com/systmms/dbrotate/internal/mode"
	"github.com/systmms/dbrotate/internal/password"
	"github.com/systmms/dbrotate/internal/roles"
	"github.com/systmms/dbrotate/internal/rotation"
	"github.com/systmms/dbrotate/internal/secretrecord"
)

// NewRotateCommand creates the rotate command
func NewRotateCommand(cfg *config.Config, rt Runtime) *cobra.Command {
	var (
		dryRun          bool
		targetsFile     string
		metricsTextfile string
		historyDir      string
		noHistory       bool
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate every configured role and update its secret",
		Long: `Rotate generates a new password for each target, applies it to the database role
in one transaction (creating the role if it does not exist and granting it access to
the database and the public schema), then writes it into the target's secret.

Targets are processed one at a time. A failing target is reported and the run
carries on with the next one; a secret is only rewritten after its role succeeded.`,
		Example: `  # Show what would change, without touching the database or the secret store
  dbrotate --dry-run

  # Rotate the built-in target list
  dbrotate

  # Rotate targets from a file and export metrics for node_exporter
  dbrotate rotate --targets targets.yaml --metrics-textfile /var/lib/node_exporter/dbrotate.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg.TargetsPath = targetsFile

			if err := cfg.Load(); err != nil {
				return err
			}
			s := cfg.Settings
			logger := cfg.Logger
			m := mode.FromDryRun(dryRun)

			gen, err := password.New(s.PasswordLength)
			if err != nil {
				return err
			}

			store, err := rt.OpenStore(ctx, s.SecretStore, logger)
			if err != nil {
				return err
			}
			if closer, ok := store.(io.Closer); ok {
				defer func() { _ = closer.Close() }()
			}

			// Stays nil in dry-run: no connection is ever opened
			var db database.Beginner
			if !m.IsDryRun() {
				cred, err := rt.AdminPassword(cfg)
				if err != nil {
					return err
				}
				defer cred.Destroy()

				sqlDB, err := rt.OpenDB(ctx, database.ConnConfig{
					Host:     s.Host,
					Port:     s.Port,
					User:     s.AdminUser,
					Database: s.Database,
					SSLMode:  s.SSLMode,
				}, cred)
				if err != nil {
					return err
				}
				defer func() { _ = sqlDB.Close() }()
				db = sqlDB
				logger.Debug("Connected to %s:%d/%s as %s", s.Host, s.Port, s.Database, s.AdminUser)
			}

			var updaterOpts []secretrecord.UpdaterOption
			if !s.VerifySecretWrite {
				updaterOpts = append(updaterOpts, secretrecord.WithoutReadBack())
			}

			opts := rotation.Options{
				Generator:   gen,
				Roles:       roles.NewRotator(db, s.Database, logger),
				Secrets:     secretrecord.NewUpdater(store, logger, updaterOpts...),
				Logger:      logger,
				Mode:        m,
				Host:        s.Host,
				Database:    s.Database,
				SecretStore: store.Name(),
			}
			if metricsTextfile != "" {
				opts.Metrics = rotation.NewMetrics()
			}
			if !noHistory {
				opts.History = historyStorage(historyDir, s)
			}

			report := rotation.NewCoordinator(opts).Run(ctx, cfg.Targets)
			printReport(cmd.OutOrStdout(), report)

			if opts.Metrics != nil {
				if err := opts.Metrics.WriteTextfile(metricsTextfile); err != nil {
					logger.Warn("%v", err)
				}
			}

			// Per-target failures are reported above and do not fail the command
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Perform a dry run (do not execute changes)")
	cmd.Flags().StringVar(&targetsFile, "targets", "", "YAML file replacing the built-in target list")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	cmd.Flags().StringVar(&historyDir, "history-dir", "", "Directory for the run journal (default: $XDG_DATA_HOME/dbrotate/history)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the journal")

	return cmd
}

func printReport(out io.Writer, report *rotation.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "\nRotation %s (%s)\n", report.StartedAt.Format("2006-01-02 15:04:05"), report.Mode)
	fmt.Fprintln(w, "USERNAME\tSECRET\tSTATE\tCREATED\tDURATION\tERROR")
	for _, o := range report.Outcomes {
		errorMsg := "-"
		if o.Err != nil {
			errorMsg = truncate(o.Error(), 60)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
			o.Username,
			o.SecretID,
			formatState(string(o.State)),
			o.Created,
			formatDuration(o.Duration),
			errorMsg,
		)
	}
	fmt.Fprintf(w, "\n%d succeeded, %d failed\n", report.Succeeded(), report.Failed())
}

func formatState(state string) string {
	switch rotation.State(state) {
	case rotation.SecretUpdated:
		return "✓ " + state
	case rotation.Skipped:
		return "- " + state
	default:
		return "✗ " + state
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}

	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
