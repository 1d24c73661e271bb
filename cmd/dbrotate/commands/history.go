package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/dbrotate/internal/config"
	"github.com/systmms/dbrotate/internal/rotation"
	"github.com/systmms/dbrotate/internal/rotation/storage"
	"gopkg.in/yaml.v3"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand(cfg *config.Config) *cobra.Command {
	var (
		limit      int
		format     string
		historyDir string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past rotation runs",
		Long: `Display the run journal: one entry per run with the final state of every target.
Passwords are never recorded.`,
		Example: `  # Last 10 runs
  dbrotate history --limit 10

  # Machine-readable
  dbrotate history --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var settings *config.Settings
			if historyDir == "" {
				s, err := config.LoadSettings(cfg.Path)
				if err != nil {
					return err
				}
				settings = s
			}

			runs, err := historyStorage(historyDir, settings).ListRuns(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(runs)
			case "table", "":
				printRuns(out, runs)
				return nil
			default:
				return fmt.Errorf("unknown format %q (use table, json or yaml)", format)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	cmd.Flags().StringVar(&historyDir, "history-dir", "", "Directory of the run journal")

	return cmd
}

func printRuns(out io.Writer, runs []storage.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No rotation runs recorded")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "STARTED\tMODE\tUSERNAME\tSECRET\tSTATE\tDURATION\tERROR")
	for _, run := range runs {
		started := run.StartedAt.Local().Format("2006-01-02 15:04:05")
		for _, t := range run.Targets {
			errorMsg := "-"
			if t.Error != "" {
				errorMsg = truncate(t.Error, 50)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				started,
				run.Mode,
				t.Username,
				t.SecretID,
				formatState(t.State),
				formatDuration(t.Duration),
				errorMsg,
			)
		}
	}

	fmt.Fprintf(w, "\nShowing %d run(s)", len(runs))
	if failed := countFailed(runs); failed > 0 {
		fmt.Fprintf(w, ", %d target failure(s)", failed)
	}
	fmt.Fprintln(w)
}

func countFailed(runs []storage.RunRecord) int {
	n := 0
	for i := range runs {
		n += runs[i].Failed(string(rotation.SecretUpdated))
	}
	return n
}
