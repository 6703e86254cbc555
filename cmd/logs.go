package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"pgbak/internal/display"
)

var logsLimit int

// logsCmd prints a target's audit trail.
var logsCmd = &cobra.Command{
	Use:   "logs <target>",
	Short: "Show a target's backup history",
	Long: `Show the audit trail of a target, most recent attempt first. Every run
attempt is listed, including failures and size anomalies.

Examples:
  pgbak logs billing
  pgbak logs billing --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "maximum number of records to show (0 = all)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	store, err := openRegistry(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	target, err := resolveTarget(ctx, store, args[0])
	if err != nil {
		return err
	}

	records, err := store.AuditTrail(ctx, target.ID)
	if err != nil {
		return err
	}
	if logsLimit > 0 && len(records) > logsLimit {
		records = records[:logsLimit]
	}

	out := display.NewService()
	if len(records) == 0 {
		out.Plain("No backup attempts recorded for %q.", target.Name)
		return nil
	}

	headers := []string{"ID", "TIMESTAMP", "OUTCOME", "SIZE", "DETAIL"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		size := "-"
		if rec.ArtifactBytes != nil {
			size = display.FormatBytes(*rec.ArtifactBytes)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			out.Outcome(string(rec.Outcome)),
			size,
			rec.Detail,
		})
	}
	out.PrintTable(headers, rows)
	return nil
}
