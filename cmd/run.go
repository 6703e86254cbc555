package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pgbak/internal/backup"
	"pgbak/internal/display"
)

var (
	runForce  bool
	runTarget string
)

// runCmd executes one orchestration pass over the registered targets.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run backups for all due targets",
	Long: `Run one backup pass: acquire the single-instance lock, walk the
registered targets, and back up every target whose backup frequency has
elapsed. Targets that are not yet due are skipped silently.

A second invocation while a run is in progress exits non-zero without
touching any target. Per-target failures are recorded and notified but never abort the
rest of the batch; the exit status is non-zero if any target failed.

Examples:
  # The usual cron entry
  pgbak run

  # Back up one target now, regardless of schedule
  pgbak run --force --target billing`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runForce, "force", false, "run targets regardless of schedule")
	runCmd.Flags().StringVar(&runTarget, "target", "", "restrict the run to one target (name or id)")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := buildRunConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	store, err := openRegistry(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	opts := backup.RunOptions{Force: runForce}
	if runTarget != "" {
		target, err := resolveTarget(ctx, store, runTarget)
		if err != nil {
			return err
		}
		opts.TargetID = target.ID
	}

	orch := backup.NewOrchestrator(cfg, store, logger)
	report, err := orch.Run(ctx, opts)
	if err != nil {
		if backup.IsLockBusy(err) {
			// No target was touched, but the invocation did no work; the
			// exit status must say so.
			logger.Warn("Another pgbak instance is already running")
		}
		return err
	}

	printRunReport(report)
	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(report.Targets))
	}
	return nil
}

func printRunReport(report *backup.RunReport) {
	if quiet {
		return
	}
	out := display.NewService()

	headers := []string{"TARGET", "STATE", "SIZE", "REMOTE"}
	rows := make([][]string, 0, len(report.Targets))
	for _, t := range report.Targets {
		size := "-"
		if t.ArtifactBytes > 0 {
			size = display.FormatBytes(t.ArtifactBytes)
		}
		remote := t.Remote
		if remote == "" {
			if t.Err != nil {
				remote = t.Err.Error()
			} else {
				remote = "-"
			}
		}
		rows = append(rows, []string{t.TargetName, string(t.State), size, remote})
	}
	out.PrintTable(headers, rows)
}
