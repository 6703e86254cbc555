package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pgbak/internal/backup"
	"pgbak/internal/display"
)

var listFormat string

// listCmd prints the registered targets.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered backup targets",
	Long: `List registered backup targets with their schedule and last outcome.

Secrets (storage keys, passphrases) are never printed in any format.

Examples:
  pgbak list
  pgbak list --format json`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listFormat, "format", "table", "output format (table, json, yaml)")
}

func runList(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	store, err := openRegistry(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	targets, err := store.ListTargets(cmd.Context())
	if err != nil {
		return err
	}

	switch strings.ToLower(listFormat) {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(targets)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		if err := encoder.Encode(targets); err != nil {
			return err
		}
		return encoder.Close()
	case "table":
		printTargetTable(targets)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", listFormat)
	}
}

func printTargetTable(targets []backup.Target) {
	out := display.NewService()
	if len(targets) == 0 {
		out.Plain("No targets registered. Use 'pgbak add' to register one.")
		return
	}

	headers := []string{"ID", "NAME", "FREQUENCY", "STORAGE", "BUCKET", "LAST BACKUP", "RESULT"}
	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		lastRun := "never"
		if t.LastRun != nil {
			lastRun = t.LastRun.Format("2006-01-02 15:04:05")
		}
		provider := t.Storage.Provider
		if provider == "" {
			provider = "(default)"
		}
		bucket := t.Storage.Bucket
		if bucket == "" {
			bucket = "(default)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Name,
			fmt.Sprintf("%dh", t.FrequencyHours),
			provider,
			bucket,
			lastRun,
			out.Outcome(string(t.LastResult)),
		})
	}
	out.PrintTable(headers, rows)
}
