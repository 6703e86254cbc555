package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pgbak/internal/display"
)

var (
	editName        string
	editConnection  string
	editFrequency   int
	editArchiveName string
	editPassphrase  bool
	editStorage     string
	editKeyID       string
	editAppKey      string
	editBucket      string
	editRegion      string
	editEndpoint    string
	editExclude     []string
	editStartURL    string
	editSuccessURL  string
	editFailureURL  string
)

// editCmd updates an existing target; only explicitly set flags change.
var editCmd = &cobra.Command{
	Use:   "edit <target>",
	Short: "Update an existing backup target",
	Long: `Update an existing backup target by name or id. Only the flags given
on the command line are changed; everything else keeps its current value.

Examples:
  # Back up twice as often
  pgbak edit billing --frequency 12

  # Rotate the per-target passphrase (prompted, hidden input)
  pgbak edit billing --passphrase

  # Replace the exclusion list
  pgbak edit billing --exclude audit_archive`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	rootCmd.AddCommand(editCmd)

	editCmd.Flags().StringVar(&editName, "name", "", "rename the target")
	editCmd.Flags().StringVar(&editConnection, "connection", "", "PostgreSQL connection string passed to pg_dump")
	editCmd.Flags().IntVar(&editFrequency, "frequency", 0, "backup frequency in hours")
	editCmd.Flags().StringVar(&editArchiveName, "archive-name", "", "artifact base name")
	editCmd.Flags().BoolVar(&editPassphrase, "passphrase", false, "prompt for a new archive passphrase")
	editCmd.Flags().StringVar(&editStorage, "storage", "", "storage provider")
	editCmd.Flags().StringVar(&editKeyID, "key-id", "", "storage access key id (or account name)")
	editCmd.Flags().StringVar(&editAppKey, "app-key", "", "storage secret key")
	editCmd.Flags().StringVar(&editBucket, "bucket", "", "storage bucket or container")
	editCmd.Flags().StringVar(&editRegion, "region", "", "storage region")
	editCmd.Flags().StringVar(&editEndpoint, "endpoint", "", "custom S3-compatible endpoint URL")
	editCmd.Flags().StringSliceVar(&editExclude, "exclude", nil, "replace the table exclusion list (repeatable)")
	editCmd.Flags().StringVar(&editStartURL, "start-url", "", "healthcheck URL pinged when a backup starts")
	editCmd.Flags().StringVar(&editSuccessURL, "success-url", "", "healthcheck URL pinged on success")
	editCmd.Flags().StringVar(&editFailureURL, "failure-url", "", "healthcheck URL pinged on failure")
}

func runEdit(cmd *cobra.Command, args []string) error {
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

	flags := cmd.Flags()
	if flags.Changed("name") {
		target.Name = editName
	}
	if flags.Changed("connection") {
		target.ConnectionString = editConnection
	}
	if flags.Changed("frequency") {
		if editFrequency <= 0 {
			return fmt.Errorf("--frequency must be a positive number of hours")
		}
		target.FrequencyHours = editFrequency
	}
	if flags.Changed("archive-name") {
		target.ArchiveName = editArchiveName
	}
	if flags.Changed("storage") {
		target.Storage.Provider = editStorage
	}
	if flags.Changed("key-id") {
		target.Storage.KeyID = editKeyID
	}
	if flags.Changed("app-key") {
		target.Storage.AppKey = editAppKey
	}
	if flags.Changed("bucket") {
		target.Storage.Bucket = editBucket
	}
	if flags.Changed("region") {
		target.Storage.Region = editRegion
	}
	if flags.Changed("endpoint") {
		target.Storage.Endpoint = editEndpoint
	}
	if flags.Changed("exclude") {
		target.ExcludeTables = editExclude
	}
	if flags.Changed("start-url") {
		target.StartURL = editStartURL
	}
	if flags.Changed("success-url") {
		target.SuccessURL = editSuccessURL
	}
	if flags.Changed("failure-url") {
		target.FailureURL = editFailureURL
	}
	if editPassphrase {
		passphrase, err := promptPassphrase("New archive passphrase for " + target.Name)
		if err != nil {
			return err
		}
		target.ArchivePassphrase = passphrase
	}

	if err := store.UpdateTarget(ctx, target); err != nil {
		return err
	}

	display.NewService().Success("Target %q updated", target.Name)
	return nil
}
