package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pgbak/internal/backup"
	"pgbak/internal/display"
)

var (
	addName        string
	addConnection  string
	addFrequency   int
	addArchiveName string
	addPassphrase  bool
	addStorage     string
	addKeyID       string
	addAppKey      string
	addBucket      string
	addRegion      string
	addEndpoint    string
	addExclude     []string
	addStartURL    string
	addSuccessURL  string
	addFailureURL  string
)

// addCmd registers a new backup target.
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new backup target",
	Long: `Register a new backup target in the registry.

Storage credentials and the archive passphrase are optional per target;
anything left empty falls back to the process-wide defaults from the config
file or PGBAK_* environment variables at run time.

The passphrase is never taken from argv. Use --passphrase to be prompted
with hidden input, or set a default via PGBAK_ARCHIVE_PASSPHRASE.

Examples:
  # Minimal target, inheriting all upload defaults
  pgbak add --name billing --connection "postgres://backup@db/billing"

  # Fully specified target with its own bucket and passphrase
  pgbak add --name billing --connection "postgres://backup@db/billing" \
            --frequency 12 --storage b2 --bucket offsite --region eu-central-003 \
            --passphrase --exclude audit_archive --exclude sessions \
            --success-url https://nosnch.in/abcdef`,
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVar(&addName, "name", "", "unique target name")
	addCmd.Flags().StringVar(&addConnection, "connection", "", "PostgreSQL connection string passed to pg_dump")
	addCmd.Flags().IntVar(&addFrequency, "frequency", 24, "backup frequency in hours")
	addCmd.Flags().StringVar(&addArchiveName, "archive-name", "", "artifact base name (default: target name)")
	addCmd.Flags().BoolVar(&addPassphrase, "passphrase", false, "prompt for a per-target archive passphrase")
	addCmd.Flags().StringVar(&addStorage, "storage", "", "storage provider ("+strings.Join(backup.SupportedStorageProviders(), ", ")+")")
	addCmd.Flags().StringVar(&addKeyID, "key-id", "", "storage access key id (or account name)")
	addCmd.Flags().StringVar(&addAppKey, "app-key", "", "storage secret key")
	addCmd.Flags().StringVar(&addBucket, "bucket", "", "storage bucket or container")
	addCmd.Flags().StringVar(&addRegion, "region", "", "storage region")
	addCmd.Flags().StringVar(&addEndpoint, "endpoint", "", "custom S3-compatible endpoint URL")
	addCmd.Flags().StringSliceVar(&addExclude, "exclude", nil, "table to exclude from the dump (repeatable)")
	addCmd.Flags().StringVar(&addStartURL, "start-url", "", "healthcheck URL pinged when a backup starts")
	addCmd.Flags().StringVar(&addSuccessURL, "success-url", "", "healthcheck URL pinged on success")
	addCmd.Flags().StringVar(&addFailureURL, "failure-url", "", "healthcheck URL pinged on failure")

	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("connection")
}

func runAdd(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	if addFrequency <= 0 {
		return fmt.Errorf("--frequency must be a positive number of hours")
	}

	target := backup.Target{
		Name:             addName,
		ConnectionString: addConnection,
		FrequencyHours:   addFrequency,
		ArchiveName:      addArchiveName,
		ExcludeTables:    addExclude,
		StartURL:         addStartURL,
		SuccessURL:       addSuccessURL,
		FailureURL:       addFailureURL,
		Storage: backup.StorageSettings{
			Provider: addStorage,
			KeyID:    addKeyID,
			AppKey:   addAppKey,
			Bucket:   addBucket,
			Region:   addRegion,
			Endpoint: addEndpoint,
		},
	}

	if addPassphrase {
		passphrase, err := promptPassphrase("Archive passphrase for " + target.Name)
		if err != nil {
			return err
		}
		target.ArchivePassphrase = passphrase
	}

	store, err := openRegistry(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.CreateTarget(cmd.Context(), target)
	if err != nil {
		return err
	}

	display.NewService().Success("Target %q registered with id %d", target.Name, id)
	return nil
}

// promptPassphrase reads a passphrase twice with terminal echo disabled.
func promptPassphrase(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for passphrase: stdin is not a terminal")
	}

	fmt.Fprintf(os.Stderr, "%s: ", label)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}

	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}
