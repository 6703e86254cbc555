package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pgbak/internal/backup"
	"pgbak/internal/logging"
	"pgbak/internal/registry"
)

var cfgFile string

// CLI flag variables
var (
	verbose   bool
	quiet     bool
	logFile   string
	logFormat string

	registryPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pgbak",
	Short: "PostgreSQL backup orchestration with offsite upload and size verification",
	Long: `pgbak runs scheduled PostgreSQL backups: each due target is dumped with
pg_dump, streamed through compression and encryption, uploaded to object
storage, verified against the previous artifact size, and recorded in a
local audit registry. Healthcheck URLs are pinged at the start and end of
every attempt so a silent failure still raises an alarm.

A single-instance lock guarantees that overlapping invocations (cron
firing while a long backup is still running) do nothing instead of
corrupting each other.

Examples:
  # Run all due targets (the usual cron entry)
  pgbak run

  # Run one target immediately, ignoring its schedule
  pgbak run --force --target billing

  # Register a new target
  pgbak add --name billing --connection "postgres://backup@db/billing" \
            --frequency 24 --storage b2 --bucket offsite-backups

  # Inspect state
  pgbak list
  pgbak logs billing`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pgbak.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "registry database path (default "+registry.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	viper.BindPFlag("registry", rootCmd.PersistentFlags().Lookup("registry"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pgbak")
	}

	viper.SetEnvPrefix("PGBAK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// newLogger builds the process logger from the global flags.
func newLogger() (*logging.Logger, error) {
	level := logging.LogLevelNormal
	switch {
	case verbose && quiet:
		return nil, fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	case verbose:
		level = logging.LogLevelVerbose
	case quiet:
		level = logging.LogLevelQuiet
	}

	return logging.NewLogger(logging.Config{
		Level:   level,
		Output:  os.Stderr,
		Format:  viper.GetString("log_format"),
		LogFile: viper.GetString("log_file"),
	})
}

// openRegistry opens the target store configured via flag, env, or file.
func openRegistry(logger *logging.Logger) (*registry.Store, error) {
	path := viper.GetString("registry")
	if path == "" {
		path = registry.DefaultPath
	}
	return registry.Open(path, logger)
}

// buildRunConfig assembles the orchestrator configuration from viper, which
// already merges the config file, PGBAK_* environment variables, and flags.
func buildRunConfig() (backup.Config, error) {
	cfg := backup.Config{
		LockPath:              viper.GetString("lock_path"),
		WorkDirParent:         viper.GetString("work_dir"),
		DriftThresholdPercent: viper.GetFloat64("drift_threshold_percent"),
		DefaultPassphrase:     viper.GetString("archive_passphrase"),
		Pipeline: backup.PipelineConfig{
			DumpCommand:      viper.GetString("dump_command"),
			ArchiverCommand:  viper.GetStringSlice("archiver_command"),
			MinArtifactBytes: viper.GetInt64("min_artifact_bytes"),
		},
		DefaultStorage: backup.StorageSettings{
			Provider:        viper.GetString("upload.provider"),
			KeyID:           viper.GetString("upload.key_id"),
			AppKey:          viper.GetString("upload.app_key"),
			Bucket:          viper.GetString("upload.bucket"),
			Region:          viper.GetString("upload.region"),
			Endpoint:        viper.GetString("upload.endpoint"),
			CredentialsFile: viper.GetString("upload.credentials_file"),
			BasePath:        viper.GetString("upload.base_path"),
		},
	}

	if c := viper.GetString("compression"); c != "" {
		compression := backup.CompressionType(c)
		if !compression.Valid() {
			return cfg, fmt.Errorf("invalid compression %q (zstd, lz4, gzip)", c)
		}
		cfg.Pipeline.Compression = compression
	}
	return cfg, nil
}

// resolveTarget accepts a numeric id or a target name.
func resolveTarget(ctx context.Context, store *registry.Store, ref string) (backup.Target, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return store.GetTarget(ctx, id)
	}
	return store.GetTargetByName(ctx, ref)
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pgbak version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	}
}

func init() {
	rootCmd.AddCommand(createVersionCommand())
}
