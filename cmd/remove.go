package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pgbak/internal/display"
)

var removeYes bool

// removeCmd deletes a target and its audit history.
var removeCmd = &cobra.Command{
	Use:   "remove <target>",
	Short: "Remove a backup target",
	Long: `Remove a backup target and its entire audit history from the registry.
Uploaded artifacts in object storage are not touched.

Examples:
  pgbak remove billing
  pgbak remove billing --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)

	removeCmd.Flags().BoolVar(&removeYes, "yes", false, "skip the confirmation prompt")
}

func runRemove(cmd *cobra.Command, args []string) error {
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

	if !removeYes {
		fmt.Fprintf(os.Stderr, "Remove target %q and its audit history? [y/N]: ", target.Name)
		answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if answer = strings.ToLower(strings.TrimSpace(answer)); answer != "y" && answer != "yes" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	if err := store.DeleteTarget(ctx, target.ID); err != nil {
		return err
	}

	display.NewService().Success("Target %q removed", target.Name)
	return nil
}
