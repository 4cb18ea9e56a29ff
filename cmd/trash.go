package cmd

import (
	"fmt"

	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/trash"
	"github.com/spf13/cobra"
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Manage trashed images",
}

var trashPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently delete images trashed longer than the retention period",
	Long: `Permanently delete images whose trash retention has expired.
The serve command does this periodically; this runs a single pass.

Examples:
  photo-groups trash purge
  photo-groups trash purge --retention 168h`,
	RunE: runTrashPurge,
}

func init() {
	rootCmd.AddCommand(trashCmd)
	trashCmd.AddCommand(trashPurgeCmd)

	trashPurgeCmd.Flags().Duration("retention", 0, "Retention period (default from TRASH_RETENTION)")
}

func runTrashPurge(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if retention := mustGetDuration(cmd, "retention"); retention > 0 {
		cfg.Trash.Retention = retention
	}
	ctx := cmd.Context()

	a, err := setupApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := trash.NewPurger(a.images, cfg.Trash.Retention).Purge(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d images\n", n)
	return nil
}
