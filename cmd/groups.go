package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/spf13/cobra"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Inspect and resolve suggested groups",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's suggested groups",
	RunE:  runGroupsList,
}

var groupsConfirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm a group and move images to trash",
	Long: `Confirm a suggested group. Either list the images to move to trash
with --delete, or pass --keep-best to keep only the group's best image.

Examples:
  photo-groups groups confirm --owner 42 --group 7 --delete 101,102
  photo-groups groups confirm --owner 42 --group 7 --keep-best`,
	RunE: runGroupsConfirm,
}

var groupsRejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Reject a group and keep all of its images",
	RunE:  runGroupsReject,
}

func init() {
	rootCmd.AddCommand(groupsCmd)
	groupsCmd.AddCommand(groupsListCmd, groupsConfirmCmd, groupsRejectCmd)

	groupsCmd.PersistentFlags().Int64("owner", 0, "Owner of the groups")
	_ = groupsCmd.MarkPersistentFlagRequired("owner")

	groupsListCmd.Flags().Bool("json", false, "Output as JSON")

	groupsConfirmCmd.Flags().Int64("group", 0, "Group to confirm")
	groupsConfirmCmd.Flags().Int64Slice("delete", nil, "Image IDs to move to trash")
	groupsConfirmCmd.Flags().Bool("keep-best", false, "Keep the best image and trash the rest")
	_ = groupsConfirmCmd.MarkFlagRequired("group")

	groupsRejectCmd.Flags().Int64("group", 0, "Group to reject")
	_ = groupsRejectCmd.MarkFlagRequired("group")
}

func runGroupsList(cmd *cobra.Command, args []string) error {
	ownerID := mustGetInt64(cmd, "owner")
	jsonOutput := mustGetBool(cmd, "json")
	ctx := cmd.Context()

	a, err := setupApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	groups, err := a.service.ListGroups(ctx, ownerID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(groups)
	}

	if len(groups) == 0 {
		fmt.Println("No suggested groups.")
		return nil
	}
	fmt.Printf("%-8s %-12s %-8s %s\n", "ID", "NAME", "IMAGES", "BEST")
	for _, g := range groups {
		best := "-"
		if g.BestImageID != nil {
			best = fmt.Sprintf("%d", *g.BestImageID)
		}
		fmt.Printf("%-8d %-12s %-8d %s\n", g.ID, g.Name, g.ImageCount, best)
	}
	return nil
}

func runGroupsConfirm(cmd *cobra.Command, args []string) error {
	ownerID := mustGetInt64(cmd, "owner")
	groupID := mustGetInt64(cmd, "group")
	toDelete := mustGetInt64Slice(cmd, "delete")
	keepBest := mustGetBool(cmd, "keep-best")
	ctx := cmd.Context()

	if keepBest && len(toDelete) > 0 {
		return errors.New("--delete and --keep-best are mutually exclusive")
	}

	a, err := setupApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	var deleted int64
	if keepBest {
		deleted, err = a.service.ConfirmKeepBest(ctx, groupID, ownerID)
	} else {
		deleted, err = a.service.ConfirmWithDeletions(ctx, groupID, ownerID, toDelete)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Group %d confirmed, %d images moved to trash\n", groupID, deleted)
	return nil
}

func runGroupsReject(cmd *cobra.Command, args []string) error {
	ownerID := mustGetInt64(cmd, "owner")
	groupID := mustGetInt64(cmd, "group")
	ctx := cmd.Context()

	a, err := setupApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.Reject(ctx, groupID, ownerID); err != nil {
		return err
	}
	fmt.Printf("Group %d rejected\n", groupID)
	return nil
}
