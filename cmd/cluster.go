package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/photo-groups/internal/cluster"
	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/constants"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/similar"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Recompute suggested groups of similar images",
	Long: `Recompute the suggested groups of near-duplicate images for one owner
or for every owner that has analyzed images. Previous suggestions are
replaced; confirmed decisions are not affected.

Examples:
  # Cluster a single owner with the configured parameters
  photo-groups cluster --owner 42

  # Cluster every owner with a stricter radius
  photo-groups cluster --all --eps 0.1

  # JSON output for scripting
  photo-groups cluster --owner 42 --json`,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().Int64("owner", 0, "Owner to cluster")
	clusterCmd.Flags().Bool("all", false, "Cluster every owner with analyzed images")
	clusterCmd.Flags().Float64("eps", 0, "Neighborhood radius in cosine distance (default from config)")
	clusterCmd.Flags().Int("min-samples", 0, "Minimum images per group (default from config)")
	clusterCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of owners clustered in parallel")
	clusterCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// ClusterOwnerResult is the outcome of one owner's run
type ClusterOwnerResult struct {
	OwnerID int64  `json:"owner_id"`
	Groups  int    `json:"groups"`
	Error   string `json:"error,omitempty"`
}

// ClusterResult summarizes a cluster command
type ClusterResult struct {
	Success    bool                 `json:"success"`
	Owners     []ClusterOwnerResult `json:"owners"`
	Errors     int                  `json:"errors"`
	DurationMs int64                `json:"duration_ms"`
}

// clusterParams starts from the configured defaults and applies flag overrides.
func clusterParams(cmd *cobra.Command, cfg *config.Config) cluster.Params {
	params := cluster.Params{Eps: cfg.Cluster.Eps, MinSamples: cfg.Cluster.MinSamples}
	if eps := mustGetFloat64(cmd, "eps"); eps != 0 {
		params.Eps = eps
	}
	if minSamples := mustGetInt(cmd, "min-samples"); minSamples != 0 {
		params.MinSamples = minSamples
	}
	return params
}

func runCluster(cmd *cobra.Command, args []string) error {
	ownerID := mustGetInt64(cmd, "owner")
	all := mustGetBool(cmd, "all")
	concurrency := mustGetInt(cmd, "concurrency")
	jsonOutput := mustGetBool(cmd, "json")

	if ownerID == 0 && !all {
		return errors.New("either --owner or --all is required")
	}
	if ownerID != 0 && all {
		return errors.New("--owner and --all are mutually exclusive")
	}

	cfg := config.Load()
	params := clusterParams(cmd, cfg)
	if err := params.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	startTime := time.Now()

	a, err := setupApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	owners := []int64{ownerID}
	if all {
		owners, err = batchOwners(ctx, a.images, a.groups)
		if err != nil {
			return err
		}
	}

	if len(owners) == 0 {
		if jsonOutput {
			return outputJSON(ClusterResult{Success: true, Owners: []ClusterOwnerResult{}})
		}
		fmt.Println("No owners with analyzed images found.")
		return nil
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(owners) > 1 {
		bar = progressbar.NewOptions(len(owners),
			progressbar.OptionSetDescription("Clustering"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("owners"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	results := clusterOwners(ctx, a.service, owners, params, concurrency, bar)
	if bar != nil {
		fmt.Println()
	}

	result := ClusterResult{Success: true, Owners: results, DurationMs: time.Since(startTime).Milliseconds()}
	for _, r := range results {
		if r.Error != "" {
			result.Errors++
		}
	}
	result.Success = result.Errors == 0

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println("\nClustering complete!")
	for _, r := range results {
		if r.Error != "" {
			fmt.Printf("  Owner %d: failed: %s\n", r.OwnerID, r.Error)
			continue
		}
		fmt.Printf("  Owner %d: %d groups\n", r.OwnerID, r.Groups)
	}
	fmt.Printf("  Duration: %s\n", formatDuration(time.Since(startTime)))

	if result.Errors > 0 {
		return fmt.Errorf("%d of %d owners failed", result.Errors, len(owners))
	}
	return nil
}

// batchOwners lists owners with clusterable images plus owners still holding suggested
// groups. A run for the latter finds no images and clears their stale suggestions.
func batchOwners(ctx context.Context, images database.ImageReader, groups database.GroupReader) ([]int64, error) {
	withImages, err := images.ListOwnersWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	withGroups, err := groups.ListOwnersWithSuggestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list group owners: %w", err)
	}

	owners := slices.Concat(withImages, withGroups)
	slices.Sort(owners)
	return slices.Compact(owners), nil
}

// clusterOwners runs owners in parallel. A failed owner is reported and does not stop the others.
func clusterOwners(
	ctx context.Context, service *similar.Service, owners []int64, params cluster.Params,
	concurrency int, bar *progressbar.ProgressBar,
) []ClusterOwnerResult {
	results := make([]ClusterOwnerResult, len(owners))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, owner := range owners {
		g.Go(func() error {
			r := ClusterOwnerResult{OwnerID: owner}
			groups, err := service.CreateGroups(gctx, owner, params)
			if err != nil {
				log.Error().Err(err).Int64("owner_id", owner).Msg("Clustering failed")
				r.Error = err.Error()
			} else {
				r.Groups = len(groups)
			}
			results[i] = r

			if bar != nil {
				mu.Lock()
				_ = bar.Add(1)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
