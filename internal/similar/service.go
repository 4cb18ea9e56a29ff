// Package similar builds suggested groups of near-duplicate images and applies
// the owner's decisions about them.
package similar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/photo-groups/internal/cluster"
	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/lock"
	"github.com/kozaktomas/photo-groups/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	// ErrPersistenceConflict means the new suggestion set could not be stored.
	// The previous set is still in place and the run can be retried.
	ErrPersistenceConflict = errors.New("could not store suggested groups")
	// ErrTimeout means the run did not finish in its time budget. Nothing was written.
	ErrTimeout = errors.New("clustering run timed out")
)

// Clusterer partitions embeddings into clusters.
type Clusterer interface {
	Cluster(ctx context.Context, vectors [][]float32, params cluster.Params) (cluster.Result, error)
}

// Service runs clustering for an owner and applies group decisions.
type Service struct {
	images    database.ImageWriter
	groups    database.GroupWriter
	clusterer Clusterer
	locker    lock.Locker
	cfg       config.ClusterConfig
}

// NewService creates a new similar-groups service.
func NewService(
	images database.ImageWriter,
	groups database.GroupWriter,
	clusterer Clusterer,
	locker lock.Locker,
	cfg config.ClusterConfig,
) *Service {
	return &Service{
		images:    images,
		groups:    groups,
		clusterer: clusterer,
		locker:    locker,
		cfg:       cfg,
	}
}

// DefaultParams returns the configured clustering parameters.
func (s *Service) DefaultParams() cluster.Params {
	return cluster.Params{Eps: s.cfg.Eps, MinSamples: s.cfg.MinSamples}
}

// CreateGroups recomputes the owner's suggested groups from scratch and replaces the
// previous suggestions. Fewer eligible images than params.MinSamples clears the
// suggestions and returns an empty list.
func (s *Service) CreateGroups(ctx context.Context, ownerID int64, params cluster.Params) ([]database.SimilarGroup, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Int64("owner_id", ownerID).Logger()
	start := time.Now()
	result := metrics.ResultError
	defer func() {
		metrics.ClusterRunsTotal.WithLabelValues(result).Inc()
		metrics.ClusterRunDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	unlock, err := s.lock(ctx, ownerID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			result = metrics.ResultTimeout
			return nil, fmt.Errorf("%w: another run for owner %d is in progress: %w", ErrTimeout, ownerID, err)
		}
		return nil, fmt.Errorf("acquire cluster lock: %w", err)
	}
	defer unlock()

	images, err := s.images.FindImagesWithEmbeddings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	metrics.ClusterImages.Observe(float64(len(images)))

	budget := s.cfg.RunTimeout(len(images))
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if budget > 0 {
		runCtx, cancel = context.WithTimeout(ctx, budget)
	}
	defer cancel()

	vectors := make([][]float32, len(images))
	for i := range images {
		vectors[i] = images[i].Embedding
	}

	res, err := s.clusterer.Cluster(runCtx, vectors, params)
	if err == nil {
		// Computation can finish just as the budget runs out.
		err = runCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			result = metrics.ResultTimeout
			logger.Warn().Int("images", len(images)).Dur("budget", budget).Msg("Clustering run timed out")
			return nil, fmt.Errorf("%w after %s with %d images", ErrTimeout, budget, len(images))
		}
		return nil, fmt.Errorf("cluster images: %w", err)
	}

	newGroups := buildGroups(images, res)

	created, err := s.groups.ReplaceSuggestedGroups(ctx, ownerID, newGroups)
	if err != nil {
		result = metrics.ResultConflict
		logger.Error().Err(err).Msg("Failed to replace suggested groups")
		return nil, fmt.Errorf("%w: %w", ErrPersistenceConflict, err)
	}

	result = metrics.ResultOK
	if len(images) < params.MinSamples {
		result = metrics.ResultTooFew
	}
	metrics.GroupsCreatedTotal.Add(float64(len(created)))

	logger.Info().
		Int("images", len(images)).
		Int("groups", len(created)).
		Int("noise", len(res.Noise)).
		Float64("eps", params.Eps).
		Int("min_samples", params.MinSamples).
		Dur("duration", time.Since(start)).
		Msg("Clustering run finished")

	if created == nil {
		created = []database.SimilarGroup{}
	}
	return created, nil
}

// lock waits for the owner's run lock at most MinTimeout.
func (s *Service) lock(ctx context.Context, ownerID int64) (func(), error) {
	if s.cfg.MinTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MinTimeout)
		defer cancel()
	}
	return s.locker.Lock(ctx, ownerID)
}

// buildGroups turns cluster labels into groups, picking the best scored member of each.
func buildGroups(images []database.Image, res cluster.Result) []database.NewGroup {
	labels := res.SortedLabels()
	groups := make([]database.NewGroup, 0, len(labels))
	for _, label := range labels {
		indices := res.Clusters[label]
		ids := make([]int64, len(indices))
		scores := make([]*float64, len(indices))
		for i, idx := range indices {
			ids[i] = images[idx].ID
			scores[i] = images[idx].QualityScore
		}

		g := database.NewGroup{Label: label, ImageIDs: ids}
		if best := cluster.BestIndex(scores); best >= 0 {
			g.BestImageID = &ids[best]
		}
		groups = append(groups, g)
	}
	return groups
}

// ListGroups returns the owner's suggested groups.
func (s *Service) ListGroups(ctx context.Context, ownerID int64) ([]database.SimilarGroup, error) {
	groups, err := s.groups.GetGroups(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if groups == nil {
		groups = []database.SimilarGroup{}
	}
	return groups, nil
}

// GetGroupImages returns the live members of a group. Returns database.ErrNotFound
// when the group does not exist or belongs to another owner.
func (s *Service) GetGroupImages(ctx context.Context, groupID, ownerID int64) ([]database.Image, error) {
	images, err := s.groups.GetImagesForGroup(ctx, groupID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get images of group %d: %w", groupID, err)
	}
	if images == nil {
		images = []database.Image{}
	}
	return images, nil
}

// Reject removes a group and leaves its images alone. Rejecting a missing group is a no-op.
func (s *Service) Reject(ctx context.Context, groupID, ownerID int64) error {
	if err := s.groups.DeleteGroup(ctx, groupID, ownerID); err != nil {
		return fmt.Errorf("reject group %d: %w", groupID, err)
	}
	metrics.GroupsResolvedTotal.WithLabelValues("reject").Inc()
	log.Info().Int64("owner_id", ownerID).Int64("group_id", groupID).Msg("Rejected group")
	return nil
}

// ConfirmWithDeletions moves the listed images to trash and removes the group.
// Ids that are unknown or owned by someone else are skipped. Membership is not checked.
func (s *Service) ConfirmWithDeletions(ctx context.Context, groupID, ownerID int64, imageIDs []int64) (int64, error) {
	return s.confirm(ctx, groupID, ownerID, imageIDs, metrics.DeleteReasonConfirm)
}

// ConfirmKeepBest trashes every current member except the group's best image and removes
// the group. A group whose best image is unset or already trashed is removed without
// deleting anything, so at least one image of the group always survives.
func (s *Service) ConfirmKeepBest(ctx context.Context, groupID, ownerID int64) (int64, error) {
	deleted, bestKept, err := s.groups.ConfirmKeepBest(ctx, groupID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("confirm group %d: %w", groupID, err)
	}

	if !bestKept {
		log.Warn().Int64("owner_id", ownerID).Int64("group_id", groupID).
			Msg("Group has no live best image, confirmed without deletions")
	}
	s.recordConfirm(groupID, ownerID, deleted, metrics.DeleteReasonKeepBest)
	return deleted, nil
}

func (s *Service) confirm(ctx context.Context, groupID, ownerID int64, imageIDs []int64, reason string) (int64, error) {
	deleted, err := s.groups.ConfirmGroup(ctx, groupID, ownerID, imageIDs)
	if err != nil {
		return 0, fmt.Errorf("confirm group %d: %w", groupID, err)
	}

	if skipped := int64(len(imageIDs)) - deleted; skipped > 0 {
		log.Debug().Int64("owner_id", ownerID).Int64("group_id", groupID).Int64("skipped", skipped).
			Msg("Skipped images that are missing, already deleted or not owned")
	}
	s.recordConfirm(groupID, ownerID, deleted, reason)
	return deleted, nil
}

func (s *Service) recordConfirm(groupID, ownerID, deleted int64, reason string) {
	metrics.ImagesDeletedTotal.WithLabelValues(reason).Add(float64(deleted))
	metrics.GroupsResolvedTotal.WithLabelValues(reason).Inc()
	log.Info().Int64("owner_id", ownerID).Int64("group_id", groupID).Int64("deleted", deleted).
		Str("mode", reason).Msg("Confirmed group")
}
