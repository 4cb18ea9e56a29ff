package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist or is owned by someone else.
// The two cases are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("not found")

// GroupName returns the display name for a group created from the given cluster label.
func GroupName(label int) string {
	return fmt.Sprintf("Suggested Group %d", label+1)
}

// ImageReader provides read-only access to images
type ImageReader interface {
	// FindImagesWithEmbeddings returns the owner's non-deleted images that carry an embedding,
	// ordered by ID so callers can correlate results with positional clustering labels.
	FindImagesWithEmbeddings(ctx context.Context, ownerID int64) ([]Image, error)
	// GetImage returns a non-deleted image owned by ownerID, or ErrNotFound
	GetImage(ctx context.Context, imageID, ownerID int64) (*Image, error)
	// GetImageIncludingTrashed returns an image owned by ownerID regardless of soft delete state
	GetImageIncludingTrashed(ctx context.Context, imageID, ownerID int64) (*Image, error)
	// ListTrashed returns the owner's soft-deleted images, most recently deleted first
	ListTrashed(ctx context.Context, ownerID int64) ([]Image, error)
	// ListOwnersWithEmbeddings returns every owner that has at least one clusterable image
	ListOwnersWithEmbeddings(ctx context.Context) ([]int64, error)
}

// ImageWriter provides write access to images
type ImageWriter interface {
	ImageReader

	// SoftDeleteImages sets deleted_at on every listed image owned by ownerID.
	// Ids that are unknown, foreign or already deleted are skipped. Returns rows affected.
	SoftDeleteImages(ctx context.Context, ownerID int64, imageIDs []int64) (int64, error)
	// RestoreImage clears deleted_at on a trashed image
	RestoreImage(ctx context.Context, imageID, ownerID int64) error
	// SaveAnalysis stores the inference output for an image and marks it completed
	SaveAnalysis(ctx context.Context, imageID, ownerID int64, result AnalysisResult) error
	// PurgeTrashed hard-deletes images soft-deleted before the cutoff. Returns rows removed.
	PurgeTrashed(ctx context.Context, before time.Time) (int64, error)
}

// GroupReader provides read-only access to similar groups
type GroupReader interface {
	// GetGroups returns the owner's groups annotated with live member counts
	GetGroups(ctx context.Context, ownerID int64) ([]SimilarGroup, error)
	// GetGroup returns one group, or ErrNotFound if absent or owned by someone else
	GetGroup(ctx context.Context, groupID, ownerID int64) (*SimilarGroup, error)
	// GetImagesForGroup returns the non-deleted member images of an owned group
	GetImagesForGroup(ctx context.Context, groupID, ownerID int64) ([]Image, error)
	// ListOwnersWithSuggestions returns every owner that has at least one suggested group
	ListOwnersWithSuggestions(ctx context.Context) ([]int64, error)
}

// GroupWriter provides write access to similar groups
type GroupWriter interface {
	GroupReader

	// ReplaceSuggestedGroups atomically removes the owner's suggested groups and inserts
	// the given ones. On error the previous set is left untouched.
	ReplaceSuggestedGroups(ctx context.Context, ownerID int64, groups []NewGroup) ([]SimilarGroup, error)
	// DeleteGroup removes a group and its memberships. Absent groups are not an error.
	DeleteGroup(ctx context.Context, groupID, ownerID int64) error
	// ConfirmGroup soft-deletes the owned subset of imageIDs and deletes the group in a
	// single transaction. Returns the number of images soft-deleted.
	ConfirmGroup(ctx context.Context, groupID, ownerID int64, imageIDs []int64) (int64, error)
	// ConfirmKeepBest soft-deletes every live member except the best image and deletes the
	// group in a single transaction. When the group has no best image, or the best image is
	// no longer a live member, nothing is trashed and bestKept is false.
	ConfirmKeepBest(ctx context.Context, groupID, ownerID int64) (deleted int64, bestKept bool, err error)
}
