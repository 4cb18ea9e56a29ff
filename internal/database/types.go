package database

import (
	"time"
)

// AnalysisStatus tracks where an image is in the inference pipeline
type AnalysisStatus string

// AnalysisStatus values mirror the states reported by the inference workers.
const (
	AnalysisPending    AnalysisStatus = "PENDING"
	AnalysisProcessing AnalysisStatus = "PROCESSING"
	AnalysisCompleted  AnalysisStatus = "COMPLETED"
	AnalysisFailed     AnalysisStatus = "FAILED"
)

// GroupStatus is the lifecycle state of a similar group.
// Confirmed and rejected groups are deleted, so only SUGGESTED is ever persisted.
type GroupStatus string

// GroupStatusSuggested marks a group produced by a clustering run awaiting a user decision.
const GroupStatusSuggested GroupStatus = "SUGGESTED"

// Image represents an uploaded image row as seen by the grouping subsystem
type Image struct {
	ID           int64
	OwnerID      int64
	Path         string     // object key in storage
	Embedding    []float32  // nil when the inference pipeline has not produced one yet
	QualityScore *float64   // nil when not scored
	Tag          string     // label assigned by the tagging model
	TagCategory  string     // category of the label
	Status       AnalysisStatus
	UploadedAt   time.Time
	DeletedAt    *time.Time // soft delete marker
}

// IsClusterable reports whether the image can take part in a clustering run.
func (i *Image) IsClusterable() bool {
	return len(i.Embedding) > 0 && i.DeletedAt == nil
}

// IsTrashed reports whether the image has been soft deleted.
func (i *Image) IsTrashed() bool {
	return i.DeletedAt != nil
}

// SimilarGroup is a persisted cluster of visually similar images
type SimilarGroup struct {
	ID          int64
	OwnerID     int64
	Name        string
	Status      GroupStatus
	BestImageID *int64
	CreatedAt   time.Time

	// ImageCount is the number of live (not soft-deleted) members, computed on read.
	ImageCount int
}

// NewGroup describes a group to be inserted by ReplaceSuggestedGroups
type NewGroup struct {
	Label       int     // cluster label from the clustering run, used for the display name
	ImageIDs    []int64 // members in input order
	BestImageID *int64  // representative, must be one of ImageIDs
}

// AnalysisResult is the payload the inference pipeline reports for a single image
type AnalysisResult struct {
	Tag          string
	TagCategory  string
	QualityScore float64
	Embedding    []float32
}
