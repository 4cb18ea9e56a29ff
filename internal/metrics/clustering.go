package metrics

import "github.com/prometheus/client_golang/prometheus"

// Clustering run results.
const (
	ResultOK       = "ok"
	ResultTooFew   = "too_few"
	ResultTimeout  = "timeout"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Reasons images leave the library.
const (
	DeleteReasonConfirm  = "confirm"
	DeleteReasonKeepBest = "keep_best"
	DeleteReasonManual   = "manual"
)

var (
	ClusterRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cluster_run_duration_seconds",
			Help:      "Duration of similar-image clustering runs",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"result"},
	)

	ClusterRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_runs_total",
			Help:      "Total clustering runs by result",
		},
		[]string{"result"},
	)

	ClusterImages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cluster_images",
			Help:      "Number of images considered per clustering run",
			Buckets:   prometheus.ExponentialBuckets(2, 4, 8),
		},
	)

	GroupsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_created_total",
			Help:      "Total suggested groups created",
		},
	)

	GroupsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_resolved_total",
			Help:      "Total suggested groups resolved by the owner",
		},
		[]string{"action"}, // "confirm" / "keep_best" / "reject"
	)

	ImagesDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_deleted_total",
			Help:      "Total images moved to trash",
		},
		[]string{"reason"},
	)

	ImagesPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_purged_total",
			Help:      "Total trashed images permanently removed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ClusterRunDuration,
		ClusterRunsTotal,
		ClusterImages,
		GroupsCreatedTotal,
		GroupsResolvedTotal,
		ImagesDeletedTotal,
		ImagesPurgedTotal,
	)
}
