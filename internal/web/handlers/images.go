package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/metrics"
	"github.com/kozaktomas/photo-groups/internal/web/middleware"
	"github.com/rs/zerolog/log"
)

const resourceImage = "image"

// ImagesHandler handles trash and analysis ingest endpoints.
type ImagesHandler struct {
	config *config.Config
	images database.ImageWriter
}

// NewImagesHandler creates a new images handler.
func NewImagesHandler(cfg *config.Config, images database.ImageWriter) *ImagesHandler {
	return &ImagesHandler{
		config: cfg,
		images: images,
	}
}

// TrashedImageResponse represents a soft-deleted image in API responses.
type TrashedImageResponse struct {
	ID        int64  `json:"id"`
	URL       string `json:"url"`
	DeletedAt string `json:"deleted_at"`
}

// AnalysisResultRequest is the payload posted by the inference pipeline.
type AnalysisResultRequest struct {
	Tag         string    `json:"tag"`
	TagCategory string    `json:"tag_category"`
	Score       float64   `json:"score"`
	AIEmbedding []float32 `json:"ai_embedding"`
}

func (req *AnalysisResultRequest) validate(dim int) string {
	if len(req.AIEmbedding) != dim {
		return fmt.Sprintf("ai_embedding must have %d dimensions, got %d", dim, len(req.AIEmbedding))
	}
	return ""
}

// Trash returns the owner's soft-deleted images.
func (h *ImagesHandler) Trash(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}

	images, err := h.images.ListTrashed(r.Context(), ownerID)
	if err != nil {
		respondServiceError(w, r, err, resourceImage)
		return
	}

	response := make([]TrashedImageResponse, len(images))
	for i, img := range images {
		response[i] = TrashedImageResponse{
			ID:        img.ID,
			URL:       h.config.Web.ImageURL(img.Path),
			DeletedAt: img.DeletedAt.Format(time.RFC3339),
		}
	}
	respondJSON(w, http.StatusOK, response)
}

// Restore moves an image out of trash.
func (h *ImagesHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}
	imageID, ok := parseIDParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	img, err := h.images.GetImageIncludingTrashed(r.Context(), imageID, ownerID)
	if err != nil {
		respondServiceError(w, r, err, resourceImage)
		return
	}
	if !img.IsTrashed() {
		respondError(w, http.StatusBadRequest, "image is not in trash")
		return
	}

	if err := h.images.RestoreImage(r.Context(), imageID, ownerID); err != nil {
		respondServiceError(w, r, err, resourceImage)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete moves a single image to trash.
func (h *ImagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}
	imageID, ok := parseIDParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	n, err := h.images.SoftDeleteImages(r.Context(), ownerID, []int64{imageID})
	if err != nil {
		respondServiceError(w, r, err, resourceImage)
		return
	}
	if n == 0 {
		respondError(w, http.StatusNotFound, resourceImage+" not found")
		return
	}
	metrics.ImagesDeletedTotal.WithLabelValues(metrics.DeleteReasonManual).Inc()

	w.WriteHeader(http.StatusNoContent)
}

// SaveAnalysis stores the inference output for an image.
func (h *ImagesHandler) SaveAnalysis(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}
	imageID, ok := parseIDParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	var req AnalysisResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if msg := req.validate(h.config.Embedding.Dim); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	err := h.images.SaveAnalysis(r.Context(), imageID, ownerID, database.AnalysisResult{
		Tag:          req.Tag,
		TagCategory:  req.TagCategory,
		QualityScore: req.Score,
		Embedding:    req.AIEmbedding,
	})
	if err != nil {
		respondServiceError(w, r, err, resourceImage)
		return
	}

	log.Debug().Int64("owner_id", ownerID).Int64("image_id", imageID).Str("tag", req.Tag).
		Msg("Stored analysis result")
	w.WriteHeader(http.StatusNoContent)
}
