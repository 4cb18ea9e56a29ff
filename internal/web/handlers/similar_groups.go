package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kozaktomas/photo-groups/internal/cluster"
	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/similar"
	"github.com/kozaktomas/photo-groups/internal/web/middleware"
)

const resourceGroup = "similar group"

// SimilarGroupsHandler handles similar-group endpoints.
type SimilarGroupsHandler struct {
	config  *config.Config
	service *similar.Service
}

// NewSimilarGroupsHandler creates a new similar groups handler.
func NewSimilarGroupsHandler(cfg *config.Config, service *similar.Service) *SimilarGroupsHandler {
	return &SimilarGroupsHandler{
		config:  cfg,
		service: service,
	}
}

// GroupResponse represents a similar group in API responses.
type GroupResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ImageCount  int    `json:"image_count"`
	BestImageID *int64 `json:"best_image_id"`
}

// GroupImageResponse represents a member image in API responses.
type GroupImageResponse struct {
	ID     int64  `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// ConfirmRequest is the body of the explicit confirm endpoint.
type ConfirmRequest struct {
	ImageIDsToDelete []int64 `json:"image_ids_to_delete"`
}

func groupsToResponse(groups []database.SimilarGroup) []GroupResponse {
	response := make([]GroupResponse, len(groups))
	for i, g := range groups {
		response[i] = GroupResponse{
			ID:          g.ID,
			Name:        g.Name,
			ImageCount:  g.ImageCount,
			BestImageID: g.BestImageID,
		}
	}
	return response
}

// parseParams reads eps and min_samples from the query, falling back to the configured defaults.
func (h *SimilarGroupsHandler) parseParams(r *http.Request) (cluster.Params, string) {
	params := h.service.DefaultParams()
	q := r.URL.Query()

	if s := q.Get("eps"); s != "" {
		eps, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return params, "eps must be a number"
		}
		params.Eps = eps
	}
	if s := q.Get("min_samples"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return params, "min_samples must be an integer"
		}
		params.MinSamples = n
	}
	return params, ""
}

// Create runs a clustering pass and returns the new suggested groups.
func (h *SimilarGroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}

	params, msg := h.parseParams(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	groups, err := h.service.CreateGroups(r.Context(), ownerID, params)
	if err != nil {
		respondServiceError(w, r, err, resourceGroup)
		return
	}

	respondJSON(w, http.StatusOK, groupsToResponse(groups))
}

// List returns the owner's suggested groups.
func (h *SimilarGroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}

	groups, err := h.service.ListGroups(r.Context(), ownerID)
	if err != nil {
		respondServiceError(w, r, err, resourceGroup)
		return
	}

	respondJSON(w, http.StatusOK, groupsToResponse(groups))
}

// Images returns the live member images of a group.
func (h *SimilarGroupsHandler) Images(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}
	groupID, ok := parseIDParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	images, err := h.service.GetGroupImages(r.Context(), groupID, ownerID)
	if err != nil {
		respondServiceError(w, r, err, resourceGroup)
		return
	}

	response := make([]GroupImageResponse, len(images))
	for i, img := range images {
		response[i] = GroupImageResponse{
			ID:     img.ID,
			URL:    h.config.Web.ImageURL(img.Path),
			Status: string(img.Status),
		}
	}
	respondJSON(w, http.StatusOK, response)
}

// Confirm trashes the listed images and removes the group.
func (h *SimilarGroupsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}
	groupID, ok := parseIDParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if _, err := h.service.ConfirmWithDeletions(r.Context(), groupID, ownerID, req.ImageIDsToDelete); err != nil {
		respondServiceError(w, r, err, resourceGroup)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ConfirmBest trashes every member except the best image and removes the group.
func (h *SimilarGroupsHandler) ConfirmBest(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}
	groupID, ok := parseIDParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	if _, err := h.service.ConfirmKeepBest(r.Context(), groupID, ownerID); err != nil {
		respondServiceError(w, r, err, resourceGroup)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reject removes the group without touching its images.
func (h *SimilarGroupsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.MustGetOwner(r.Context(), w)
	if !ok {
		return
	}
	groupID, ok := parseIDParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	if err := h.service.Reject(r.Context(), groupID, ownerID); err != nil {
		respondServiceError(w, r, err, resourceGroup)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
