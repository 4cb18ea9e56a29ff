package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Clustering      ClusteringInfo `json:"clustering"`
	EmbeddingDim    int            `json:"embedding_dim"`
	TrashRetention  string         `json:"trash_retention"`
	CDNDomain       string         `json:"cdn_domain,omitempty"`
	DatabaseEnabled bool           `json:"database_enabled"`
}

// ClusteringInfo carries the defaults used when a request omits eps or min_samples
type ClusteringInfo struct {
	Eps        float64 `json:"eps"`
	MinSamples int     `json:"min_samples"`
}

// Get returns the public configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		Clustering: ClusteringInfo{
			Eps:        h.config.Cluster.Eps,
			MinSamples: h.config.Cluster.MinSamples,
		},
		EmbeddingDim:    h.config.Embedding.Dim,
		TrashRetention:  h.config.Trash.Retention.String(),
		CDNDomain:       h.config.Web.CDNDomain,
		DatabaseEnabled: database.IsInitialized(),
	}

	respondJSON(w, http.StatusOK, response)
}
