package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/iohub/internal/model"
)

const (
	defaultPresenceLimit = 50
	maxPresenceLimit     = 500
)

// PresenceLister reads the presence journal.
type PresenceLister interface {
	List(ctx context.Context, filter model.PresenceFilter) ([]*model.PresenceEvent, error)
}

// PresenceHandler serves the presence journal.
type PresenceHandler struct {
	journal PresenceLister
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(journal PresenceLister) *PresenceHandler {
	return &PresenceHandler{journal: journal}
}

// PresenceResponse represents a presence event in API responses.
type PresenceResponse struct {
	ID           string `json:"id"`
	Namespace    string `json:"namespace"`
	ConnectionID string `json:"connectionId"`
	Kind         string `json:"kind"`
	Reason       string `json:"reason,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

// List handles GET /api/presence?namespace=&connection=&limit=.
func (h *PresenceHandler) List(c *gin.Context) {
	limit := defaultPresenceLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(n, maxPresenceLimit)
	}

	filter := model.PresenceFilter{
		ConnectionID: c.Query("connection"),
		Limit:        limit,
	}
	if nsp := c.Query("namespace"); nsp != "" {
		filter.Namespace = displayNamespace(nsp)
	}

	events, err := h.journal.List(c.Request.Context(), filter)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list presence events")
		return
	}

	out := make([]PresenceResponse, 0, len(events))
	for _, e := range events {
		out = append(out, PresenceResponse{
			ID:           e.ID,
			Namespace:    e.Namespace,
			ConnectionID: e.ConnectionID,
			Kind:         string(e.Kind),
			Reason:       e.Reason,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

// RegisterRoutes registers the presence routes.
func (h *PresenceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/presence", h.List)
}
