package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/iohub/internal/host"
	"github.com/remote-agent-terminal/iohub/internal/model"
)

// StatusHandler reports the namespaces and connections of a host.
type StatusHandler struct {
	app *host.App
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(app *host.App) *StatusHandler {
	return &StatusHandler{app: app}
}

// NamespaceResponse describes one published namespace.
type NamespaceResponse struct {
	Namespace   string `json:"namespace"`
	Connections int    `json:"connections"`
}

// ConnectionsResponse lists the connections of one namespace.
type ConnectionsResponse struct {
	Namespace   string   `json:"namespace"`
	Connections []string `json:"connections"`
}

// ListNamespaces handles GET /api/namespaces. Hidden namespaces are never
// published, so they do not appear.
func (h *StatusHandler) ListNamespaces(c *gin.Context) {
	registries := h.app.Namespaces()
	out := make([]NamespaceResponse, 0, len(registries))
	for _, r := range registries {
		out = append(out, NamespaceResponse{
			Namespace:   displayNamespace(r.Namespace()),
			Connections: r.Size(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// ListConnections handles GET /api/connections?namespace=.
func (h *StatusHandler) ListConnections(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ConnectionsResponse{
		Namespace:   displayNamespace(r.Namespace()),
		Connections: r.ConnectionIDs(),
	})
}

// Disconnect handles DELETE /api/connections/:id?namespace=.
func (h *StatusHandler) Disconnect(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := r.Disconnect(id); err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			sendError(c, http.StatusNotFound, "CONNECTION_NOT_FOUND", "Connection not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to disconnect")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *StatusHandler) lookup(c *gin.Context) (host.Registry, bool) {
	name := strings.TrimPrefix(c.Query("namespace"), "/")
	r, ok := h.app.Lookup(name)
	if !ok {
		sendError(c, http.StatusNotFound, "NAMESPACE_NOT_FOUND", "Namespace not found")
		return nil, false
	}
	return r, true
}

// RegisterRoutes registers the status routes. Namespace socket ids contain
// "/" and "#", so the engine should set UseRawPath for DELETE to match them
// in escaped form.
func (h *StatusHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/namespaces", h.ListNamespaces)
	rg.GET("/connections", h.ListConnections)
	rg.DELETE("/connections/:id", h.Disconnect)
}

func displayNamespace(name string) string {
	return "/" + strings.TrimPrefix(name, "/")
}
