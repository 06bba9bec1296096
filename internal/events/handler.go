package events

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the event stream over HTTP
type Handler struct {
	hub    *Hub
	logger *zap.Logger
}

// NewHandler creates a new events handler
func NewHandler(hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// RegisterRoutes registers event routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.subscribe)
	router.GET("/events/stats", h.stats)
}

// subscribe handles GET /api/v1/events
func (h *Handler) subscribe(c *gin.Context) {
	filter, err := ParseFilter(c.Query("registry"), c.Query("token_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token_id"})
		return
	}
	if _, err := h.hub.Subscribe(c.Writer, c.Request, filter); err != nil {
		// the upgrader has already answered the client
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
	}
}

// stats handles GET /api/v1/events/stats
func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscribers": h.hub.Count()})
}
