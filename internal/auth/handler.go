package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authn *Authenticator
}

func NewHandler(authn *Authenticator) *Handler {
	return &Handler{authn: authn}
}

// RegisterRoutes registers auth routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	authGroup := router.Group("/auth")
	{
		authGroup.GET("/ping", h.Ping)
		authGroup.GET("/me", h.authn.RequireCaller(), h.Me)
	}
}

// Ping endpoint
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "auth service alive!"})
}

// Me returns the address the bearer token names
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"address": Caller(c)})
}
