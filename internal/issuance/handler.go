package issuance

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/auth"
	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
)

// Handler handles HTTP requests for the issuance registry
type Handler struct {
	registry *Registry
	authn    *auth.Authenticator
	logger   *zap.Logger
}

// NewHandler creates a new issuance handler
func NewHandler(r *Registry, authn *auth.Authenticator, logger *zap.Logger) *Handler {
	return &Handler{
		registry: r,
		authn:    authn,
		logger:   logger,
	}
}

// RegisterRoutes registers issuance routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	issuance := router.Group("/issuance")
	{
		issuance.GET("/credits/:projectId", h.getCredit)
		issuance.GET("/issuers/:address", h.getIssuer)
		issuance.GET("/stats", h.getStats)

		signed := issuance.Group("", h.authn.RequireCaller())
		signed.POST("/registry", h.createRegistry)
		signed.POST("/issuers", h.registerIssuer)
		signed.POST("/issuers/:address/verify", h.verifyIssuer)
		signed.POST("/credits", h.mintCredit)
		signed.POST("/retirement-authority", h.authorizeRetirement)
	}
}

// createRegistry handles POST /api/v1/issuance/registry
func (h *Handler) createRegistry(c *gin.Context) {
	caller := auth.Caller(c)
	if err := h.registry.CreateRegistry(c.Request.Context(), caller); err != nil {
		registry.WriteError(c, h.logger, "Failed to create issuance registry", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"admin": caller})
}

// registerIssuer handles POST /api/v1/issuance/issuers
func (h *Handler) registerIssuer(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issuer, err := h.registry.RegisterIssuer(c.Request.Context(), auth.Caller(c), req)
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to register issuer", err)
		return
	}
	c.JSON(http.StatusCreated, issuer)
}

// verifyIssuer handles POST /api/v1/issuance/issuers/:address/verify
func (h *Handler) verifyIssuer(c *gin.Context) {
	issuer := ledger.Address(c.Param("address"))
	if err := h.registry.VerifyIssuer(c.Request.Context(), auth.Caller(c), issuer); err != nil {
		registry.WriteError(c, h.logger, "Failed to verify issuer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": issuer, "verified": true})
}

// mintCredit handles POST /api/v1/issuance/credits
func (h *Handler) mintCredit(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.registry.MintCarbonCredit(c.Request.Context(), auth.Caller(c), req)
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to mint carbon credit", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token_id": id, "project_id": req.ProjectID})
}

// authorizeRetirement handles POST /api/v1/issuance/retirement-authority
func (h *Handler) authorizeRetirement(c *gin.Context) {
	var req struct {
		Address ledger.Address `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.AuthorizeRetirement(c.Request.Context(), auth.Caller(c), req.Address); err != nil {
		registry.WriteError(c, h.logger, "Failed to authorize retirement registry", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retirement": req.Address})
}

// getCredit handles GET /api/v1/issuance/credits/:projectId
func (h *Handler) getCredit(c *gin.Context) {
	credit, err := h.registry.GetCredit(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to get credit", err)
		return
	}
	c.JSON(http.StatusOK, credit)
}

// getIssuer handles GET /api/v1/issuance/issuers/:address
func (h *Handler) getIssuer(c *gin.Context) {
	issuer, err := h.registry.GetIssuer(c.Request.Context(), ledger.Address(c.Param("address")))
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to get issuer", err)
		return
	}
	c.JSON(http.StatusOK, issuer)
}

// getStats handles GET /api/v1/issuance/stats
func (h *Handler) getStats(c *gin.Context) {
	total, err := h.registry.GetTotalIssued(c.Request.Context())
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to get issuance stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_credits_issued": total})
}
