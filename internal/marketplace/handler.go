package marketplace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/auth"
	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
)

// Handler handles HTTP requests for the marketplace
type Handler struct {
	registry *Registry
	authn    *auth.Authenticator
	logger   *zap.Logger
}

// NewHandler creates a new marketplace handler
func NewHandler(r *Registry, authn *auth.Authenticator, logger *zap.Logger) *Handler {
	return &Handler{
		registry: r,
		authn:    authn,
		logger:   logger,
	}
}

// CreateRequest configures a new marketplace
type CreateRequest struct {
	FeeBps uint64 `json:"fee_bps"`
}

// ListCreditRequest bundles the escrow deposit with the listing terms
type ListCreditRequest struct {
	Deposit ledger.AssetTransfer `json:"deposit"`
	Listing ListRequest          `json:"listing"`
}

// BuyCreditRequest carries the buyer's payment
type BuyCreditRequest struct {
	Payment ledger.Payment `json:"payment"`
}

// RegisterRoutes registers marketplace routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	market := router.Group("/marketplace")
	{
		market.GET("/listings/:tokenId", h.getListing)
		market.GET("/stats", h.getStats)

		signed := market.Group("", h.authn.RequireCaller())
		signed.POST("", h.createMarketplace)
		signed.POST("/listings", h.listCredit)
		signed.POST("/listings/:tokenId/buy", h.buyCredit)
		signed.DELETE("/listings/:tokenId", h.cancelListing)
	}
}

func (h *Handler) tokenID(c *gin.Context) (ledger.TokenID, bool) {
	id, err := ledger.ParseTokenID(c.Param("tokenId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token ID"})
		return 0, false
	}
	return id, true
}

// createMarketplace handles POST /api/v1/marketplace
func (h *Handler) createMarketplace(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := auth.Caller(c)
	if err := h.registry.CreateMarketplace(c.Request.Context(), caller, req.FeeBps); err != nil {
		registry.WriteError(c, h.logger, "Failed to create marketplace", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"admin": caller, "fee_bps": req.FeeBps})
}

// listCredit handles POST /api/v1/marketplace/listings
func (h *Handler) listCredit(c *gin.Context) {
	var req ListCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.registry.ListCredit(ctx, auth.Caller(c), req.Deposit, req.Listing); err != nil {
		registry.WriteError(c, h.logger, "Failed to list credit", err)
		return
	}
	listing, err := h.registry.GetListing(ctx, req.Listing.TokenID)
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to load listing", err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// buyCredit handles POST /api/v1/marketplace/listings/:tokenId/buy
func (h *Handler) buyCredit(c *gin.Context) {
	id, ok := h.tokenID(c)
	if !ok {
		return
	}
	var req BuyCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.BuyCredit(c.Request.Context(), auth.Caller(c), req.Payment, id); err != nil {
		registry.WriteError(c, h.logger, "Failed to buy credit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": id, "status": StatusSold})
}

// cancelListing handles DELETE /api/v1/marketplace/listings/:tokenId
func (h *Handler) cancelListing(c *gin.Context) {
	id, ok := h.tokenID(c)
	if !ok {
		return
	}
	if err := h.registry.CancelListing(c.Request.Context(), auth.Caller(c), id); err != nil {
		registry.WriteError(c, h.logger, "Failed to cancel listing", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": id, "status": StatusCancelled})
}

// getListing handles GET /api/v1/marketplace/listings/:tokenId
func (h *Handler) getListing(c *gin.Context) {
	id, ok := h.tokenID(c)
	if !ok {
		return
	}
	listing, err := h.registry.GetListing(c.Request.Context(), id)
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to get listing", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// getStats handles GET /api/v1/marketplace/stats
func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.registry.GetStats(c.Request.Context())
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to get marketplace stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
