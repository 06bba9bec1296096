package retirement

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/auth"
	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
)

// Handler handles HTTP requests for the retirement registry
type Handler struct {
	registry *Registry
	authn    *auth.Authenticator
	logger   *zap.Logger
	options  CertificateOptions
}

// NewHandler creates a new retirement handler
func NewHandler(r *Registry, authn *auth.Authenticator, logger *zap.Logger) *Handler {
	return &Handler{
		registry: r,
		authn:    authn,
		logger:   logger,
		options:  DefaultCertificateOptions(),
	}
}

// RetireCreditRequest carries the retirement claim and, optionally, the
// holder's approval for the registry to pull the token
type RetireCreditRequest struct {
	Authorization *ledger.Approval `json:"authorization,omitempty"`
	Retirement    RetireRequest    `json:"retirement"`
}

// RetireCreditResponse reports a completed retirement
type RetireCreditResponse struct {
	TokenID   ledger.TokenID `json:"token_id"`
	RetiredAt int64          `json:"retired_at"`
}

// RegisterRoutes registers retirement routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	retirement := router.Group("/retirement")
	{
		retirement.GET("/retirements/:tokenId", h.verifyRetirement)
		retirement.GET("/retirements/:tokenId/certificate.pdf", h.downloadCertificate)
		retirement.GET("/stats", h.getGlobalStats)

		signed := retirement.Group("", h.authn.RequireCaller())
		signed.POST("/registry", h.createRegistry)
		signed.POST("/retirements", h.retireCredit)
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

// createRegistry handles POST /api/v1/retirement/registry
func (h *Handler) createRegistry(c *gin.Context) {
	caller := auth.Caller(c)
	if err := h.registry.CreateRegistry(c.Request.Context(), caller); err != nil {
		registry.WriteError(c, h.logger, "Failed to create retirement registry", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"admin": caller})
}

// retireCredit handles POST /api/v1/retirement/retirements
func (h *Handler) retireCredit(c *gin.Context) {
	var req RetireCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	retiredAt, err := h.registry.RetireCredit(c.Request.Context(), auth.Caller(c), req.Authorization, req.Retirement)
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to retire credit", err)
		return
	}
	c.JSON(http.StatusCreated, RetireCreditResponse{TokenID: req.Retirement.TokenID, RetiredAt: retiredAt})
}

// verifyRetirement handles GET /api/v1/retirement/retirements/:tokenId
func (h *Handler) verifyRetirement(c *gin.Context) {
	id, ok := h.tokenID(c)
	if !ok {
		return
	}
	cert, err := h.registry.VerifyRetirement(c.Request.Context(), id)
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to verify retirement", err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

// downloadCertificate handles GET /api/v1/retirement/retirements/:tokenId/certificate.pdf
func (h *Handler) downloadCertificate(c *gin.Context) {
	id, ok := h.tokenID(c)
	if !ok {
		return
	}
	pdf, err := h.registry.RenderCertificate(c.Request.Context(), id, h.options)
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to render certificate", err)
		return
	}
	c.Header("Content-Disposition", "inline; filename=retirement-"+id.String()+".pdf")
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// getGlobalStats handles GET /api/v1/retirement/stats
func (h *Handler) getGlobalStats(c *gin.Context) {
	stats, err := h.registry.GetGlobalStats(c.Request.Context())
	if err != nil {
		registry.WriteError(c, h.logger, "Failed to get retirement stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
