// Package app assembles the ledger, the three registries and their HTTP
// surface from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/auth"
	"carbon-scribe/credit-registry/internal/config"
	"carbon-scribe/credit-registry/internal/events"
	"carbon-scribe/credit-registry/internal/issuance"
	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/marketplace"
	"carbon-scribe/credit-registry/internal/retirement"
)

const (
	genesisNamespace = "ledger"
	genesisKey       = "genesis"
)

// App holds the wired services
type App struct {
	Host        *ledger.Host
	Issuance    *issuance.Registry
	Marketplace *marketplace.Registry
	Retirement  *retirement.Registry
	Hub         *events.Hub
	Authn       *auth.Authenticator

	logger *zap.Logger
}

// New wires the registries over backend
func New(cfg *config.Config, backend ledger.Backend, logger *zap.Logger) (*App, error) {
	authn, err := auth.NewAuthenticator(cfg.Security.JWTSecret, cfg.Security.TokenTTL.Duration)
	if err != nil {
		return nil, err
	}
	host := ledger.New(backend, ledger.WithMinFee(cfg.Ledger.MinFee))
	hub := events.NewHub(logger.Named("events"))
	regs := cfg.Registries
	return &App{
		Host:        host,
		Issuance:    issuance.New(host, ledger.Address(regs.IssuanceAddress), logger.Named("issuance"), hub),
		Marketplace: marketplace.New(host, ledger.Address(regs.MarketplaceAddress), logger.Named("marketplace"), hub),
		Retirement:  retirement.New(host, ledger.Address(regs.RetirementAddress), logger.Named("retirement"), hub),
		Hub:         hub,
		Authn:       authn,
		logger:      logger,
	}, nil
}

type genesisRecord struct {
	Grants    map[string]uint64 `json:"grants"`
	AppliedAt time.Time         `json:"applied_at"`
	TxID      string            `json:"tx_id"`
}

// Genesis funds the configured accounts the first time it runs against a
// ledger and does nothing afterwards. It reports whether funds were granted.
func (a *App) Genesis(ctx context.Context, grants map[string]uint64) (bool, error) {
	if len(grants) == 0 {
		return false, nil
	}
	applied := false
	err := a.Host.Atomic(ctx, "", func(tx ledger.Tx) error {
		var existing genesisRecord
		ok, err := tx.Get(genesisNamespace, genesisKey, &existing)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		addrs := make([]string, 0, len(grants))
		for addr := range grants {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			if err := tx.Fund(ledger.Address(addr), grants[addr]); err != nil {
				return fmt.Errorf("failed to fund %s: %w", addr, err)
			}
		}
		applied = true
		return tx.Put(genesisNamespace, genesisKey, genesisRecord{Grants: grants, AppliedAt: tx.Now(), TxID: tx.ID()})
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply genesis: %w", err)
	}
	if applied {
		a.logger.Info("Genesis balances granted", zap.Int("accounts", len(grants)))
	}
	return applied, nil
}

// Router builds the HTTP surface
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), a.requestLogger(), cors())

	api := router.Group("/api/v1")
	{
		auth.NewHandler(a.Authn).RegisterRoutes(api)
		issuance.NewHandler(a.Issuance, a.Authn, a.logger).RegisterRoutes(api)
		marketplace.NewHandler(a.Marketplace, a.Authn, a.logger).RegisterRoutes(api)
		retirement.NewHandler(a.Retirement, a.Authn, a.logger).RegisterRoutes(api)
		events.NewHandler(a.Hub, a.logger).RegisterRoutes(api)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now().UTC(),
			"subscribers": a.Hub.Count(),
		})
	})
	return router
}

// Close disconnects subscribers and releases the ledger
func (a *App) Close() error {
	a.Hub.Close()
	return a.Host.Close()
}

func (a *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
