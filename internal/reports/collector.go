// Package reports builds periodic statistics workbooks from the three
// registries and delivers them to object storage.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/marketplace"
	"carbon-scribe/credit-registry/internal/retirement"
)

// IssuanceSource reports the number of credits ever minted
type IssuanceSource interface {
	GetTotalIssued(ctx context.Context) (uint64, error)
}

// MarketplaceSource reports trading volume
type MarketplaceSource interface {
	GetStats(ctx context.Context) (marketplace.Stats, error)
}

// RetirementSource reports retired tonnage
type RetirementSource interface {
	GetGlobalStats(ctx context.Context) (retirement.GlobalStats, error)
}

// Snapshot is one reading of every registry's counters
type Snapshot struct {
	TakenAt            time.Time              `json:"taken_at"`
	TotalCreditsIssued uint64                 `json:"total_credits_issued"`
	Marketplace        marketplace.Stats      `json:"marketplace"`
	Retirement         retirement.GlobalStats `json:"retirement"`
}

// Collector reads the registries concurrently
type Collector struct {
	issuance    IssuanceSource
	marketplace MarketplaceSource
	retirement  RetirementSource
	pool        pond.Pool
	logger      *zap.Logger
	now         func() time.Time
}

// NewCollector creates a collector backed by a small worker pool
func NewCollector(iss IssuanceSource, market MarketplaceSource, ret RetirementSource, logger *zap.Logger) *Collector {
	return &Collector{
		issuance:    iss,
		marketplace: market,
		retirement:  ret,
		pool:        pond.NewPool(3),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Collect takes a snapshot. It fails if any registry cannot be read.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{TakenAt: c.now()}
	group := c.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	group.SubmitErr(func() error {
		v, err := c.issuance.GetTotalIssued(groupCtx)
		if err != nil {
			return fmt.Errorf("issuance: %w", err)
		}
		snap.TotalCreditsIssued = v
		return nil
	})
	group.SubmitErr(func() error {
		v, err := c.marketplace.GetStats(groupCtx)
		if err != nil {
			return fmt.Errorf("marketplace: %w", err)
		}
		snap.Marketplace = v
		return nil
	})
	group.SubmitErr(func() error {
		v, err := c.retirement.GetGlobalStats(groupCtx)
		if err != nil {
			return fmt.Errorf("retirement: %w", err)
		}
		snap.Retirement = v
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect registry stats: %w", err)
	}
	c.logger.Debug("Registry stats collected",
		zap.Uint64("credits_issued", snap.TotalCreditsIssued),
		zap.Uint64("trades", snap.Marketplace.Trades),
		zap.Uint64("retirements", snap.Retirement.TotalRetirements),
	)
	return snap, nil
}

// Close stops the worker pool after queued reads finish
func (c *Collector) Close() {
	c.pool.StopAndWait()
}
