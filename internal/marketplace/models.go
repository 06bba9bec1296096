package marketplace

import (
	"time"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
)

// ListingStatus tracks a token's position in the marketplace
type ListingStatus string

const (
	StatusNone      ListingStatus = ""
	StatusListed    ListingStatus = "listed"
	StatusSold      ListingStatus = "sold"
	StatusCancelled ListingStatus = "cancelled"
)

// Listing is a fixed-price offer for one escrowed token
type Listing struct {
	TokenID     ledger.TokenID `json:"token_id"`
	Seller      ledger.Address `json:"seller"`
	Price       uint64         `json:"price"`
	CO2Tonnes   uint64         `json:"co2_tonnes"`
	VintageYear uint64         `json:"vintage_year"`
	ProjectType string         `json:"project_type"`
	ListedAt    time.Time      `json:"listed_at"`
	Active      bool           `json:"active"`
	Status      ListingStatus  `json:"status"`
	Buyer       ledger.Address `json:"buyer,omitempty"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
}

// Config is the marketplace's singleton record
type Config struct {
	registry.Header
	FeeBps      uint64 `json:"fee_bps"`
	TotalVolume uint64 `json:"total_volume"`
	TotalTrades uint64 `json:"total_trades"`
}

// ListRequest carries the listing terms
type ListRequest struct {
	TokenID     ledger.TokenID `json:"token_id"`
	Price       uint64         `json:"price"`
	CO2Tonnes   uint64         `json:"co2_tonnes"`
	VintageYear uint64         `json:"vintage_year"`
	ProjectType string         `json:"project_type"`
}

// Stats summarises trading. Volume is in whole units, VolumeMicro is exact.
type Stats struct {
	Volume      uint64 `json:"volume"`
	VolumeMicro uint64 `json:"volume_micro"`
	Trades      uint64 `json:"trades"`
	FeeBps      uint64 `json:"fee_bps"`
}
