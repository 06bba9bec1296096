package retirement

import (
	"time"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
)

// Certificate is the permanent public proof that a credit was retired
type Certificate struct {
	TokenID        ledger.TokenID `json:"token_id"`
	Company        ledger.Address `json:"company"`
	CompanyName    string         `json:"company_name,omitempty"`
	CO2Tonnes      uint64         `json:"co2_tonnes"`
	RetiredAt      time.Time      `json:"retired_at"`
	Proof          string         `json:"proof"`
	CertificateURI string         `json:"certificate_uri,omitempty"`
}

// Config is the registry's singleton record
type Config struct {
	registry.Header
	TotalTonnesRetired uint64 `json:"total_tonnes_retired"`
	TotalRetirements   uint64 `json:"total_retirements"`
}

// RetireRequest represents a company's claim against one credit
type RetireRequest struct {
	TokenID         ledger.TokenID `json:"token_id"`
	CompanyName     string         `json:"company_name"`
	CO2Tonnes       uint64         `json:"co2_tonnes"`
	IPFSCertificate string         `json:"ipfs_certificate"`
}

// GlobalStats is the offset total across every retirement
type GlobalStats struct {
	TotalTonnesRetired uint64 `json:"total_tonnes_retired"`
	TotalRetirements   uint64 `json:"total_retirements"`
}
