package issuance

import (
	"time"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
)

// IssuerStatus is the lifecycle position of an issuer
type IssuerStatus string

const (
	IssuerUnregistered IssuerStatus = ""
	IssuerRegistered   IssuerStatus = "registered"
	IssuerVerified     IssuerStatus = "verified"
)

// Issuer is an organisation allowed to register projects once verified
type Issuer struct {
	Address              ledger.Address `json:"address"`
	Name                 string         `json:"name"`
	Country              string         `json:"country"`
	VerificationStandard string         `json:"verification_standard"`
	Status               IssuerStatus   `json:"status"`
	Verified             bool           `json:"verified"`
	CreditsIssued        uint64         `json:"credits_issued"`
	RegisteredAt         time.Time      `json:"registered_at"`
	VerifiedAt           *time.Time     `json:"verified_at,omitempty"`
}

// Credit is the immutable record of one minted project
type Credit struct {
	ProjectID   string         `json:"project_id"`
	TokenID     ledger.TokenID `json:"token_id"`
	Issuer      ledger.Address `json:"issuer"`
	ProjectName string         `json:"project_name"`
	Location    string         `json:"location"`
	ProjectType string         `json:"project_type"`
	IPFSHash    string         `json:"ipfs_hash"`
	CO2Tonnes   uint64         `json:"co2_tonnes"`
	VintageYear uint64         `json:"vintage_year"`
	IssuedAt    time.Time      `json:"issued_at"`
}

// Config is the registry's singleton record
type Config struct {
	registry.Header
	TotalCreditsIssued uint64 `json:"total_credits_issued"`
}

// RegisterRequest represents a self-registration
type RegisterRequest struct {
	Name                 string `json:"name" binding:"required"`
	Country              string `json:"country"`
	VerificationStandard string `json:"verification_standard"`
}

// MintRequest represents a request to mint one project's credit
type MintRequest struct {
	ProjectID   string `json:"project_id" binding:"required"`
	ProjectName string `json:"project_name"`
	Location    string `json:"location"`
	CO2Tonnes   uint64 `json:"co2_tonnes"`
	VintageYear uint64 `json:"vintage_year"`
	ProjectType string `json:"project_type"`
	IPFSHash    string `json:"ipfs_hash"`
}

// IssuerStats is the public summary of an issuer
type IssuerStats struct {
	Verified      bool   `json:"verified"`
	CreditsIssued uint64 `json:"credits_issued"`
}
