// Package issuance is the credit issuance registry. Issuers register, the
// admin verifies them, and verified issuers mint one unique token per project.
package issuance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
	"carbon-scribe/credit-registry/pkg/workflows"
)

const (
	Namespace = "issuance"

	// UnitName is the unit every credit token carries.
	UnitName = "CCT"
	// MinVintageYear is the earliest accepted vintage.
	MinVintageYear = 2000
	// MaxProjectIDLength bounds project ids, which are record keys.
	MaxProjectIDLength = 64
)

func issuerKey(addr ledger.Address) string { return "issuer/" + string(addr) }
func creditKey(projectID string) string    { return "credit/" + projectID }

// Registry implements the issuance operations over a ledger
type Registry struct {
	ledger    ledger.Ledger
	address   ledger.Address
	logger    *zap.Logger
	publisher registry.Publisher
	lifecycle *workflows.StateMachine[IssuerStatus]
}

// New creates the issuance registry whose application account is address
func New(l ledger.Ledger, address ledger.Address, logger *zap.Logger, publisher registry.Publisher) *Registry {
	if publisher == nil {
		publisher = registry.NopPublisher{}
	}
	return &Registry{
		ledger:    l,
		address:   address,
		logger:    logger,
		publisher: publisher,
		lifecycle: workflows.NewStateMachine("issuer", map[IssuerStatus][]IssuerStatus{
			IssuerRegistered: {IssuerVerified},
			IssuerVerified:   {IssuerVerified},
		}),
	}
}

// Address returns the registry's application account
func (r *Registry) Address() ledger.Address {
	return r.address
}

// CreateRegistry makes caller the permanent admin
func (r *Registry) CreateRegistry(ctx context.Context, caller ledger.Address) error {
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		return registry.InitConfig(registry.NewScope(tx, Namespace), Config{
			Header: registry.Header{Admin: caller, CreatedAt: tx.Now()},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create issuance registry: %w", err)
	}
	r.logger.Info("Issuance registry created", zap.String("admin", string(caller)))
	return nil
}

// RegisterIssuer creates or overwrites caller's issuer record as unverified
// with no credits
func (r *Registry) RegisterIssuer(ctx context.Context, caller ledger.Address, req RegisterRequest) (*Issuer, error) {
	var issuer Issuer
	var txID string
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		s := registry.NewScope(tx, Namespace)
		var cfg Config
		if err := registry.LoadConfig(s, &cfg); err != nil {
			return err
		}
		issuer = Issuer{
			Address:              caller,
			Name:                 req.Name,
			Country:              req.Country,
			VerificationStandard: req.VerificationStandard,
			Status:               IssuerRegistered,
			RegisteredAt:         tx.Now(),
		}
		txID = tx.ID()
		return s.Put(issuerKey(caller), issuer)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register issuer: %w", err)
	}

	registry.Notify(r.publisher, r.logger, registry.Event{
		Kind:     registry.EventIssuerRegistered,
		Registry: Namespace,
		Actor:    caller,
		At:       issuer.RegisteredAt,
		TxID:     txID,
	})
	return &issuer, nil
}

// VerifyIssuer marks a registered issuer verified. Admin only; verifying twice
// is a no-op success.
func (r *Registry) VerifyIssuer(ctx context.Context, caller, issuerAddr ledger.Address) error {
	var ev registry.Event
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		s := registry.NewScope(tx, Namespace)
		var cfg Config
		if err := registry.LoadConfig(s, &cfg); err != nil {
			return err
		}
		if !cfg.IsAdmin(caller) {
			return fmt.Errorf("%w: admin only", registry.ErrUnauthorized)
		}

		var issuer Issuer
		ok, err := s.Get(issuerKey(issuerAddr), &issuer)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: issuer %s", registry.ErrNotFound, issuerAddr)
		}
		if err := r.lifecycle.Transition(issuer.Status, IssuerVerified); err != nil {
			return err
		}
		if issuer.Verified {
			return nil
		}

		now := tx.Now()
		issuer.Status = IssuerVerified
		issuer.Verified = true
		issuer.VerifiedAt = &now
		ev = registry.Event{
			Kind:     registry.EventIssuerVerified,
			Registry: Namespace,
			Actor:    issuerAddr,
			At:       now,
			TxID:     tx.ID(),
		}
		return s.Put(issuerKey(issuerAddr), issuer)
	})
	if err != nil {
		return fmt.Errorf("failed to verify issuer: %w", err)
	}
	if ev.Kind != "" {
		registry.Notify(r.publisher, r.logger, ev)
	}
	return nil
}

// MintCarbonCredit creates the project's token, credited to caller, and its
// credit record. Token, record and both counters commit together.
func (r *Registry) MintCarbonCredit(ctx context.Context, caller ledger.Address, req MintRequest) (ledger.TokenID, error) {
	var credit Credit
	var txID string
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		s := registry.NewScope(tx, Namespace)
		var cfg Config
		if err := registry.LoadConfig(s, &cfg); err != nil {
			return err
		}

		var issuer Issuer
		ok, err := s.Get(issuerKey(caller), &issuer)
		if err != nil {
			return err
		}
		if !ok || !issuer.Verified {
			return fmt.Errorf("%w: %s", registry.ErrNotVerified, caller)
		}
		if req.ProjectID == "" || len(req.ProjectID) > MaxProjectIDLength {
			return fmt.Errorf("%w: must be 1-%d bytes", registry.ErrInvalidProjectID, MaxProjectIDLength)
		}
		var existing Credit
		ok, err = s.Get(creditKey(req.ProjectID), &existing)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: %s", registry.ErrDuplicateProject, req.ProjectID)
		}
		if req.CO2Tonnes == 0 {
			return fmt.Errorf("%w: co2_tonnes must be positive", registry.ErrInvalidQuantity)
		}
		if req.VintageYear < MinVintageYear {
			return fmt.Errorf("%w: %d is before %d", registry.ErrInvalidVintage, req.VintageYear, MinVintageYear)
		}

		id, err := tx.CreateToken(r.address, ledger.TokenSpec{
			Name:      req.ProjectName,
			UnitName:  UnitName,
			URL:       "ipfs://" + req.IPFSHash,
			Owner:     caller,
			Authority: r.address,
			Metadata: map[string]string{
				"project_id":   req.ProjectID,
				"location":     req.Location,
				"project_type": req.ProjectType,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create credit token: %w", err)
		}

		credit = Credit{
			ProjectID:   req.ProjectID,
			TokenID:     id,
			Issuer:      caller,
			ProjectName: req.ProjectName,
			Location:    req.Location,
			ProjectType: req.ProjectType,
			IPFSHash:    req.IPFSHash,
			CO2Tonnes:   req.CO2Tonnes,
			VintageYear: req.VintageYear,
			IssuedAt:    tx.Now(),
		}
		if err := s.Put(creditKey(req.ProjectID), credit); err != nil {
			return err
		}

		if issuer.CreditsIssued, err = registry.AddUint64(issuer.CreditsIssued, 1); err != nil {
			return err
		}
		if err := s.Put(issuerKey(caller), issuer); err != nil {
			return err
		}
		if cfg.TotalCreditsIssued, err = registry.AddUint64(cfg.TotalCreditsIssued, 1); err != nil {
			return err
		}
		txID = tx.ID()
		return registry.SaveConfig(s, cfg)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mint carbon credit: %w", err)
	}

	registry.Notify(r.publisher, r.logger, registry.Event{
		Kind:     registry.EventCreditMinted,
		Registry: Namespace,
		TokenID:  credit.TokenID,
		Actor:    caller,
		Amount:   credit.CO2Tonnes,
		At:       credit.IssuedAt,
		TxID:     txID,
	})
	return credit.TokenID, nil
}

// AuthorizeRetirement lets the retirement registry at retirementAddr exercise
// this registry's authority over credit tokens, so it can destroy the tokens
// holders surrender to it. Admin only.
func (r *Registry) AuthorizeRetirement(ctx context.Context, caller, retirementAddr ledger.Address) error {
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		var cfg Config
		if err := registry.LoadConfig(registry.NewScope(tx, Namespace), &cfg); err != nil {
			return err
		}
		if !cfg.IsAdmin(caller) {
			return fmt.Errorf("%w: admin only", registry.ErrUnauthorized)
		}
		return tx.Delegate(r.address, retirementAddr)
	})
	if err != nil {
		return fmt.Errorf("failed to authorize retirement registry: %w", err)
	}
	r.logger.Info("Retirement registry authorized", zap.String("retirement", string(retirementAddr)))
	return nil
}

// GetCredit returns the credit record for projectID
func (r *Registry) GetCredit(ctx context.Context, projectID string) (*Credit, error) {
	var credit Credit
	err := r.ledger.View(ctx, func(tx ledger.Tx) error {
		ok, err := registry.NewScope(tx, Namespace).Get(creditKey(projectID), &credit)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: project %s", registry.ErrNotFound, projectID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

// GetCreditAssetID returns the token minted for projectID
func (r *Registry) GetCreditAssetID(ctx context.Context, projectID string) (ledger.TokenID, error) {
	credit, err := r.GetCredit(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return credit.TokenID, nil
}

// GetIssuer returns the full issuer record
func (r *Registry) GetIssuer(ctx context.Context, addr ledger.Address) (*Issuer, error) {
	var issuer Issuer
	err := r.ledger.View(ctx, func(tx ledger.Tx) error {
		ok, err := registry.NewScope(tx, Namespace).Get(issuerKey(addr), &issuer)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: issuer %s", registry.ErrNotFound, addr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &issuer, nil
}

// GetIssuerStats returns whether addr is verified and how many credits it
// minted. Unknown identities report (false, 0).
func (r *Registry) GetIssuerStats(ctx context.Context, addr ledger.Address) (IssuerStats, error) {
	var stats IssuerStats
	err := r.ledger.View(ctx, func(tx ledger.Tx) error {
		var issuer Issuer
		ok, err := registry.NewScope(tx, Namespace).Get(issuerKey(addr), &issuer)
		if err != nil || !ok {
			return err
		}
		stats = IssuerStats{Verified: issuer.Verified, CreditsIssued: issuer.CreditsIssued}
		return nil
	})
	return stats, err
}

// GetTotalIssued returns the number of credits ever minted
func (r *Registry) GetTotalIssued(ctx context.Context) (uint64, error) {
	var cfg Config
	err := r.ledger.View(ctx, func(tx ledger.Tx) error {
		return registry.LoadConfig(registry.NewScope(tx, Namespace), &cfg)
	})
	if err != nil {
		return 0, err
	}
	return cfg.TotalCreditsIssued, nil
}
