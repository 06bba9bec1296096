// Package retirement burns credits for good and keeps the public record of
// every offset claim.
package retirement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
)

const Namespace = "retirement"

func certificateKey(id ledger.TokenID) string { return "certificate/" + id.String() }

// Registry implements the retirement operations over a ledger
type Registry struct {
	ledger    ledger.Ledger
	address   ledger.Address
	logger    *zap.Logger
	publisher registry.Publisher
}

// New creates the retirement registry whose application account is address
func New(l ledger.Ledger, address ledger.Address, logger *zap.Logger, publisher registry.Publisher) *Registry {
	if publisher == nil {
		publisher = registry.NopPublisher{}
	}
	return &Registry{
		ledger:    l,
		address:   address,
		logger:    logger,
		publisher: publisher,
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
		return fmt.Errorf("failed to create retirement registry: %w", err)
	}
	r.logger.Info("Retirement registry created", zap.String("admin", string(caller)))
	return nil
}

// RetireCredit pulls caller's unit of req.TokenID, destroys the token and
// writes the certificate. authorization, when given, is the holder's approval
// for this registry and is granted in the same operation; otherwise an
// approval must already be on the ledger. Returns the retirement time in
// unix seconds.
//
// There is no duplicate guard here: a retired token no longer exists, so a
// second retirement of it fails in custody.
func (r *Registry) RetireCredit(ctx context.Context, caller ledger.Address, authorization *ledger.Approval, req RetireRequest) (int64, error) {
	var cert Certificate
	var txID string
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		s := registry.NewScope(tx, Namespace)
		var cfg Config
		if err := registry.LoadConfig(s, &cfg); err != nil {
			return err
		}
		if req.CO2Tonnes == 0 {
			return fmt.Errorf("%w: co2_tonnes must be positive", registry.ErrInvalidQuantity)
		}

		if authorization != nil {
			want := ledger.Approval{TokenID: req.TokenID, Holder: caller, Operator: r.address}
			if *authorization != want {
				return fmt.Errorf("%w: authorization must let %s pull token %s from %s", registry.ErrCustodyError, r.address, req.TokenID, caller)
			}
			if err := tx.Approve(want); err != nil {
				return fmt.Errorf("%w: %w", registry.ErrCustodyError, err)
			}
		}
		if err := tx.TransferToken(r.address, ledger.AssetTransfer{
			TokenID: req.TokenID,
			From:    caller,
			To:      r.address,
			Amount:  1,
		}); err != nil {
			return fmt.Errorf("%w: pull failed: %w", registry.ErrCustodyError, err)
		}
		if err := tx.DestroyToken(r.address, req.TokenID); err != nil {
			return fmt.Errorf("%w: destroy failed: %w", registry.ErrCustodyError, err)
		}

		cert = Certificate{
			TokenID:        req.TokenID,
			Company:        caller,
			CompanyName:    req.CompanyName,
			CO2Tonnes:      req.CO2Tonnes,
			RetiredAt:      tx.Now(),
			Proof:          tx.ID(),
			CertificateURI: certificateURI(req.IPFSCertificate),
		}
		if err := s.Put(certificateKey(req.TokenID), cert); err != nil {
			return err
		}

		var err error
		if cfg.TotalTonnesRetired, err = registry.AddUint64(cfg.TotalTonnesRetired, req.CO2Tonnes); err != nil {
			return err
		}
		if cfg.TotalRetirements, err = registry.AddUint64(cfg.TotalRetirements, 1); err != nil {
			return err
		}
		txID = tx.ID()
		return registry.SaveConfig(s, cfg)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to retire credit: %w", err)
	}

	registry.Notify(r.publisher, r.logger, registry.Event{
		Kind:     registry.EventCreditRetired,
		Registry: Namespace,
		TokenID:  cert.TokenID,
		Actor:    caller,
		Amount:   cert.CO2Tonnes,
		At:       cert.RetiredAt,
		TxID:     txID,
	})
	return cert.RetiredAt.Unix(), nil
}

func certificateURI(hash string) string {
	if hash == "" {
		return ""
	}
	return "ipfs://" + hash
}

// VerifyRetirement returns the certificate for tokenID
func (r *Registry) VerifyRetirement(ctx context.Context, tokenID ledger.TokenID) (*Certificate, error) {
	var cert Certificate
	err := r.ledger.View(ctx, func(tx ledger.Tx) error {
		ok, err := registry.NewScope(tx, Namespace).Get(certificateKey(tokenID), &cert)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: no retirement for token %s", registry.ErrNotFound, tokenID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// GetGlobalStats returns total tonnes retired and the number of retirements
func (r *Registry) GetGlobalStats(ctx context.Context) (GlobalStats, error) {
	var cfg Config
	err := r.ledger.View(ctx, func(tx ledger.Tx) error {
		return registry.LoadConfig(registry.NewScope(tx, Namespace), &cfg)
	})
	if err != nil {
		return GlobalStats{}, err
	}
	return GlobalStats{
		TotalTonnesRetired: cfg.TotalTonnesRetired,
		TotalRetirements:   cfg.TotalRetirements,
	}, nil
}
