// Package marketplace is the fixed-price escrow marketplace. Sellers deposit
// a credit token with the listing; buyers pay the exact price and the
// registry settles seller, platform fee and token in one operation.
package marketplace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
	"carbon-scribe/credit-registry/pkg/workflows"
)

const Namespace = "marketplace"

func listingKey(id ledger.TokenID) string { return "listing/" + id.String() }

// Registry implements the marketplace operations over a ledger
type Registry struct {
	ledger    ledger.Ledger
	address   ledger.Address
	logger    *zap.Logger
	publisher registry.Publisher
	lifecycle *workflows.StateMachine[ListingStatus]
}

// New creates the marketplace whose escrow account is address
func New(l ledger.Ledger, address ledger.Address, logger *zap.Logger, publisher registry.Publisher) *Registry {
	if publisher == nil {
		publisher = registry.NopPublisher{}
	}
	return &Registry{
		ledger:    l,
		address:   address,
		logger:    logger,
		publisher: publisher,
		lifecycle: workflows.NewStateMachine("listing", map[ListingStatus][]ListingStatus{
			StatusNone:      {StatusListed},
			StatusListed:    {StatusSold, StatusCancelled},
			StatusSold:      {StatusListed},
			StatusCancelled: {StatusListed},
		}),
	}
}

// Address returns the escrow account
func (r *Registry) Address() ledger.Address {
	return r.address
}

// CreateMarketplace makes caller the permanent admin and fee recipient
func (r *Registry) CreateMarketplace(ctx context.Context, caller ledger.Address, feeBps uint64) error {
	if feeBps > BasisPoints {
		return fmt.Errorf("failed to create marketplace: %w: %d bps exceeds %d", registry.ErrInvalidFee, feeBps, BasisPoints)
	}
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		return registry.InitConfig(registry.NewScope(tx, Namespace), Config{
			Header: registry.Header{Admin: caller, CreatedAt: tx.Now()},
			FeeBps: feeBps,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create marketplace: %w", err)
	}
	r.logger.Info("Marketplace created", zap.String("admin", string(caller)), zap.Uint64("fee_bps", feeBps))
	return nil
}

// ListCredit executes the seller's escrow deposit and records the listing.
// The deposit must move exactly one unit of req.TokenID from caller to the
// marketplace.
func (r *Registry) ListCredit(ctx context.Context, caller ledger.Address, deposit ledger.AssetTransfer, req ListRequest) error {
	var listing Listing
	var txID string
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		s := registry.NewScope(tx, Namespace)
		var cfg Config
		if err := registry.LoadConfig(s, &cfg); err != nil {
			return err
		}
		if req.Price == 0 {
			return fmt.Errorf("%w: price must be positive", registry.ErrInvalidPrice)
		}
		switch {
		case deposit.To != r.address:
			return fmt.Errorf("%w: deposit must go to %s", registry.ErrEscrowMismatch, r.address)
		case deposit.TokenID != req.TokenID:
			return fmt.Errorf("%w: deposit is token %s, listing token %s", registry.ErrEscrowMismatch, deposit.TokenID, req.TokenID)
		case deposit.Amount != 1:
			return fmt.Errorf("%w: deposit must be exactly 1 unit", registry.ErrEscrowMismatch)
		case deposit.From != caller:
			return fmt.Errorf("%w: deposit sender is not the caller", registry.ErrEscrowMismatch)
		}
		if err := tx.TransferToken(caller, deposit); err != nil {
			return fmt.Errorf("%w: %w", registry.ErrEscrowMismatch, err)
		}

		var previous Listing
		if _, err := s.Get(listingKey(req.TokenID), &previous); err != nil {
			return err
		}
		if err := r.lifecycle.Transition(previous.Status, StatusListed); err != nil {
			return err
		}

		listing = Listing{
			TokenID:     req.TokenID,
			Seller:      caller,
			Price:       req.Price,
			CO2Tonnes:   req.CO2Tonnes,
			VintageYear: req.VintageYear,
			ProjectType: req.ProjectType,
			ListedAt:    tx.Now(),
			Active:      true,
			Status:      StatusListed,
		}
		txID = tx.ID()
		return s.Put(listingKey(req.TokenID), listing)
	})
	if err != nil {
		return fmt.Errorf("failed to list credit: %w", err)
	}

	registry.Notify(r.publisher, r.logger, registry.Event{
		Kind:     registry.EventCreditListed,
		Registry: Namespace,
		TokenID:  listing.TokenID,
		Actor:    caller,
		Amount:   listing.Price,
		At:       listing.ListedAt,
		TxID:     txID,
	})
	return nil
}

// BuyCredit collects the buyer's payment and settles the sale: seller payout,
// platform fee, token to the buyer, listing closed, counters advanced. Either
// every effect happens or none does.
func (r *Registry) BuyCredit(ctx context.Context, caller ledger.Address, payment ledger.Payment, tokenID ledger.TokenID) error {
	var listing Listing
	var txID string
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		s := registry.NewScope(tx, Namespace)
		var cfg Config
		if err := registry.LoadConfig(s, &cfg); err != nil {
			return err
		}
		ok, err := s.Get(listingKey(tokenID), &listing)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: listing for token %s", registry.ErrNotFound, tokenID)
		}
		if !listing.Active {
			return fmt.Errorf("%w: token %s is %s", registry.ErrNotActive, tokenID, listing.Status)
		}
		switch {
		case payment.From != caller:
			return fmt.Errorf("%w: payment sender is not the caller", registry.ErrPaymentMismatch)
		case payment.To != r.address:
			return fmt.Errorf("%w: payment must go to %s", registry.ErrPaymentMismatch, r.address)
		case payment.Amount != listing.Price:
			return fmt.Errorf("%w: paid %d, price is %d", registry.ErrPaymentMismatch, payment.Amount, listing.Price)
		}
		if err := r.lifecycle.Transition(listing.Status, StatusSold); err != nil {
			return err
		}

		payout, fee, err := SplitFee(listing.Price, cfg.FeeBps)
		if err != nil {
			return err
		}
		if err := tx.Pay(payment); err != nil {
			return fmt.Errorf("failed to collect payment: %w", err)
		}
		if err := tx.Pay(ledger.Payment{From: r.address, To: listing.Seller, Amount: payout}); err != nil {
			return fmt.Errorf("failed to pay seller: %w", err)
		}
		if fee > 0 {
			if err := tx.Pay(ledger.Payment{From: r.address, To: cfg.Admin, Amount: fee}); err != nil {
				return fmt.Errorf("failed to pay platform fee: %w", err)
			}
		}
		if err := tx.TransferToken(r.address, ledger.AssetTransfer{
			TokenID: tokenID,
			From:    r.address,
			To:      caller,
			Amount:  1,
		}); err != nil {
			return fmt.Errorf("failed to deliver token: %w", err)
		}

		now := tx.Now()
		listing.Active = false
		listing.Status = StatusSold
		listing.Buyer = caller
		listing.ClosedAt = &now
		if err := s.Put(listingKey(tokenID), listing); err != nil {
			return err
		}

		if cfg.TotalVolume, err = registry.AddUint64(cfg.TotalVolume, listing.Price); err != nil {
			return err
		}
		if cfg.TotalTrades, err = registry.AddUint64(cfg.TotalTrades, 1); err != nil {
			return err
		}
		txID = tx.ID()
		return registry.SaveConfig(s, cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to buy credit: %w", err)
	}

	registry.Notify(r.publisher, r.logger, registry.Event{
		Kind:     registry.EventCreditSold,
		Registry: Namespace,
		TokenID:  tokenID,
		Actor:    caller,
		Amount:   listing.Price,
		At:       *listing.ClosedAt,
		TxID:     txID,
	})
	return nil
}

// CancelListing returns the escrowed token to its seller and closes the
// listing. Only the seller may cancel.
func (r *Registry) CancelListing(ctx context.Context, caller ledger.Address, tokenID ledger.TokenID) error {
	var listing Listing
	var txID string
	err := r.ledger.Atomic(ctx, caller, func(tx ledger.Tx) error {
		s := registry.NewScope(tx, Namespace)
		ok, err := s.Get(listingKey(tokenID), &listing)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: listing for token %s", registry.ErrNotFound, tokenID)
		}
		if caller != listing.Seller {
			return fmt.Errorf("%w: only the seller can cancel", registry.ErrUnauthorized)
		}
		if !listing.Active {
			return fmt.Errorf("%w: token %s is %s", registry.ErrNotActive, tokenID, listing.Status)
		}
		if err := r.lifecycle.Transition(listing.Status, StatusCancelled); err != nil {
			return err
		}

		if err := tx.TransferToken(r.address, ledger.AssetTransfer{
			TokenID: tokenID,
			From:    r.address,
			To:      listing.Seller,
			Amount:  1,
		}); err != nil {
			return fmt.Errorf("failed to return token: %w", err)
		}

		now := tx.Now()
		listing.Active = false
		listing.Status = StatusCancelled
		listing.ClosedAt = &now
		txID = tx.ID()
		return s.Put(listingKey(tokenID), listing)
	})
	if err != nil {
		return fmt.Errorf("failed to cancel listing: %w", err)
	}

	registry.Notify(r.publisher, r.logger, registry.Event{
		Kind:     registry.EventListingCancelled,
		Registry: Namespace,
		TokenID:  tokenID,
		Actor:    caller,
		At:       *listing.ClosedAt,
		TxID:     txID,
	})
	return nil
}

// GetListing returns the listing for tokenID
func (r *Registry) GetListing(ctx context.Context, tokenID ledger.TokenID) (*Listing, error) {
	var listing Listing
	err := r.ledger.View(ctx, func(tx ledger.Tx) error {
		ok, err := registry.NewScope(tx, Namespace).Get(listingKey(tokenID), &listing)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: listing for token %s", registry.ErrNotFound, tokenID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetStats returns trading volume and count
func (r *Registry) GetStats(ctx context.Context) (Stats, error) {
	var cfg Config
	err := r.ledger.View(ctx, func(tx ledger.Tx) error {
		return registry.LoadConfig(registry.NewScope(tx, Namespace), &cfg)
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Volume:      cfg.TotalVolume / MicroPerUnit,
		VolumeMicro: cfg.TotalVolume,
		Trades:      cfg.TotalTrades,
		FeeBps:      cfg.FeeBps,
	}, nil
}
