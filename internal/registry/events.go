package registry

import (
	"time"

	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/ledger"
)

// EventKind names a committed state change.
type EventKind string

const (
	EventIssuerRegistered EventKind = "issuer_registered"
	EventIssuerVerified   EventKind = "issuer_verified"
	EventCreditMinted     EventKind = "credit_minted"
	EventCreditListed     EventKind = "credit_listed"
	EventCreditSold       EventKind = "credit_sold"
	EventListingCancelled EventKind = "listing_cancelled"
	EventCreditRetired    EventKind = "credit_retired"
)

// Event describes one successful operation. It is published after the ledger
// commits and never for a rolled-back operation.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Registry string         `json:"registry"`
	TokenID  ledger.TokenID `json:"token_id,omitempty"`
	Actor    ledger.Address `json:"actor"`
	Amount   uint64         `json:"amount,omitempty"`
	At       time.Time      `json:"at"`
	TxID     string         `json:"tx_id"`
}

// Publisher receives committed events. Publish must not block.
type Publisher interface {
	Publish(ev Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// Notify hands ev to pub and logs it.
func Notify(pub Publisher, logger *zap.Logger, ev Event) {
	logger.Info("registry operation committed",
		zap.String("kind", string(ev.Kind)),
		zap.String("registry", ev.Registry),
		zap.Uint64("token_id", uint64(ev.TokenID)),
		zap.String("actor", string(ev.Actor)),
		zap.String("tx_id", ev.TxID),
	)
	if pub != nil {
		pub.Publish(ev)
	}
}
