package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Ledger is what the registries need from the host: atomic bundles and
// read-only snapshots.
type Ledger interface {
	// Atomic runs fn as one indivisible operation submitted by sender. Every
	// effect issued through the Tx commits if fn returns nil; none do
	// otherwise. Calls are serialized.
	Atomic(ctx context.Context, sender Address, fn func(tx Tx) error) error
	// View runs fn against a consistent snapshot. Writes fail with
	// ErrReadOnly.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the ledger inside one operation.
type Tx interface {
	// ID is the transaction reference, stable for the life of the Tx.
	ID() string
	Sender() Address
	Now() time.Time
	MinFee() uint64

	CreateToken(by Address, spec TokenSpec) (TokenID, error)
	Token(id TokenID) (*Token, error)
	Holding(id TokenID, holder Address) (uint64, error)
	// TransferToken moves units on behalf of by, who must be the holder or
	// an operator the holder approved for this token.
	TransferToken(by Address, t AssetTransfer) error
	// Clawback moves units on behalf of by, who must hold the token's
	// clawback authority directly or by delegation.
	Clawback(by Address, t AssetTransfer) error
	Approve(a Approval) error
	// DestroyToken removes a token for good. by needs the manager authority
	// and must hold the entire supply.
	DestroyToken(by Address, id TokenID) error
	Delegate(authority, delegate Address) error

	Pay(p Payment) error
	Balance(addr Address) (uint64, error)
	Fund(addr Address, amount uint64) error

	// Get decodes the record at namespace/key into v and reports whether it
	// exists.
	Get(namespace, key string, v any) (bool, error)
	Put(namespace, key string, v any) error
}

// Option configures a Host.
type Option func(*Host)

// WithMinFee sets the fee charged to the acting account for every effect.
func WithMinFee(fee uint64) Option {
	return func(h *Host) { h.minFee = fee }
}

// WithClock replaces the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(h *Host) { h.clock = clock }
}

// Host runs operations against a Backend one at a time.
type Host struct {
	mu      sync.Mutex
	backend Backend
	minFee  uint64
	clock   func() time.Time
}

// New creates a Host over backend.
func New(backend Backend, opts ...Option) *Host {
	h := &Host{
		backend: backend,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MinFee returns the configured per-effect fee.
func (h *Host) MinFee() uint64 {
	return h.minFee
}

// Close releases the backend.
func (h *Host) Close() error {
	return h.backend.Close()
}

func (h *Host) Atomic(ctx context.Context, sender Address, fn func(tx Tx) error) error {
	return h.run(ctx, sender, false, fn)
}

func (h *Host) View(ctx context.Context, fn func(tx Tx) error) error {
	return h.run(ctx, "", true, fn)
}

func (h *Host) run(ctx context.Context, sender Address, readOnly bool, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	store, err := h.backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}

	now := h.clock().UTC().Truncate(time.Second)
	tx := &txn{
		id:       transactionID(sender, now),
		sender:   sender,
		now:      now,
		minFee:   h.minFee,
		readOnly: readOnly,
		store:    store,
	}

	defer func() {
		tx.done = true
		if p := recover(); p != nil {
			_ = store.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := store.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}
	if readOnly {
		return store.Rollback()
	}
	if err := store.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

// transactionID derives a 32-byte reference from a random nonce, the sender
// and the operation time.
func transactionID(sender Address, now time.Time) string {
	nonce := uuid.New()
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixNano()))

	h, _ := blake2b.New256(nil)
	h.Write(nonce[:])
	h.Write([]byte(sender))
	h.Write(ts[:])
	return hex.EncodeToString(h.Sum(nil))
}
