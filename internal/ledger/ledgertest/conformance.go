// Package ledgertest holds the behaviour every ledger backend must share.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/credit-registry/internal/ledger"
)

// NewBackend constructs a fresh, empty backend for one test. It must be
// isolated from every other test.
type NewBackend func(t *testing.T) ledger.Backend

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newHost(t *testing.T, nb NewBackend, opts ...ledger.Option) *ledger.Host {
	t.Helper()
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return fixedNow })}, opts...)
	h := ledger.New(nb(t), opts...)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func mint(t *testing.T, h *ledger.Host, owner, authority ledger.Address) ledger.TokenID {
	t.Helper()
	var id ledger.TokenID
	err := h.Atomic(context.Background(), authority, func(tx ledger.Tx) error {
		var err error
		id, err = tx.CreateToken(authority, ledger.TokenSpec{
			Name:      "Mangrove 2023",
			UnitName:  "CCT",
			URL:       "ipfs://bafy",
			Owner:     owner,
			Authority: authority,
			Metadata:  map[string]string{"location": "Kenya"},
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func holding(t *testing.T, h *ledger.Host, id ledger.TokenID, addr ledger.Address) uint64 {
	t.Helper()
	var v uint64
	require.NoError(t, h.View(context.Background(), func(tx ledger.Tx) error {
		var err error
		v, err = tx.Holding(id, addr)
		return err
	}))
	return v
}

func balance(t *testing.T, h *ledger.Host, addr ledger.Address) uint64 {
	t.Helper()
	var v uint64
	require.NoError(t, h.View(context.Background(), func(tx ledger.Tx) error {
		var err error
		v, err = tx.Balance(addr)
		return err
	}))
	return v
}

func fund(t *testing.T, h *ledger.Host, addr ledger.Address, amount uint64) {
	t.Helper()
	require.NoError(t, h.Atomic(context.Background(), addr, func(tx ledger.Tx) error {
		return tx.Fund(addr, amount)
	}))
}

// RunConformance exercises a backend through a Host.
func RunConformance(t *testing.T, nb NewBackend) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateTokenCreditsOwner", func(t *testing.T) {
		h := newHost(t, nb)
		id := mint(t, h, "alice", "issuance")

		assert.Equal(t, uint64(1), holding(t, h, id, "alice"))
		assert.Zero(t, holding(t, h, id, "issuance"))

		require.NoError(t, h.View(ctx, func(tx ledger.Tx) error {
			tok, err := tx.Token(id)
			require.NoError(t, err)
			assert.Equal(t, "Mangrove 2023", tok.Name)
			assert.Equal(t, "CCT", tok.UnitName)
			assert.Equal(t, uint64(1), tok.Total)
			assert.Equal(t, uint32(0), tok.Decimals)
			assert.Equal(t, ledger.Address("issuance"), tok.Manager)
			assert.Equal(t, ledger.Address("issuance"), tok.Clawback)
			assert.Equal(t, ledger.Address("alice"), tok.Reserve)
			assert.Equal(t, "Kenya", tok.Metadata["location"])
			assert.True(t, tok.CreatedAt.Equal(fixedNow))
			return nil
		}))
	})

	t.Run("TokenIDsIncrease", func(t *testing.T) {
		h := newHost(t, nb)
		a := mint(t, h, "alice", "issuance")
		b := mint(t, h, "alice", "issuance")
		assert.Greater(t, uint64(b), uint64(a))
	})

	t.Run("HolderTransfers", func(t *testing.T) {
		h := newHost(t, nb)
		id := mint(t, h, "alice", "issuance")

		require.NoError(t, h.Atomic(ctx, "alice", func(tx ledger.Tx) error {
			return tx.TransferToken("alice", ledger.AssetTransfer{TokenID: id, From: "alice", To: "bob", Amount: 1})
		}))
		assert.Zero(t, holding(t, h, id, "alice"))
		assert.Equal(t, uint64(1), holding(t, h, id, "bob"))
	})

	t.Run("TransferRules", func(t *testing.T) {
		h := newHost(t, nb)
		id := mint(t, h, "alice", "issuance")

		err := h.Atomic(ctx, "bob", func(tx ledger.Tx) error {
			return tx.TransferToken("bob", ledger.AssetTransfer{TokenID: id, From: "alice", To: "bob", Amount: 1})
		})
		assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

		err = h.Atomic(ctx, "bob", func(tx ledger.Tx) error {
			return tx.TransferToken("bob", ledger.AssetTransfer{TokenID: id, From: "bob", To: "alice", Amount: 1})
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientHolding)

		err = h.Atomic(ctx, "alice", func(tx ledger.Tx) error {
			return tx.TransferToken("alice", ledger.AssetTransfer{TokenID: id + 100, From: "alice", To: "bob", Amount: 1})
		})
		assert.ErrorIs(t, err, ledger.ErrTokenNotFound)

		err = h.Atomic(ctx, "alice", func(tx ledger.Tx) error {
			return tx.TransferToken("alice", ledger.AssetTransfer{TokenID: id, From: "alice", To: "bob", Amount: 0})
		})
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
		assert.Equal(t, uint64(1), holding(t, h, id, "alice"))
	})

	t.Run("ApprovalIsConsumed", func(t *testing.T) {
		h := newHost(t, nb)
		id := mint(t, h, "alice", "issuance")

		require.NoError(t, h.Atomic(ctx, "alice", func(tx ledger.Tx) error {
			return tx.Approve(ledger.Approval{TokenID: id, Holder: "alice", Operator: "retirement"})
		}))
		require.NoError(t, h.Atomic(ctx, "retirement", func(tx ledger.Tx) error {
			return tx.TransferToken("retirement", ledger.AssetTransfer{TokenID: id, From: "alice", To: "retirement", Amount: 1})
		}))
		require.NoError(t, h.Atomic(ctx, "retirement", func(tx ledger.Tx) error {
			return tx.TransferToken("retirement", ledger.AssetTransfer{TokenID: id, From: "retirement", To: "alice", Amount: 1})
		}))

		err := h.Atomic(ctx, "retirement", func(tx ledger.Tx) error {
			return tx.TransferToken("retirement", ledger.AssetTransfer{TokenID: id, From: "alice", To: "retirement", Amount: 1})
		})
		assert.ErrorIs(t, err, ledger.ErrNotAuthorized)
	})

	t.Run("ApproveRequiresHolding", func(t *testing.T) {
		h := newHost(t, nb)
		id := mint(t, h, "alice", "issuance")

		err := h.Atomic(ctx, "bob", func(tx ledger.Tx) error {
			return tx.Approve(ledger.Approval{TokenID: id, Holder: "bob", Operator: "mallory"})
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientHolding)
	})

	t.Run("ClawbackNeedsAuthority", func(t *testing.T) {
		h := newHost(t, nb)
		id := mint(t, h, "alice", "issuance")
		tr := ledger.AssetTransfer{TokenID: id, From: "alice", To: "retirement", Amount: 1}

		err := h.Atomic(ctx, "retirement", func(tx ledger.Tx) error {
			return tx.Clawback("retirement", tr)
		})
		assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

		require.NoError(t, h.Atomic(ctx, "issuance", func(tx ledger.Tx) error {
			return tx.Delegate("issuance", "retirement")
		}))
		require.NoError(t, h.Atomic(ctx, "retirement", func(tx ledger.Tx) error {
			return tx.Clawback("retirement", tr)
		}))
		assert.Equal(t, uint64(1), holding(t, h, id, "retirement"))
	})

	t.Run("DestroyToken", func(t *testing.T) {
		h := newHost(t, nb)
		id := mint(t, h, "alice", "issuance")

		err := h.Atomic(ctx, "issuance", func(tx ledger.Tx) error {
			return tx.DestroyToken("issuance", id)
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientHolding, "manager must hold the supply")

		err = h.Atomic(ctx, "alice", func(tx ledger.Tx) error {
			return tx.DestroyToken("alice", id)
		})
		assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

		require.NoError(t, h.Atomic(ctx, "issuance", func(tx ledger.Tx) error {
			if err := tx.Clawback("issuance", ledger.AssetTransfer{TokenID: id, From: "alice", To: "issuance", Amount: 1}); err != nil {
				return err
			}
			return tx.DestroyToken("issuance", id)
		}))

		err = h.View(ctx, func(tx ledger.Tx) error {
			_, err := tx.Token(id)
			return err
		})
		assert.ErrorIs(t, err, ledger.ErrTokenNotFound)
		assert.Zero(t, holding(t, h, id, "issuance"))

		next := mint(t, h, "alice", "issuance")
		assert.Greater(t, uint64(next), uint64(id), "ids are not reused")
	})

	t.Run("PayAndFund", func(t *testing.T) {
		h := newHost(t, nb)
		fund(t, h, "buyer", 5_000_000)

		require.NoError(t, h.Atomic(ctx, "buyer", func(tx ledger.Tx) error {
			return tx.Pay(ledger.Payment{From: "buyer", To: "seller", Amount: 1_000_000})
		}))
		assert.Equal(t, uint64(4_000_000), balance(t, h, "buyer"))
		assert.Equal(t, uint64(1_000_000), balance(t, h, "seller"))

		err := h.Atomic(ctx, "seller", func(tx ledger.Tx) error {
			return tx.Pay(ledger.Payment{From: "seller", To: "buyer", Amount: 2_000_000})
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, uint64(1_000_000), balance(t, h, "seller"))
	})

	t.Run("MinFeeCharged", func(t *testing.T) {
		h := newHost(t, nb, ledger.WithMinFee(1_000))
		fund(t, h, "buyer", 10_000)

		require.NoError(t, h.Atomic(ctx, "buyer", func(tx ledger.Tx) error {
			return tx.Pay(ledger.Payment{From: "buyer", To: "seller", Amount: 4_000})
		}))
		assert.Equal(t, uint64(5_000), balance(t, h, "buyer"))
		assert.Equal(t, uint64(4_000), balance(t, h, "seller"))

		err := h.Atomic(ctx, "nobody", func(tx ledger.Tx) error {
			_, err := tx.CreateToken("nobody", ledger.TokenSpec{Owner: "nobody", Authority: "nobody"})
			return err
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		h := newHost(t, nb)
		fund(t, h, "buyer", 100)
		boom := errors.New("boom")

		var id ledger.TokenID
		err := h.Atomic(ctx, "issuance", func(tx ledger.Tx) error {
			var err error
			id, err = tx.CreateToken("issuance", ledger.TokenSpec{Owner: "alice", Authority: "issuance"})
			if err != nil {
				return err
			}
			if err := tx.Pay(ledger.Payment{From: "buyer", To: "seller", Amount: 60}); err != nil {
				return err
			}
			if err := tx.Put("ns", "k", map[string]int{"v": 1}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		assert.Equal(t, uint64(100), balance(t, h, "buyer"))
		assert.Zero(t, balance(t, h, "seller"))
		assert.Zero(t, holding(t, h, id, "alice"))
		require.NoError(t, h.View(ctx, func(tx ledger.Tx) error {
			var v map[string]int
			ok, err := tx.Get("ns", "k", &v)
			assert.False(t, ok)
			return err
		}))
	})

	t.Run("RollbackOnPanic", func(t *testing.T) {
		h := newHost(t, nb)
		fund(t, h, "buyer", 100)

		assert.Panics(t, func() {
			_ = h.Atomic(ctx, "buyer", func(tx ledger.Tx) error {
				_ = tx.Pay(ledger.Payment{From: "buyer", To: "seller", Amount: 60})
				panic("boom")
			})
		})
		assert.Equal(t, uint64(100), balance(t, h, "buyer"))
	})

	t.Run("RecordsRoundTrip", func(t *testing.T) {
		h := newHost(t, nb)
		type rec struct {
			Name  string `json:"name"`
			Count uint64 `json:"count"`
		}

		require.NoError(t, h.Atomic(ctx, "x", func(tx ledger.Tx) error {
			if err := tx.Put("issuance", "P1", rec{Name: "first", Count: 1}); err != nil {
				return err
			}
			return tx.Put("issuance", "P1", rec{Name: "second", Count: 2})
		}))

		require.NoError(t, h.View(ctx, func(tx ledger.Tx) error {
			var got rec
			ok, err := tx.Get("issuance", "P1", &got)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, rec{Name: "second", Count: 2}, got)

			ok, err = tx.Get("marketplace", "P1", &got)
			require.NoError(t, err)
			assert.False(t, ok, "namespaces are isolated")
			return nil
		}))
	})

	t.Run("ViewIsReadOnly", func(t *testing.T) {
		h := newHost(t, nb)
		err := h.View(ctx, func(tx ledger.Tx) error {
			return tx.Fund("alice", 1)
		})
		assert.ErrorIs(t, err, ledger.ErrReadOnly)
	})

	t.Run("TxUnusableAfterReturn", func(t *testing.T) {
		h := newHost(t, nb)
		var leaked ledger.Tx
		require.NoError(t, h.Atomic(ctx, "alice", func(tx ledger.Tx) error {
			leaked = tx
			return nil
		}))
		assert.ErrorIs(t, leaked.Fund("alice", 1), ledger.ErrTxDone)
	})

	t.Run("TransactionIDsAreUnique", func(t *testing.T) {
		h := newHost(t, nb)
		seen := make(map[string]bool)
		for i := 0; i < 20; i++ {
			require.NoError(t, h.Atomic(ctx, "alice", func(tx ledger.Tx) error {
				assert.Len(t, tx.ID(), 64)
				assert.False(t, seen[tx.ID()])
				seen[tx.ID()] = true
				assert.Equal(t, ledger.Address("alice"), tx.Sender())
				assert.True(t, tx.Now().Equal(fixedNow))
				return nil
			}))
		}
	})

	t.Run("ConcurrentTransfersSerialize", func(t *testing.T) {
		h := newHost(t, nb)
		id := mint(t, h, "alice", "issuance")
		for _, op := range []ledger.Address{"bob", "carol", "dave"} {
			op := op
			require.NoError(t, h.Atomic(ctx, "alice", func(tx ledger.Tx) error {
				return tx.Approve(ledger.Approval{TokenID: id, Holder: "alice", Operator: op})
			}))
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for _, op := range []ledger.Address{"bob", "carol", "dave"} {
			wg.Add(1)
			go func(op ledger.Address) {
				defer wg.Done()
				err := h.Atomic(ctx, op, func(tx ledger.Tx) error {
					return tx.TransferToken(op, ledger.AssetTransfer{TokenID: id, From: "alice", To: op, Amount: 1})
				})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(op)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}
