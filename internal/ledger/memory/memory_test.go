package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/ledger/ledgertest"
	"carbon-scribe/credit-registry/internal/ledger/memory"
)

func TestConformance(t *testing.T) {
	ledgertest.RunConformance(t, func(t *testing.T) ledger.Backend {
		return memory.New()
	})
}

func TestRollbackDiscardsOverlay(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	s, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetBalance("alice", 10))
	require.NoError(t, s.PutRecord("ns", "k", []byte(`{}`)))
	require.NoError(t, s.Rollback())

	s, err = b.Begin(ctx)
	require.NoError(t, err)
	defer s.Rollback()

	bal, err := s.Balance("alice")
	require.NoError(t, err)
	assert.Zero(t, bal)
	_, ok, err := s.Record("ns", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreFinishedAfterCommit(t *testing.T) {
	b := memory.New()
	s, err := b.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	assert.ErrorIs(t, s.SetBalance("alice", 1), ledger.ErrTxDone)
	assert.NoError(t, s.Rollback())
}

func TestZeroAmountsDeleteRows(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	s, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetHolding(1, "alice", 1))
	require.NoError(t, s.Commit())

	s, err = b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetHolding(1, "alice", 0))
	require.NoError(t, s.Commit())

	s, err = b.Begin(ctx)
	require.NoError(t, err)
	defer s.Rollback()
	v, err := s.Holding(1, "alice")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestBeginHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := memory.New().Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
