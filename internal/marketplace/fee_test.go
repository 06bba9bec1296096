package marketplace

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/credit-registry/internal/registry"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		price, bps, payout, fee uint64
	}{
		{1_000_000, 250, 975_000, 25_000},
		{1, 250, 1, 0},
		{39, 250, 39, 0},
		{40, 250, 39, 1},
		{999, 0, 999, 0},
		{999, 10_000, 0, 999},
		{0, 500, 0, 0},
		{math.MaxUint64, 10_000, 0, math.MaxUint64},
		{math.MaxUint64, 1, math.MaxUint64 - math.MaxUint64/10_000, math.MaxUint64 / 10_000},
	}
	for _, tt := range tests {
		payout, fee, err := SplitFee(tt.price, tt.bps)
		require.NoError(t, err)
		assert.Equal(t, tt.payout, payout, "payout for %d @ %d", tt.price, tt.bps)
		assert.Equal(t, tt.fee, fee, "fee for %d @ %d", tt.price, tt.bps)
	}
}

func TestSplitFeeConservesPrice(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10_000; i++ {
		price := rng.Uint64()
		if i%3 == 0 {
			price = uint64(rng.Intn(1_000_000_000))
		}
		bps := uint64(rng.Intn(BasisPoints + 1))

		payout, fee, err := SplitFee(price, bps)
		require.NoError(t, err)
		require.Equal(t, price, payout+fee, "price %d bps %d", price, bps)
		require.LessOrEqual(t, fee, price)
	}
}

func TestSplitFeeRejectsOutOfRangeBps(t *testing.T) {
	_, _, err := SplitFee(100, BasisPoints+1)
	assert.ErrorIs(t, err, registry.ErrInvalidFee)
}
