package marketplace

import (
	"fmt"
	"math/bits"

	"carbon-scribe/credit-registry/internal/registry"
)

const (
	// BasisPoints is the fee denominator.
	BasisPoints = 10_000
	// MicroPerUnit converts micro-units of the native currency to whole units.
	MicroPerUnit = 1_000_000
)

// SplitFee divides price into the seller's payout and the platform fee, with
// fee = floor(price*feeBps/10000) and payout = price-fee. The product is
// taken at 128 bits so no price overflows.
func SplitFee(price, feeBps uint64) (payout, fee uint64, err error) {
	if feeBps > BasisPoints {
		return 0, 0, fmt.Errorf("%w: %d bps exceeds %d", registry.ErrInvalidFee, feeBps, BasisPoints)
	}
	hi, lo := bits.Mul64(price, feeBps)
	fee, _ = bits.Div64(hi, lo, BasisPoints)
	return price - fee, fee, nil
}
