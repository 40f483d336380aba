package trade

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultFeeBasisPoints is the 0.5% escrow fee.
const DefaultFeeBasisPoints = 50

// FeeRate is a fee expressed in basis points (1/100 of a percent).
type FeeRate struct {
	bps int64
}

// NewFeeRate validates a basis point value in [0, 10000].
func NewFeeRate(bps int64) (FeeRate, error) {
	if bps < 0 || bps > 10000 {
		return FeeRate{}, fmt.Errorf("fee rate %d bps out of range", bps)
	}
	return FeeRate{bps: bps}, nil
}

// Decimal returns the rate as a fraction, e.g. 0.005 for 50 bps.
func (r FeeRate) Decimal() decimal.Decimal {
	return decimal.New(r.bps, -4)
}

func (r FeeRate) String() string {
	return r.Decimal().Mul(decimal.NewFromInt(100)).String() + "%"
}

// Settlement is the split of a trade amount at release.
type Settlement struct {
	Fee    int64
	Payout int64
}

// Settle computes fee = round(amount * rate) in fixed point, rounding half
// away from zero, and payout = amount - fee. Fee + Payout always equals amount.
func (r FeeRate) Settle(amount int64) Settlement {
	fee := decimal.NewFromInt(amount).Mul(r.Decimal()).Round(0).IntPart()
	return Settlement{Fee: fee, Payout: amount - fee}
}
