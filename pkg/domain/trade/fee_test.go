package trade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFeeRate_Settle(t *testing.T) {
	rate, err := NewFeeRate(DefaultFeeBasisPoints)
	require.NoError(t, err)

	tests := []struct {
		amount int64
		fee    int64
		payout int64
	}{
		{50000, 250, 49750},
		{100, 1, 99},
		{99, 0, 99},
		{100000, 500, 99500},
		{1, 0, 1},
		{12345, 62, 12283},
	}
	for _, tc := range tests {
		s := rate.Settle(tc.amount)
		assert.Equal(t, tc.fee, s.Fee, "fee for %d", tc.amount)
		assert.Equal(t, tc.payout, s.Payout, "payout for %d", tc.amount)
	}
}

func TestNewFeeRate_Bounds(t *testing.T) {
	_, err := NewFeeRate(-1)
	assert.Error(t, err)
	_, err = NewFeeRate(10001)
	assert.Error(t, err)
	r, err := NewFeeRate(10000)
	require.NoError(t, err)
	assert.Equal(t, Settlement{Fee: 700, Payout: 0}, r.Settle(700))
	assert.Equal(t, "0.5%", mustRate(t, 50).String())
}

func mustRate(t *testing.T, bps int64) FeeRate {
	t.Helper()
	r, err := NewFeeRate(bps)
	require.NoError(t, err)
	return r
}

func TestFeeRate_SettleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bps := rapid.Int64Range(0, 10000).Draw(t, "bps")
		amount := rapid.Int64Range(1, 1<<50).Draw(t, "amount")
		r, err := NewFeeRate(bps)
		if err != nil {
			t.Fatal(err)
		}
		first := r.Settle(amount)
		if first.Fee+first.Payout != amount {
			t.Fatalf("fee %d + payout %d != amount %d", first.Fee, first.Payout, amount)
		}
		if first.Fee < 0 || first.Payout < 0 {
			t.Fatalf("negative split %+v", first)
		}
		again := r.Settle(amount)
		if again != first {
			t.Fatalf("settlement not stable: %+v vs %+v", first, again)
		}
	})
}
