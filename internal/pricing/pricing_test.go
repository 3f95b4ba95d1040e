package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictr-xyz/predictr/internal/domain"
)

func usdc(v float64) domain.Amount {
	return domain.Amount(v * 1_000_000)
}

func TestQuoteOdds_FromContractBps(t *testing.T) {
	odds := QuoteOdds(
		domain.RawOdds{YesBps: 6500, NoBps: 3500},
		domain.PoolReserves{Yes: usdc(400), No: usdc(600)},
	)

	assert.InDelta(t, 0.65, odds.YesProbability, 1e-9)
	assert.InDelta(t, 0.35, odds.NoProbability, 1e-9)
	assert.Equal(t, 65, odds.YesPercent)
	assert.Equal(t, 35, odds.NoPercent)
	assert.Equal(t, usdc(400), odds.YesLiquidity)
	assert.Equal(t, usdc(600), odds.NoLiquidity)
	assert.Equal(t, usdc(1000), odds.TotalLiquidity)
}

func TestQuoteOdds_ReserveFallback(t *testing.T) {
	odds := QuoteOdds(domain.RawOdds{}, domain.PoolReserves{Yes: usdc(300), No: usdc(700)})

	assert.InDelta(t, 0.7, odds.YesProbability, 1e-9)
	assert.InDelta(t, 0.3, odds.NoProbability, 1e-9)
}

func TestQuoteOdds_EmptyPoolDefaultsEven(t *testing.T) {
	odds := QuoteOdds(domain.RawOdds{}, domain.PoolReserves{})

	assert.InDelta(t, 0.5, odds.YesProbability, 1e-9)
	assert.InDelta(t, 0.5, odds.NoProbability, 1e-9)
	assert.Equal(t, domain.Amount(0), odds.TotalLiquidity)
}

func TestQuoteOdds_ProbabilitiesBounded(t *testing.T) {
	cases := []domain.PoolReserves{
		{Yes: 0, No: 0},
		{Yes: 1, No: 0},
		{Yes: 0, No: 1},
		{Yes: usdc(1), No: usdc(999_999)},
		{Yes: usdc(999_999), No: usdc(1)},
	}
	for _, rs := range cases {
		odds := QuoteOdds(domain.RawOdds{}, rs)
		assert.GreaterOrEqual(t, odds.YesProbability, 0.0)
		assert.LessOrEqual(t, odds.YesProbability, 1.0)
		assert.GreaterOrEqual(t, odds.NoProbability, 0.0)
		assert.LessOrEqual(t, odds.NoProbability, 1.0)
		assert.Equal(t, odds.YesLiquidity+odds.NoLiquidity, odds.TotalLiquidity)
	}
}

func TestComputeBuy(t *testing.T) {
	// 100 USDC in, 95 shares out, 0.2% fee.
	q := ComputeBuy(usdc(100), usdc(95), 20)

	assert.Equal(t, usdc(95), q.SharesOut)
	assert.Equal(t, usdc(0.2), q.FeeAmount)
	assert.InDelta(t, 1.0526, q.PricePerUnit, 0.0001)
}

func TestComputeBuy_ZeroShares(t *testing.T) {
	q := ComputeBuy(usdc(100), 0, 20)
	assert.Equal(t, 0.0, q.PricePerUnit)
}

func TestComputeSell_FeeInvertedFromNetPayout(t *testing.T) {
	// 50 shares sold, ledger returned a net payout of 52 at 0.2% fee.
	// fee = 52 * 0.002 / 0.998 ≈ 0.10421.
	q := ComputeSell(usdc(50), usdc(52), 20)

	assert.Equal(t, usdc(52), q.Payout)
	assert.InDelta(t, 0.10421, q.FeeAmount.Float(), 0.0001)
	assert.InDelta(t, 1.04, q.PricePerUnit, 0.0001)
}

func TestComputeSell_ZeroFeeRate(t *testing.T) {
	q := ComputeSell(usdc(10), usdc(9), 0)
	assert.Equal(t, domain.Amount(0), q.FeeAmount)
}

func TestCheckMinShares(t *testing.T) {
	require.NoError(t, CheckMinShares(usdc(95), usdc(90)))
	require.NoError(t, CheckMinShares(usdc(95), 0)) // disabled guard

	err := CheckMinShares(usdc(95), usdc(96))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSlippageExceeded))
}

func TestCheckMinPayout(t *testing.T) {
	require.NoError(t, CheckMinPayout(usdc(52), usdc(50)))

	err := CheckMinPayout(usdc(52), usdc(53))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSlippageExceeded))
}
