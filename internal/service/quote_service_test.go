package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictr-xyz/predictr/internal/domain"
)

func newQuoteFixture(t *testing.T) (*memStores, *fakeLedger, *fakeOddsCache, *QuoteService) {
	t.Helper()
	stores := newMemStores()
	ledger := &fakeLedger{}
	cache := newFakeOddsCache()

	require.NoError(t, stores.Markets().Create(context.Background(), domain.Market{
		ID:               testMarket,
		ContractMarketID: "7f8e9d0c1b2a39485766738291a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f708",
		Status:           domain.MarketStatusOpen,
	}))

	svc := NewQuoteService(stores.Markets(), ledger, cache, testLogger())
	return stores, ledger, cache, svc
}

func TestOddsCacheMissReadsLedgerAndCaches(t *testing.T) {
	_, ledger, cache, svc := newQuoteFixture(t)
	ledger.odds = domain.RawOdds{YesBps: 6500, NoBps: 3500}
	ledger.reserves = domain.PoolReserves{Yes: usdc(350), No: usdc(650)}

	odds, err := svc.Odds(context.Background(), testMarket)
	require.NoError(t, err)

	assert.InDelta(t, 0.65, odds.YesProbability, 1e-9)
	assert.Equal(t, 65, odds.YesPercent)
	assert.Equal(t, usdc(1000), odds.TotalLiquidity)
	assert.Equal(t, 1, ledger.oddsCalls)

	cached, err := cache.Get(context.Background(), testMarket)
	require.NoError(t, err)
	assert.Equal(t, odds, cached)
}

func TestOddsCacheHitSkipsLedger(t *testing.T) {
	_, ledger, cache, svc := newQuoteFixture(t)
	want := domain.Odds{YesProbability: 0.7, NoProbability: 0.3, YesPercent: 70, NoPercent: 30}
	require.NoError(t, cache.Set(context.Background(), testMarket, want, 0))

	odds, err := svc.Odds(context.Background(), testMarket)
	require.NoError(t, err)
	assert.Equal(t, want, odds)
	assert.Zero(t, ledger.oddsCalls)
}

func TestOddsUnknownMarket(t *testing.T) {
	_, _, _, svc := newQuoteFixture(t)

	_, err := svc.Odds(context.Background(), "no-such-market")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPoolState(t *testing.T) {
	_, ledger, _, svc := newQuoteFixture(t)
	ledger.reserves = domain.PoolReserves{Yes: usdc(10), No: usdc(20)}

	reserves, err := svc.PoolState(context.Background(), testMarket)
	require.NoError(t, err)
	assert.Equal(t, usdc(10), reserves.Yes)
	assert.Equal(t, usdc(20), reserves.No)
}
