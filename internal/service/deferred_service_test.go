package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictr-xyz/predictr/internal/domain"
)

const testCaller = "0x1111111111111111111111111111111111111111"

type deferredFixture struct {
	stores *memStores
	ledger *fakeLedger
	svc    *DeferredService
}

func newDeferredFixture(t *testing.T) *deferredFixture {
	t.Helper()
	stores := newMemStores()
	ledger := &fakeLedger{}
	logger := testLogger()
	recon := NewReconciler(stores, logger)

	require.NoError(t, stores.Markets().Create(context.Background(), domain.Market{
		ID:               testMarket,
		ContractMarketID: "7f8e9d0c1b2a39485766738291a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f708",
		Status:           domain.MarketStatusOpen,
		FeeBpsBuy:        20,
		FeeBpsSell:       20,
	}))

	return &deferredFixture{
		stores: stores,
		ledger: ledger,
		svc: NewDeferredService(
			stores.Markets(), stores.TradeView(),
			stores.BalanceView(), stores.PositionView(),
			ledger, newFakeOddsCache(), recon, logger,
		),
	}
}

func (f *deferredFixture) fund(t *testing.T, amt domain.Amount) {
	t.Helper()
	require.NoError(t, f.stores.BalanceView().Credit(context.Background(), testUser, amt))
}

func TestBuildBuyRecordsIntent(t *testing.T) {
	f := newDeferredFixture(t)
	f.fund(t, usdc(1000))
	f.ledger.built = domain.UnsignedTx{ChainID: 137, Nonce: 7, To: "0xcontract", Gas: 210_000}

	built, err := f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(100), usdc(90))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), built.Unsigned.Nonce)

	rec := f.stores.mustTrade(built.TradeID)
	assert.Equal(t, domain.TradeStatusPending, rec.Status)
	assert.Equal(t, domain.ExecModeUser, rec.Mode)
	assert.Equal(t, testCaller, rec.CallerAddress)
	assert.Equal(t, usdc(100), rec.RequestedAmount)
	assert.Equal(t, usdc(90), rec.SlippageBound)
}

func TestBuildRejectsClosedMarketAndBadInput(t *testing.T) {
	f := newDeferredFixture(t)

	_, err := f.svc.BuildBuy(context.Background(), testUser, testMarket, "", domain.OutcomeYes, usdc(100), 0)
	require.Error(t, err)

	_, err = f.svc.BuildSell(context.Background(), testUser, testMarket, testCaller, domain.OutcomeYes, 0, 0)
	require.Error(t, err)

	require.NoError(t, f.stores.Markets().UpdateStatus(context.Background(), testMarket, domain.MarketStatusResolved))
	_, err = f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller, domain.OutcomeYes, usdc(100), 0)
	require.ErrorIs(t, err, domain.ErrMarketNotOpen)
}

func TestBuildBuyRejectsInsufficientBalance(t *testing.T) {
	f := newDeferredFixture(t)
	f.ledger.built = domain.UnsignedTx{ChainID: 137}

	// Unfunded user: no unsigned transaction may be handed out, because the
	// chain would execute it and the off-chain debit would then fail.
	_, err := f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(100), 0)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Zero(t, f.ledger.buildCalls)
	_, ok := f.stores.onlyTrade()
	assert.False(t, ok)

	// Funding less than the buy amount is still rejected.
	f.fund(t, usdc(50))
	_, err = f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(100), 0)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestBuildSellRejectsInsufficientShares(t *testing.T) {
	f := newDeferredFixture(t)
	f.ledger.built = domain.UnsignedTx{ChainID: 137}

	_, err := f.svc.BuildSell(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(50), 0)
	require.ErrorIs(t, err, domain.ErrInsufficientShares)
	assert.Zero(t, f.ledger.buildCalls)

	_, err = f.stores.PositionView().ApplyBuy(context.Background(), testUser, testMarket,
		domain.OutcomeYes, usdc(30), usdc(30))
	require.NoError(t, err)
	_, err = f.svc.BuildSell(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(50), 0)
	require.ErrorIs(t, err, domain.ErrInsufficientShares)

	// With enough shares the build goes through.
	_, err = f.stores.PositionView().ApplyBuy(context.Background(), testUser, testMarket,
		domain.OutcomeYes, usdc(30), usdc(30))
	require.NoError(t, err)
	_, err = f.svc.BuildSell(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(50), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.buildCalls)
}

func TestSubmitSignedSettlesBuy(t *testing.T) {
	f := newDeferredFixture(t)
	f.fund(t, usdc(1000))
	f.ledger.built = domain.UnsignedTx{ChainID: 137}

	built, err := f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(100), 0)
	require.NoError(t, err)

	f.ledger.submitOutcome = domain.LedgerOutcome{Status: domain.TxStatusSuccess, Amount: usdc(95)}
	f.ledger.submitHash = "0xsigned"

	res, err := f.svc.SubmitSigned(context.Background(), built.TradeID, []byte{0x01, 0x02})
	require.NoError(t, err)

	assert.Equal(t, domain.TradeStatusConfirmed, res.Status)
	assert.Equal(t, usdc(95), res.SharesOut)
	assert.Equal(t, "0xsigned", res.TxHash)

	bal, err := f.stores.BalanceView().Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, usdc(900), bal.Amount)

	pos, err := f.stores.PositionView().Get(context.Background(), testUser, testMarket, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, usdc(95), pos.Quantity)
}

func TestSubmitSignedBelowBoundConfirmsAndSurfaces(t *testing.T) {
	f := newDeferredFixture(t)
	f.fund(t, usdc(1000))
	f.ledger.built = domain.UnsignedTx{ChainID: 137}

	built, err := f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(100), usdc(90))
	require.NoError(t, err)

	f.ledger.submitOutcome = domain.LedgerOutcome{Status: domain.TxStatusSuccess, Amount: usdc(80)}
	f.ledger.submitHash = "0xshort"

	// The chain already executed; the trade settles as confirmed and the
	// bound violation rides back on the error.
	res, err := f.svc.SubmitSigned(context.Background(), built.TradeID, []byte{0x01})
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)
	assert.Equal(t, domain.TradeStatusConfirmed, res.Status)
	assert.Equal(t, usdc(80), res.SharesOut)

	rec := f.stores.mustTrade(built.TradeID)
	assert.Equal(t, domain.TradeStatusConfirmed, rec.Status)
	assert.Equal(t, usdc(80), rec.ExecutedAmount)
}

func TestSubmitSignedRejectsMismatchedSigner(t *testing.T) {
	f := newDeferredFixture(t)
	f.fund(t, usdc(1000))
	f.ledger.built = domain.UnsignedTx{ChainID: 137}

	built, err := f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(100), 0)
	require.NoError(t, err)

	f.ledger.submitErr = fmt.Errorf("recovered signer 0x2222: %w", domain.ErrSignerMismatch)

	_, err = f.svc.SubmitSigned(context.Background(), built.TradeID, []byte{0x01})
	require.ErrorIs(t, err, domain.ErrSignerMismatch)

	// Nothing reached the chain; the build stays pending for a retry with
	// the right key.
	rec := f.stores.mustTrade(built.TradeID)
	assert.Equal(t, domain.TradeStatusPending, rec.Status)
}

func TestSubmitSignedRejectsSettledTrade(t *testing.T) {
	f := newDeferredFixture(t)
	f.fund(t, usdc(1000))
	f.ledger.built = domain.UnsignedTx{ChainID: 137}

	built, err := f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(100), 0)
	require.NoError(t, err)

	_, err = f.stores.TradeView().Settle(context.Background(), built.TradeID,
		domain.TradeStatusFailed, "", 0, 0, "expired")
	require.NoError(t, err)

	_, err = f.svc.SubmitSigned(context.Background(), built.TradeID, []byte{0x01})
	require.Error(t, err)
	assert.Zero(t, f.ledger.submitCalls)
}

func TestSubmitSignedRejectsServiceModeTrade(t *testing.T) {
	f := newDeferredFixture(t)
	rec := domain.TradeRecord{
		ID:     "svc-trade",
		UserID: testUser,
		Mode:   domain.ExecModeService,
		Status: domain.TradeStatusPending,
	}
	require.NoError(t, f.stores.TradeView().Create(context.Background(), rec))

	_, err := f.svc.SubmitSigned(context.Background(), "svc-trade", []byte{0x01})
	require.Error(t, err)
	assert.Zero(t, f.ledger.submitCalls)
}

func TestSubmitSignedIndeterminateRecordsHash(t *testing.T) {
	f := newDeferredFixture(t)
	f.fund(t, usdc(1000))
	f.ledger.built = domain.UnsignedTx{ChainID: 137}

	built, err := f.svc.BuildBuy(context.Background(), testUser, testMarket, testCaller,
		domain.OutcomeYes, usdc(100), 0)
	require.NoError(t, err)

	f.ledger.submitErr = &domain.IndeterminateError{TxHash: "0xslow"}

	res, err := f.svc.SubmitSigned(context.Background(), built.TradeID, []byte{0x01})
	require.ErrorIs(t, err, domain.ErrIndeterminate)
	assert.Equal(t, domain.TradeStatusPending, res.Status)

	rec := f.stores.mustTrade(built.TradeID)
	assert.Equal(t, domain.TradeStatusPending, rec.Status)
	assert.Equal(t, "0xslow", rec.TxHash)
}
