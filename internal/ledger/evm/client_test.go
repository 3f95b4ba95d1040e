package evm

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictr-xyz/predictr/internal/domain"
)

const (
	testContract = "0x00000000000000000000000000000000000000aa"
	testMarketID = "0x" + "11" + "22" +
		"000000000000000000000000000000000000000000000000000000000000"
	testChainID = 137
)

// fakeBackend implements Backend in memory.
type fakeBackend struct {
	callErr    error
	sendErr    error
	sent       []*types.Transaction
	logsFor    func(txHash common.Hash) []*types.Log
	status     uint64
	neverMined bool
	minedAfter int // polls returning NotFound before the receipt appears
	polls      int
}

func (f *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return nil, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.polls++
	if f.neverMined || f.polls <= f.minedAfter {
		return nil, ethereum.NotFound
	}
	receipt := &types.Receipt{
		Status: f.status,
		TxHash: txHash,
	}
	if f.logsFor != nil {
		receipt.Logs = f.logsFor(txHash)
	}
	return receipt, nil
}

func newTestClient(t *testing.T, backend Backend) *Client {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	c, err := NewClient(backend, Config{
		ContractAddress: testContract,
		ChainID:         testChainID,
		PollAttempts:    3,
		PollInterval:    time.Millisecond,
	}, key, slog.Default())
	require.NoError(t, err)
	return c
}

func boughtLog(t *testing.T, txHash common.Hash, sharesOut int64) []*types.Log {
	t.Helper()
	ev := ammABI.Events["SharesBought"]
	data, err := ev.Inputs.NonIndexed().Pack(uint8(1), big.NewInt(100_000_000), big.NewInt(sharesOut))
	require.NoError(t, err)
	return []*types.Log{{
		Address: common.HexToAddress(testContract),
		Topics:  []common.Hash{ev.ID, {}, {}},
		Data:    data,
		TxHash:  txHash,
	}}
}

func TestParseMarketID(t *testing.T) {
	withPrefix, err := ParseMarketID(testMarketID)
	require.NoError(t, err)
	noPrefix, err := ParseMarketID(testMarketID[2:])
	require.NoError(t, err)
	assert.Equal(t, withPrefix, noPrefix)
	assert.Equal(t, byte(0x11), withPrefix[0])

	_, err = ParseMarketID("0x1234")
	assert.Error(t, err)
	_, err = ParseMarketID("zz")
	assert.Error(t, err)
}

func TestNewClient_RequiresContractAddress(t *testing.T) {
	_, err := NewClient(&fakeBackend{}, Config{ChainID: testChainID}, nil, slog.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotConfigured))
}

func TestBuyShares_ReadsSharesFromEventLog(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	backend.logsFor = func(h common.Hash) []*types.Log { return boughtLog(t, h, 95_000_000) }
	c := newTestClient(t, backend)

	out, err := c.BuyShares(context.Background(), testMarketID, domain.OutcomeYes, 100_000_000, 90_000_000)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(95_000_000), out.SharesOut)
	assert.NotEmpty(t, out.TxHash)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, common.HexToAddress(testContract), *backend.sent[0].To())
}

func TestBuyShares_SimulationFailureSubmitsNothing(t *testing.T) {
	backend := &fakeBackend{callErr: errors.New("execution reverted: pool closed")}
	c := newTestClient(t, backend)

	_, err := c.BuyShares(context.Background(), testMarketID, domain.OutcomeYes, 100_000_000, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLedgerRejected))
	assert.Empty(t, backend.sent)
}

func TestBuyShares_RevertedReceiptIsRejected(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusFailed}
	c := newTestClient(t, backend)

	_, err := c.BuyShares(context.Background(), testMarketID, domain.OutcomeYes, 100_000_000, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLedgerRejected))
}

func TestBuyShares_PollBudgetExhaustedIsIndeterminate(t *testing.T) {
	backend := &fakeBackend{neverMined: true}
	c := newTestClient(t, backend)

	_, err := c.BuyShares(context.Background(), testMarketID, domain.OutcomeYes, 100_000_000, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIndeterminate))
	assert.False(t, errors.Is(err, domain.ErrLedgerRejected))

	var indet *domain.IndeterminateError
	require.True(t, errors.As(err, &indet))
	assert.NotEmpty(t, indet.TxHash)
	assert.Equal(t, 3, backend.polls)
}

func TestBuyShares_LateReceiptWithinBudget(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful, minedAfter: 2}
	backend.logsFor = func(h common.Hash) []*types.Log { return boughtLog(t, h, 80_000_000) }
	c := newTestClient(t, backend)

	out, err := c.BuyShares(context.Background(), testMarketID, domain.OutcomeYes, 100_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(80_000_000), out.SharesOut)
}

func TestBuyShares_WithoutKeyIsNotConfigured(t *testing.T) {
	c, err := NewClient(&fakeBackend{}, Config{
		ContractAddress: testContract,
		ChainID:         testChainID,
	}, nil, slog.Default())
	require.NoError(t, err)

	_, err = c.BuyShares(context.Background(), testMarketID, domain.OutcomeYes, 1, 0)
	assert.True(t, errors.Is(err, domain.ErrNotConfigured))
}

func TestSubmitSigned_SignerMismatchRejectedBeforeSubmission(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	c := newTestClient(t, backend)

	signerKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	otherKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	to := common.HexToAddress(testContract)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      100_000,
		GasPrice: big.NewInt(1),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(testChainID)), signerKey)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)

	_, _, err = c.SubmitSigned(context.Background(), raw,
		ethcrypto.PubkeyToAddress(otherKey.PublicKey).Hex(), domain.TradeSideBuy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSignerMismatch))
	assert.Empty(t, backend.sent)
}

func TestSubmitSigned_MatchingSignerExecutes(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	backend.logsFor = func(h common.Hash) []*types.Log { return boughtLog(t, h, 42_000_000) }
	c := newTestClient(t, backend)

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	to := common.HexToAddress(testContract)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      100_000,
		GasPrice: big.NewInt(1),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(testChainID)), key)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)

	out, txHash, err := c.SubmitSigned(context.Background(), raw,
		ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), domain.TradeSideBuy)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, out.Status)
	assert.Equal(t, domain.Amount(42_000_000), out.Amount)
	assert.Equal(t, signed.Hash().Hex(), txHash)
	assert.Len(t, backend.sent, 1)
}

func TestTxOutcome_UnknownWhileUnmined(t *testing.T) {
	backend := &fakeBackend{neverMined: true}
	c := newTestClient(t, backend)

	out, err := c.TxOutcome(context.Background(), "0xdeadbeef", domain.TradeSideBuy)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusUnknown, out.Status)
}

func TestTxOutcome_CreatePoolNeedsNoEvent(t *testing.T) {
	// createPool emits nothing, so a successful receipt with empty logs is a
	// complete outcome.
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	c := newTestClient(t, backend)

	out, err := c.TxOutcome(context.Background(), "0xdeadbeef", domain.TradeSideCreatePool)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, out.Status)
	assert.Zero(t, out.Amount)
}

func TestTxOutcome_FailedReceipt(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusFailed}
	c := newTestClient(t, backend)

	out, err := c.TxOutcome(context.Background(), "0xdeadbeef", domain.TradeSideBuy)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, out.Status)
}
