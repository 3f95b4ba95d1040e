// Package evm implements the ledger client adapter against the AMM contract
// via go-ethereum. Every state-changing call is simulated first, signed with
// the service credential, submitted, and polled for finality with a bounded
// budget; read-only calls use simulation alone and work without a key.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// Backend is the subset of ethclient.Client the adapter depends on.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds the adapter's construction parameters. The poll budget is a
// hard ceiling: exhausting it yields an indeterminate outcome, never a
// failure.
type Config struct {
	ContractAddress string
	ChainID         int64
	PollAttempts    int
	PollInterval    time.Duration
}

// Client invokes the AMM contract. It is explicitly constructed with its
// signing credential and contract address and passed by reference to the
// services that need it; there is no ambient ledger state.
type Client struct {
	backend      Backend
	contract     common.Address
	chainID      *big.Int
	signer       types.Signer
	key          *ecdsa.PrivateKey
	from         common.Address
	pollAttempts int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewClient creates a ledger client. key may be nil, which leaves the client
// read-only: quotes and pool reads work, signing paths return
// domain.ErrNotConfigured.
func NewClient(backend Backend, cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) (*Client, error) {
	if cfg.ContractAddress == "" || !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("evm: contract address %q: %w", cfg.ContractAddress, domain.ErrNotConfigured)
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("evm: chain id %d: %w", cfg.ChainID, domain.ErrNotConfigured)
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	c := &Client{
		backend:      backend,
		contract:     common.HexToAddress(cfg.ContractAddress),
		chainID:      big.NewInt(cfg.ChainID),
		signer:       types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		key:          key,
		pollAttempts: cfg.PollAttempts,
		pollInterval: cfg.PollInterval,
		logger:       logger.With(slog.String("component", "ledger")),
	}
	if key != nil {
		c.from = ethcrypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// Address returns the service signing address, or the zero address when the
// client is read-only.
func (c *Client) Address() common.Address {
	return c.from
}

func (c *Client) requireKey() error {
	if c.key == nil {
		return fmt.Errorf("evm: signing credential missing: %w", domain.ErrNotConfigured)
	}
	return nil
}

// call performs a read-only contract invocation through simulation. The From
// address is immaterial for view methods; the service address is used when
// present and the zero address otherwise.
func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := ammABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("evm: pack %s: %w", method, err)
	}

	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: call %s: %w", method, err)
	}

	vals, err := ammABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack %s result: %w", method, err)
	}
	return vals, nil
}

// execute runs the full state-changing pipeline for a service-signed call:
// simulate, sign, submit, await finality. Simulation failures and on-chain
// reverts map to domain.ErrLedgerRejected; an exhausted poll budget
// propagates as *domain.IndeterminateError.
func (c *Client) execute(ctx context.Context, op string, data []byte) (*types.Receipt, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}

	// Pre-flight: surface contract-level failures before any fee is spent.
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, fmt.Errorf("evm: %s simulation: %v: %w", op, err, domain.ErrLedgerRejected)
	}

	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("evm: %s gas estimate: %v: %w", op, err, domain.ErrLedgerRejected)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: %s gas price: %w", op, err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("evm: %s nonce: %w", op, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Gas:      gas + gas/5, // headroom over the estimate
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("evm: %s sign: %w", op, err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("evm: %s submit: %v: %w", op, err, domain.ErrLedgerRejected)
	}

	hash := signed.Hash()
	c.logger.InfoContext(ctx, "transaction submitted",
		slog.String("op", op),
		slog.String("tx_hash", hash.Hex()),
	)

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("evm: %s reverted on chain (tx %s): %w", op, hash.Hex(), domain.ErrLedgerRejected)
	}
	return receipt, nil
}

// BuyShares executes buy_shares against the pool and returns the executed
// share quantity from the receipt's SharesBought event.
func (c *Client) BuyShares(ctx context.Context, marketID string, outcome domain.Outcome, amountIn, minShares domain.Amount) (domain.BuyOutcome, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.BuyOutcome{}, err
	}
	data, err := ammABI.Pack("buyShares", id, uint8(outcome), amountIn.BigInt(), minShares.BigInt())
	if err != nil {
		return domain.BuyOutcome{}, fmt.Errorf("evm: pack buyShares: %w", err)
	}

	receipt, err := c.execute(ctx, "buyShares", data)
	if err != nil {
		return domain.BuyOutcome{}, err
	}

	settled, err := c.settledAmounts(receipt, domain.TradeSideBuy)
	if err != nil {
		return domain.BuyOutcome{}, err
	}
	return domain.BuyOutcome{SharesOut: settled.Amount, TxHash: receipt.TxHash.Hex()}, nil
}

// SellShares executes sell_shares and returns the net payout from the
// SharesSold event.
func (c *Client) SellShares(ctx context.Context, marketID string, outcome domain.Outcome, shares, minPayout domain.Amount) (domain.SellOutcome, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.SellOutcome{}, err
	}
	data, err := ammABI.Pack("sellShares", id, uint8(outcome), shares.BigInt(), minPayout.BigInt())
	if err != nil {
		return domain.SellOutcome{}, fmt.Errorf("evm: pack sellShares: %w", err)
	}

	receipt, err := c.execute(ctx, "sellShares", data)
	if err != nil {
		return domain.SellOutcome{}, err
	}

	settled, err := c.settledAmounts(receipt, domain.TradeSideSell)
	if err != nil {
		return domain.SellOutcome{}, err
	}
	return domain.SellOutcome{Payout: settled.Amount, TxHash: receipt.TxHash.Hex()}, nil
}

// AddLiquidity deposits USDC into the pool and returns the minted LP tokens.
func (c *Client) AddLiquidity(ctx context.Context, marketID string, amount domain.Amount) (domain.AddLiquidityOutcome, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.AddLiquidityOutcome{}, err
	}
	data, err := ammABI.Pack("addLiquidity", id, amount.BigInt())
	if err != nil {
		return domain.AddLiquidityOutcome{}, fmt.Errorf("evm: pack addLiquidity: %w", err)
	}

	receipt, err := c.execute(ctx, "addLiquidity", data)
	if err != nil {
		return domain.AddLiquidityOutcome{}, err
	}

	settled, err := c.settledAmounts(receipt, domain.TradeSideAddLiquidity)
	if err != nil {
		return domain.AddLiquidityOutcome{}, err
	}
	return domain.AddLiquidityOutcome{LPMinted: settled.Amount, TxHash: receipt.TxHash.Hex()}, nil
}

// RemoveLiquidity burns LP tokens and returns the proportional reserve
// withdrawal.
func (c *Client) RemoveLiquidity(ctx context.Context, marketID string, lpTokens domain.Amount) (domain.RemoveLiquidityOutcome, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.RemoveLiquidityOutcome{}, err
	}
	data, err := ammABI.Pack("removeLiquidity", id, lpTokens.BigInt())
	if err != nil {
		return domain.RemoveLiquidityOutcome{}, fmt.Errorf("evm: pack removeLiquidity: %w", err)
	}

	receipt, err := c.execute(ctx, "removeLiquidity", data)
	if err != nil {
		return domain.RemoveLiquidityOutcome{}, err
	}

	settled, err := c.settledAmounts(receipt, domain.TradeSideRemoveLiquidity)
	if err != nil {
		return domain.RemoveLiquidityOutcome{}, err
	}
	return domain.RemoveLiquidityOutcome{
		YesOut:    settled.YesOut,
		NoOut:     settled.NoOut,
		AmountOut: settled.Amount,
		TxHash:    receipt.TxHash.Hex(),
	}, nil
}

// CreatePool seeds a new pool for a market and reads back its initial
// reserves.
func (c *Client) CreatePool(ctx context.Context, marketID string, initialLiquidity domain.Amount) (domain.CreatePoolOutcome, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.CreatePoolOutcome{}, err
	}
	data, err := ammABI.Pack("createPool", id, initialLiquidity.BigInt())
	if err != nil {
		return domain.CreatePoolOutcome{}, fmt.Errorf("evm: pack createPool: %w", err)
	}

	receipt, err := c.execute(ctx, "createPool", data)
	if err != nil {
		return domain.CreatePoolOutcome{}, err
	}

	reserves, err := c.GetPoolState(ctx, marketID)
	if err != nil {
		return domain.CreatePoolOutcome{}, err
	}
	return domain.CreatePoolOutcome{TxHash: receipt.TxHash.Hex(), Reserves: reserves}, nil
}

// GetOdds reads the contract's bps-scaled odds quote. Simulation only; no
// transaction is submitted.
func (c *Client) GetOdds(ctx context.Context, marketID string) (domain.RawOdds, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.RawOdds{}, err
	}

	vals, err := c.call(ctx, "getOdds", id)
	if err != nil {
		return domain.RawOdds{}, err
	}
	if len(vals) != 2 {
		return domain.RawOdds{}, fmt.Errorf("evm: getOdds returned %d values", len(vals))
	}

	yes, err := bigAt(vals, 0)
	if err != nil {
		return domain.RawOdds{}, err
	}
	no, err := bigAt(vals, 1)
	if err != nil {
		return domain.RawOdds{}, err
	}
	return domain.RawOdds{YesBps: int64(yes), NoBps: int64(no)}, nil
}

// GetPoolState reads the pool reserves. Simulation only.
func (c *Client) GetPoolState(ctx context.Context, marketID string) (domain.PoolReserves, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.PoolReserves{}, err
	}

	vals, err := c.call(ctx, "getPool", id)
	if err != nil {
		return domain.PoolReserves{}, err
	}
	if len(vals) != 2 {
		return domain.PoolReserves{}, fmt.Errorf("evm: getPool returned %d values", len(vals))
	}

	yes, err := bigAt(vals, 0)
	if err != nil {
		return domain.PoolReserves{}, err
	}
	no, err := bigAt(vals, 1)
	if err != nil {
		return domain.PoolReserves{}, err
	}
	return domain.PoolReserves{Yes: yes, No: no}, nil
}

// Compile-time interface check.
var _ domain.Ledger = (*Client)(nil)
