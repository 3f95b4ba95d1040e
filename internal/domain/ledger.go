package domain

import (
	"context"
	"fmt"
	"math/big"
)

// TxStatus is the terminal (or indeterminate) status of a submitted ledger
// transaction as reported by finality polling.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
	TxStatusUnknown TxStatus = "unknown"
)

// OddsBpsScale is the fixed-point scale of contract-reported odds.
const OddsBpsScale = 10_000

// RawOdds is the contract's odds quote, scaled by OddsBpsScale.
type RawOdds struct {
	YesBps int64
	NoBps  int64
}

// BuyOutcome reports an executed buy. SharesOut comes from the ledger's
// event log, never from a local curve replica.
type BuyOutcome struct {
	SharesOut Amount
	TxHash    string
}

// SellOutcome reports an executed sell. Payout is net of the contract fee.
type SellOutcome struct {
	Payout Amount
	TxHash string
}

// AddLiquidityOutcome reports minted LP tokens for a deposit.
type AddLiquidityOutcome struct {
	LPMinted Amount
	TxHash   string
}

// RemoveLiquidityOutcome reports the proportional reserve withdrawal for a
// burned LP-token quantity.
type RemoveLiquidityOutcome struct {
	YesOut    Amount
	NoOut     Amount
	AmountOut Amount
	TxHash    string
}

// CreatePoolOutcome reports the initial state of a freshly created pool.
type CreatePoolOutcome struct {
	TxHash   string
	Reserves PoolReserves
}

// LedgerOutcome is the generic settlement view of an already-submitted
// transaction, used when re-verifying a pending trade by hash.
type LedgerOutcome struct {
	Status TxStatus
	Amount Amount // sharesOut / payout / lpMinted / usdcOut, per trade side
	YesOut Amount // remove_liquidity only
	NoOut  Amount // remove_liquidity only
}

// UnsignedTx is a prepared contract call for a caller-held key. The caller
// signs it out of band and hands the raw signed bytes back to SubmitSigned.
type UnsignedTx struct {
	ChainID  int64
	Nonce    uint64
	To       string
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
}

// IndeterminateError is returned when the finality-poll budget is exhausted
// without a terminal status. The transaction may still land; callers must
// record the hash and verify later instead of retrying the trade.
type IndeterminateError struct {
	TxHash string
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("ledger outcome indeterminate for tx %s", e.TxHash)
}

func (e *IndeterminateError) Unwrap() error { return ErrIndeterminate }

// Ledger is the contract-invocation boundary. State-changing calls block
// through simulation, submission, and finality polling; read-only calls use
// simulation alone.
type Ledger interface {
	BuyShares(ctx context.Context, marketID string, outcome Outcome, amountIn, minShares Amount) (BuyOutcome, error)
	SellShares(ctx context.Context, marketID string, outcome Outcome, shares, minPayout Amount) (SellOutcome, error)
	AddLiquidity(ctx context.Context, marketID string, amount Amount) (AddLiquidityOutcome, error)
	RemoveLiquidity(ctx context.Context, marketID string, lpTokens Amount) (RemoveLiquidityOutcome, error)
	CreatePool(ctx context.Context, marketID string, initialLiquidity Amount) (CreatePoolOutcome, error)

	GetOdds(ctx context.Context, marketID string) (RawOdds, error)
	GetPoolState(ctx context.Context, marketID string) (PoolReserves, error)

	BuildBuyTx(ctx context.Context, caller, marketID string, outcome Outcome, amountIn, minShares Amount) (UnsignedTx, error)
	BuildSellTx(ctx context.Context, caller, marketID string, outcome Outcome, shares, minPayout Amount) (UnsignedTx, error)
	SubmitSigned(ctx context.Context, rawTx []byte, expectedSender string, side TradeSide) (LedgerOutcome, string, error)

	TxOutcome(ctx context.Context, txHash string, side TradeSide) (LedgerOutcome, error)
}
