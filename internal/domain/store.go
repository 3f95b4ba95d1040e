package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	UpdateStatus(ctx context.Context, id string, status MarketStatus) error
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
}

// BalanceStore persists spendable user balances. Debit returns
// ErrInsufficientBalance when the balance cannot cover the amount; the row
// can never go negative.
type BalanceStore interface {
	Get(ctx context.Context, userID string) (Balance, error)
	Credit(ctx context.Context, userID string, amt Amount) error
	Debit(ctx context.Context, userID string, amt Amount) error
}

// PositionStore persists share positions. ApplyBuy and ApplySell upsert the
// user+market+outcome row and return the updated position.
type PositionStore interface {
	Get(ctx context.Context, userID, marketID string, outcome Outcome) (Position, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Position, error)
	ApplyBuy(ctx context.Context, userID, marketID string, outcome Outcome, shares, cost Amount) (Position, error)
	ApplySell(ctx context.Context, userID, marketID string, outcome Outcome, shares, proceeds Amount) (Position, error)
}

// LiquidityStore persists LP-token positions per user+market.
type LiquidityStore interface {
	Get(ctx context.Context, userID, marketID string) (LiquidityPosition, error)
	Credit(ctx context.Context, userID, marketID string, lpTokens Amount) (LiquidityPosition, error)
	Debit(ctx context.Context, userID, marketID string, lpTokens Amount) (LiquidityPosition, error)
}

// TradeStore persists trade records. Settle performs a compare-and-set
// transition from pending to the given terminal status and reports whether
// the transition happened; a false return means the record was already
// settled, which callers treat as an idempotent no-op.
type TradeStore interface {
	Create(ctx context.Context, rec TradeRecord) error
	GetByID(ctx context.Context, id string) (TradeRecord, error)
	SetTxHash(ctx context.Context, id, txHash string) error
	Settle(ctx context.Context, id string, status TradeStatus, txHash string, executed, fee Amount, reason string) (bool, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]TradeRecord, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]TradeRecord, error)
	ListSettledBefore(ctx context.Context, cutoff time.Time) ([]TradeRecord, error)
	DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxStores exposes the stores bound to one database transaction. Mutations
// made through them commit or roll back together.
type TxStores interface {
	Balances() BalanceStore
	Positions() PositionStore
	Liquidity() LiquidityStore
	Trades() TradeStore
}

// UnitOfWork runs fn inside a single database transaction. It is the
// multi-row atomic-commit primitive the reconciler builds on.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx TxStores) error) error
}
