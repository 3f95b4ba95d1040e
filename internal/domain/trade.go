package domain

import "time"

// TradeSide is the direction of a trade against the AMM pool.
type TradeSide string

const (
	TradeSideBuy             TradeSide = "buy"
	TradeSideSell            TradeSide = "sell"
	TradeSideAddLiquidity    TradeSide = "add_liquidity"
	TradeSideRemoveLiquidity TradeSide = "remove_liquidity"
	TradeSideCreatePool      TradeSide = "create_pool"
)

// TradeStatus is the settlement state of a trade record. A record is created
// pending before any ledger call and transitions to confirmed or failed only
// after the ledger outcome is known; an exhausted finality poll leaves it
// pending with the transaction hash recorded.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusConfirmed TradeStatus = "confirmed"
	TradeStatusFailed    TradeStatus = "failed"
)

// ExecMode distinguishes trades signed by the service credential from trades
// built here but signed by the caller's own key.
type ExecMode string

const (
	ExecModeService ExecMode = "service"
	ExecModeUser    ExecMode = "user"
)

// TradeRecord is the durable audit row for one trade attempt. The intent
// fields are immutable once created; only the settlement fields change, and
// only inside reconciliation.
type TradeRecord struct {
	ID       string
	UserID   string
	MarketID string
	Outcome  Outcome
	Side     TradeSide
	Mode     ExecMode

	// Intent.
	RequestedAmount Amount // USDC in for buys / add_liquidity, shares or LP tokens for sells / remove_liquidity
	SlippageBound   Amount // min shares out (buy) or min payout (sell); zero disables the guard
	CallerAddress   string // signing identity for user-mode trades

	// Settlement.
	Status         TradeStatus
	TxHash         string
	ExecutedAmount Amount // shares received (buy), payout (sell), LP minted (add), USDC out (remove)
	FeeAmount      Amount
	FailureReason  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TradeResult is what the coordinator hands back to the caller surface after
// a trade attempt resolves.
type TradeResult struct {
	TradeID      string
	Status       TradeStatus
	TxHash       string
	SharesOut    Amount // buys
	Payout       Amount // sells
	FeeAmount    Amount
	PricePerUnit float64 // display only
	Position     *Position
}

// LiquidityResult reports the outcome of an add/remove-liquidity operation.
type LiquidityResult struct {
	TradeID   string
	Status    TradeStatus
	TxHash    string
	LPTokens  Amount // minted (add) or burned (remove)
	YesOut    Amount // remove only
	NoOut     Amount // remove only
	AmountOut Amount // USDC returned on remove
}
