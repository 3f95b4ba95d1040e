package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Outcome identifies one side of a binary market. The numeric values match
// the contract's u8 encoding (0 = NO, 1 = YES).
type Outcome uint8

const (
	OutcomeNo  Outcome = 0
	OutcomeYes Outcome = 1
)

// Valid reports whether the outcome is one of the two binary sides.
func (o Outcome) Valid() bool {
	return o == OutcomeNo || o == OutcomeYes
}

// Market represents a binary-outcome prediction market whose pool lives in
// the AMM contract. Trades are accepted only while the market is open.
type Market struct {
	ID               string
	Question         string
	ContractMarketID string // 32-byte hex identifier of the on-chain pool, 0x prefix optional
	Status           MarketStatus
	FeeBpsBuy        int // buy fee in basis points, charged on the input amount
	FeeBpsSell       int // sell fee in basis points, already deducted from the ledger payout
	ResolvedOutcome  *Outcome
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Tradable reports whether the market accepts buy/sell/liquidity operations.
func (m Market) Tradable() bool {
	return m.Status == MarketStatusOpen
}

// PoolReserves is the on-chain pool state as read through the ledger
// adapter. Reserves are owned by the contract; this process only reads them.
type PoolReserves struct {
	Yes Amount
	No  Amount
}

// Odds is a point-in-time quote derived from pool state. Probabilities are
// ratios in [0,1]; they are not assumed to sum to 1.
type Odds struct {
	YesProbability float64
	NoProbability  float64
	YesPercent     int
	NoPercent      int
	YesLiquidity   Amount
	NoLiquidity    Amount
	TotalLiquidity Amount
}
