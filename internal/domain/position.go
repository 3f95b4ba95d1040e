package domain

import "time"

// Position tracks one user's holding in one outcome of one market. Quantity
// never goes negative and SoldQuantity never exceeds the lifetime quantity
// acquired; both are enforced by the coordinator before any ledger call.
type Position struct {
	ID           string
	UserID       string
	MarketID     string
	Outcome      Outcome
	Quantity     Amount // shares currently held
	CostBasis    Amount // USDC spent acquiring the currently tracked lot
	SoldQuantity Amount // lifetime shares sold
	RealizedPnL  Amount // proceeds minus proportional cost basis of sold shares
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AveragePrice returns cost basis per held share, for display.
func (p Position) AveragePrice() float64 {
	if p.Quantity == 0 {
		return 0
	}
	return p.CostBasis.Float() / p.Quantity.Float()
}

// LiquidityPosition tracks one user's LP-token share of one market's pool.
type LiquidityPosition struct {
	ID        string
	UserID    string
	MarketID  string
	LPTokens  Amount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance is a user's spendable off-chain balance in the settlement currency.
// It is debited and credited only inside the reconciliation transaction that
// settles a trade record.
type Balance struct {
	UserID    string
	Amount    Amount
	UpdatedAt time.Time
}
