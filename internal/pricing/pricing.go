// Package pricing contains the pure quote, fee, and slippage arithmetic for
// AMM trades. Nothing here touches the ledger or the database; inputs are
// numbers already fetched from the contract or supplied by the caller.
package pricing

import (
	"fmt"
	"math"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// feeDenominator is the basis-point scale shared with the contract.
const feeDenominator = 10_000

// BuyQuote is the settlement view of an executed buy.
type BuyQuote struct {
	SharesOut    domain.Amount
	FeeAmount    domain.Amount
	PricePerUnit float64 // display only
}

// SellQuote is the settlement view of an executed sell.
type SellQuote struct {
	Payout       domain.Amount
	FeeAmount    domain.Amount
	PricePerUnit float64 // display only
}

// QuoteOdds derives display odds from the contract's bps-scaled quote and
// the pool reserves. When the contract reports no odds, probabilities fall
// back to each side's share of combined reserves, and to an even 0.5/0.5
// for an empty pool. The two probabilities are not forced to sum to 1; the
// contract's pricing model is not assumed to be complementary.
func QuoteOdds(raw domain.RawOdds, reserves domain.PoolReserves) domain.Odds {
	yesProb, noProb := 0.5, 0.5

	switch {
	case raw.YesBps > 0 || raw.NoBps > 0:
		yesProb = float64(raw.YesBps) / domain.OddsBpsScale
		noProb = float64(raw.NoBps) / domain.OddsBpsScale
	case reserves.Yes > 0 || reserves.No > 0:
		total := float64(reserves.Yes + reserves.No)
		// Deeper reserves on a side mean the market prices that side lower.
		yesProb = float64(reserves.No) / total
		noProb = float64(reserves.Yes) / total
	}

	return domain.Odds{
		YesProbability: yesProb,
		NoProbability:  noProb,
		YesPercent:     int(math.Round(yesProb * 100)),
		NoPercent:      int(math.Round(noProb * 100)),
		YesLiquidity:   reserves.Yes,
		NoLiquidity:    reserves.No,
		TotalLiquidity: reserves.Yes + reserves.No,
	}
}

// ComputeBuy derives the fee and display price for a buy. sharesOut is the
// ledger's authoritative executed amount; it is never recomputed from a
// local curve replica. The fee is charged on the input amount.
func ComputeBuy(amountIn, sharesOut domain.Amount, feeBps int) BuyQuote {
	fee := domain.Amount(int64(amountIn) * int64(feeBps) / feeDenominator)

	price := 0.0
	if sharesOut > 0 {
		price = amountIn.Float() / sharesOut.Float()
	}

	return BuyQuote{
		SharesOut:    sharesOut,
		FeeAmount:    fee,
		PricePerUnit: price,
	}
}

// ComputeSell derives the fee and display price for a sell. payout is the
// net amount the ledger returned after deducting its fee, so the fee is
// recovered by inverting the advertised rate:
//
//	fee = payout * feeBps / (10000 - feeBps)
//
// If the contract's real fee schedule ever diverges from feeBps the
// displayed fee will be wrong, but settlement amounts are unaffected.
func ComputeSell(sharesIn, payout domain.Amount, feeBps int) SellQuote {
	var fee domain.Amount
	if feeBps > 0 && feeBps < feeDenominator {
		fee = domain.Amount(int64(payout) * int64(feeBps) / int64(feeDenominator-feeBps))
	}

	price := 0.0
	if sharesIn > 0 {
		price = payout.Float() / sharesIn.Float()
	}

	return SellQuote{
		Payout:       payout,
		FeeAmount:    fee,
		PricePerUnit: price,
	}
}

// CheckMinShares enforces the buy-side slippage bound against the actual
// ledger-returned amount. A zero bound disables the guard.
func CheckMinShares(sharesOut, minShares domain.Amount) error {
	if minShares > 0 && sharesOut < minShares {
		return fmt.Errorf("pricing: received %s shares, bound %s: %w",
			sharesOut, minShares, domain.ErrSlippageExceeded)
	}
	return nil
}

// CheckMinPayout enforces the sell-side slippage bound against the actual
// ledger-returned payout.
func CheckMinPayout(payout, minPayout domain.Amount) error {
	if minPayout > 0 && payout < minPayout {
		return fmt.Errorf("pricing: received %s payout, bound %s: %w",
			payout, minPayout, domain.ErrSlippageExceeded)
	}
	return nil
}
