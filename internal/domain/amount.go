package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the number of fractional digits carried by Amount.
// It matches the 6-decimal USDC convention; shares use the same scale.
const AmountDecimals = 6

// amountUnit is 10^AmountDecimals.
const amountUnit = 1_000_000

// Amount is an integer count of micro-units (micro-USDC or micro-shares).
// All fee and slippage arithmetic happens on Amount; conversion to a
// human-readable decimal is confined to the caller-facing boundary, and
// conversion to *big.Int to the ledger boundary.
type Amount int64

// AmountFromDecimal converts a caller-supplied decimal value into micro-units,
// truncating anything below the sixth decimal place.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	scaled := d.Shift(AmountDecimals).Truncate(0)
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("domain: amount %s overflows", d)
	}
	return Amount(scaled.IntPart()), nil
}

// AmountFromBig converts a ledger-returned integer into an Amount. Negative
// values and values beyond int64 range are rejected rather than wrapped.
func AmountFromBig(n *big.Int) (Amount, error) {
	if n == nil {
		return 0, fmt.Errorf("domain: nil ledger amount")
	}
	if n.Sign() < 0 {
		return 0, fmt.Errorf("domain: negative ledger amount %s", n)
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("domain: ledger amount %s overflows", n)
	}
	return Amount(n.Int64()), nil
}

// Decimal returns the amount as a decimal in whole-currency units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -AmountDecimals)
}

// BigInt returns the amount as a *big.Int for contract calls.
func (a Amount) BigInt() *big.Int {
	return big.NewInt(int64(a))
}

// Float returns a float64 approximation in whole units. Display only; never
// use it in fee or slippage comparisons.
func (a Amount) Float() float64 {
	return float64(a) / amountUnit
}

func (a Amount) String() string {
	return a.Decimal().String()
}
