package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// ammABIJSON is the caller-facing surface of the AMM contract. The bonding
// curve behind these entry points is opaque to this process; executed
// amounts are read from the emitted events, never recomputed locally.
const ammABIJSON = `[
  {"type":"function","name":"buyShares","stateMutability":"nonpayable",
   "inputs":[{"name":"marketId","type":"bytes32"},{"name":"outcome","type":"uint8"},
             {"name":"amountIn","type":"uint256"},{"name":"minSharesOut","type":"uint256"}],
   "outputs":[{"name":"sharesOut","type":"uint256"}]},
  {"type":"function","name":"sellShares","stateMutability":"nonpayable",
   "inputs":[{"name":"marketId","type":"bytes32"},{"name":"outcome","type":"uint8"},
             {"name":"sharesIn","type":"uint256"},{"name":"minPayout","type":"uint256"}],
   "outputs":[{"name":"payout","type":"uint256"}]},
  {"type":"function","name":"addLiquidity","stateMutability":"nonpayable",
   "inputs":[{"name":"marketId","type":"bytes32"},{"name":"amountIn","type":"uint256"}],
   "outputs":[{"name":"lpMinted","type":"uint256"}]},
  {"type":"function","name":"removeLiquidity","stateMutability":"nonpayable",
   "inputs":[{"name":"marketId","type":"bytes32"},{"name":"lpTokens","type":"uint256"}],
   "outputs":[{"name":"yesOut","type":"uint256"},{"name":"noOut","type":"uint256"},
              {"name":"amountOut","type":"uint256"}]},
  {"type":"function","name":"createPool","stateMutability":"nonpayable",
   "inputs":[{"name":"marketId","type":"bytes32"},{"name":"initialLiquidity","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"getOdds","stateMutability":"view",
   "inputs":[{"name":"marketId","type":"bytes32"}],
   "outputs":[{"name":"yesBps","type":"uint256"},{"name":"noBps","type":"uint256"}]},
  {"type":"function","name":"getPool","stateMutability":"view",
   "inputs":[{"name":"marketId","type":"bytes32"}],
   "outputs":[{"name":"yesReserve","type":"uint256"},{"name":"noReserve","type":"uint256"}]},
  {"type":"event","name":"SharesBought","anonymous":false,
   "inputs":[{"name":"marketId","type":"bytes32","indexed":true},
             {"name":"trader","type":"address","indexed":true},
             {"name":"outcome","type":"uint8","indexed":false},
             {"name":"amountIn","type":"uint256","indexed":false},
             {"name":"sharesOut","type":"uint256","indexed":false}]},
  {"type":"event","name":"SharesSold","anonymous":false,
   "inputs":[{"name":"marketId","type":"bytes32","indexed":true},
             {"name":"trader","type":"address","indexed":true},
             {"name":"outcome","type":"uint8","indexed":false},
             {"name":"sharesIn","type":"uint256","indexed":false},
             {"name":"payout","type":"uint256","indexed":false}]},
  {"type":"event","name":"LiquidityAdded","anonymous":false,
   "inputs":[{"name":"marketId","type":"bytes32","indexed":true},
             {"name":"provider","type":"address","indexed":true},
             {"name":"amountIn","type":"uint256","indexed":false},
             {"name":"lpMinted","type":"uint256","indexed":false}]},
  {"type":"event","name":"LiquidityRemoved","anonymous":false,
   "inputs":[{"name":"marketId","type":"bytes32","indexed":true},
             {"name":"provider","type":"address","indexed":true},
             {"name":"lpBurned","type":"uint256","indexed":false},
             {"name":"yesOut","type":"uint256","indexed":false},
             {"name":"noOut","type":"uint256","indexed":false},
             {"name":"amountOut","type":"uint256","indexed":false}]}
]`

var ammABI = mustParseABI(ammABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("evm: parsing AMM ABI: %v", err))
	}
	return parsed
}

// eventNameForSide maps a trade side to the event that carries its executed
// amounts.
func eventNameForSide(side domain.TradeSide) (string, error) {
	switch side {
	case domain.TradeSideBuy:
		return "SharesBought", nil
	case domain.TradeSideSell:
		return "SharesSold", nil
	case domain.TradeSideAddLiquidity:
		return "LiquidityAdded", nil
	case domain.TradeSideRemoveLiquidity:
		return "LiquidityRemoved", nil
	default:
		return "", fmt.Errorf("evm: no settlement event for side %q", side)
	}
}

// settledAmounts extracts the executed amounts for the given side from a
// successful receipt's event logs. The contract's event is the chain's
// authoritative record of what the trade actually produced.
func (c *Client) settledAmounts(receipt *types.Receipt, side domain.TradeSide) (domain.LedgerOutcome, error) {
	// createPool emits no event; a successful receipt is the whole outcome
	// and LP tokens mint one-to-one with the seeded liquidity.
	if side == domain.TradeSideCreatePool {
		return domain.LedgerOutcome{Status: domain.TxStatusSuccess}, nil
	}

	eventName, err := eventNameForSide(side)
	if err != nil {
		return domain.LedgerOutcome{}, err
	}
	event, ok := ammABI.Events[eventName]
	if !ok {
		return domain.LedgerOutcome{}, fmt.Errorf("evm: unknown event %q", eventName)
	}

	for _, lg := range receipt.Logs {
		if lg.Address != c.contract || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}

		vals, err := ammABI.Unpack(eventName, lg.Data)
		if err != nil {
			return domain.LedgerOutcome{}, fmt.Errorf("evm: unpack %s: %w", eventName, err)
		}

		out := domain.LedgerOutcome{Status: domain.TxStatusSuccess}
		switch side {
		case domain.TradeSideBuy, domain.TradeSideSell:
			// outcome, amountIn/sharesIn, sharesOut/payout
			amt, err := bigAt(vals, 2)
			if err != nil {
				return domain.LedgerOutcome{}, err
			}
			out.Amount = amt
		case domain.TradeSideAddLiquidity:
			// amountIn, lpMinted
			amt, err := bigAt(vals, 1)
			if err != nil {
				return domain.LedgerOutcome{}, err
			}
			out.Amount = amt
		case domain.TradeSideRemoveLiquidity:
			// lpBurned, yesOut, noOut, amountOut
			yes, err := bigAt(vals, 1)
			if err != nil {
				return domain.LedgerOutcome{}, err
			}
			no, err := bigAt(vals, 2)
			if err != nil {
				return domain.LedgerOutcome{}, err
			}
			amt, err := bigAt(vals, 3)
			if err != nil {
				return domain.LedgerOutcome{}, err
			}
			out.YesOut, out.NoOut, out.Amount = yes, no, amt
		}
		return out, nil
	}

	return domain.LedgerOutcome{}, fmt.Errorf("evm: receipt for tx %s carries no %s event", receipt.TxHash, eventName)
}

func bigAt(vals []any, idx int) (domain.Amount, error) {
	if idx >= len(vals) {
		return 0, fmt.Errorf("evm: event value index %d out of range", idx)
	}
	n, ok := vals[idx].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("evm: event value %d is not a uint256", idx)
	}
	amt, err := domain.AmountFromBig(n)
	if err != nil {
		return 0, fmt.Errorf("evm: event value %d: %w", idx, err)
	}
	return amt, nil
}
