package evm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// buildUnsigned prepares an unsigned contract call for a caller-held key.
// The call is simulated from the caller's address first so contract-level
// failures surface before the caller signs anything.
func (c *Client) buildUnsigned(ctx context.Context, caller string, data []byte) (domain.UnsignedTx, error) {
	if !common.IsHexAddress(caller) {
		return domain.UnsignedTx{}, fmt.Errorf("evm: caller address %q invalid", caller)
	}
	from := common.HexToAddress(caller)
	msg := ethereum.CallMsg{From: from, To: &c.contract, Data: data}

	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("evm: build simulation: %v: %w", err, domain.ErrLedgerRejected)
	}

	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("evm: build gas estimate: %v: %w", err, domain.ErrLedgerRejected)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("evm: build gas price: %w", err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("evm: build nonce: %w", err)
	}

	return domain.UnsignedTx{
		ChainID:  c.chainID.Int64(),
		Nonce:    nonce,
		To:       c.contract.Hex(),
		Data:     data,
		Gas:      gas + gas/5,
		GasPrice: gasPrice,
	}, nil
}

// BuildBuyTx prepares an unsigned buy for the given caller identity.
func (c *Client) BuildBuyTx(ctx context.Context, caller, marketID string, outcome domain.Outcome, amountIn, minShares domain.Amount) (domain.UnsignedTx, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.UnsignedTx{}, err
	}
	data, err := ammABI.Pack("buyShares", id, uint8(outcome), amountIn.BigInt(), minShares.BigInt())
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("evm: pack buyShares: %w", err)
	}
	return c.buildUnsigned(ctx, caller, data)
}

// BuildSellTx prepares an unsigned sell for the given caller identity.
func (c *Client) BuildSellTx(ctx context.Context, caller, marketID string, outcome domain.Outcome, shares, minPayout domain.Amount) (domain.UnsignedTx, error) {
	id, err := ParseMarketID(marketID)
	if err != nil {
		return domain.UnsignedTx{}, err
	}
	data, err := ammABI.Pack("sellShares", id, uint8(outcome), shares.BigInt(), minPayout.BigInt())
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("evm: pack sellShares: %w", err)
	}
	return c.buildUnsigned(ctx, caller, data)
}

// SubmitSigned decodes an externally signed transaction, verifies the signer
// matches the identity recorded at build time, submits it, and awaits
// finality. A signer mismatch is rejected before submission; the wrong key
// was used.
func (c *Client) SubmitSigned(ctx context.Context, rawTx []byte, expectedSender string, side domain.TradeSide) (domain.LedgerOutcome, string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return domain.LedgerOutcome{}, "", fmt.Errorf("evm: decode signed tx: %w", err)
	}

	if tx.To() == nil || *tx.To() != c.contract {
		return domain.LedgerOutcome{}, "", fmt.Errorf("evm: signed tx targets %v, want %s: %w",
			tx.To(), c.contract.Hex(), domain.ErrLedgerRejected)
	}

	sender, err := types.Sender(c.signer, tx)
	if err != nil {
		return domain.LedgerOutcome{}, "", fmt.Errorf("evm: recover signer: %w", err)
	}
	if !strings.EqualFold(sender.Hex(), expectedSender) {
		return domain.LedgerOutcome{}, "", fmt.Errorf("evm: tx signed by %s, expected %s: %w",
			sender.Hex(), expectedSender, domain.ErrSignerMismatch)
	}

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return domain.LedgerOutcome{}, "", fmt.Errorf("evm: submit signed tx: %v: %w", err, domain.ErrLedgerRejected)
	}

	hash := tx.Hash()
	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return domain.LedgerOutcome{Status: domain.TxStatusUnknown}, hash.Hex(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.LedgerOutcome{Status: domain.TxStatusFailed}, hash.Hex(),
			fmt.Errorf("evm: signed tx reverted on chain (tx %s): %w", hash.Hex(), domain.ErrLedgerRejected)
	}

	settled, err := c.settledAmounts(receipt, side)
	if err != nil {
		return domain.LedgerOutcome{}, hash.Hex(), err
	}
	return settled, hash.Hex(), nil
}

// TxOutcome fetches a previously submitted transaction's settlement once,
// without polling. Used to re-verify pending trade records whose finality
// poll was exhausted or whose reconciliation was interrupted.
func (c *Client) TxOutcome(ctx context.Context, txHash string, side domain.TradeSide) (domain.LedgerOutcome, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return domain.LedgerOutcome{Status: domain.TxStatusUnknown}, nil
		}
		return domain.LedgerOutcome{}, fmt.Errorf("evm: receipt for %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.LedgerOutcome{Status: domain.TxStatusFailed}, nil
	}
	return c.settledAmounts(receipt, side)
}
