package evm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// waitMined polls for the transaction receipt until a terminal status is
// observed or the poll budget runs out. Exhaustion (or cancellation, since
// the transaction is already on the wire) yields *domain.IndeterminateError
// carrying the hash: the operation may still land, so the caller must not
// treat it as failed.
func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// Not yet mined; keep polling.
		default:
			// Transient RPC failures consume an attempt but don't abort:
			// the outcome is still unknown, not failed.
			c.logger.WarnContext(ctx, "receipt poll failed",
				slog.String("tx_hash", txHash.Hex()),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil, &domain.IndeterminateError{TxHash: txHash.Hex()}
		case <-time.After(c.pollInterval):
		}
	}

	c.logger.WarnContext(ctx, "finality poll budget exhausted",
		slog.String("tx_hash", txHash.Hex()),
		slog.Int("attempts", c.pollAttempts),
	)
	return nil, &domain.IndeterminateError{TxHash: txHash.Hex()}
}
