// Package archive moves settled trade records from the database to object
// storage. Settled rows older than the retention window are exported as
// gzip-compressed JSON lines and then pruned, keeping the hot trades table
// small while preserving full history.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// BlobWriter is the subset of object storage the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports settled trades to object storage and prunes them from
// the database. Pending trades are never touched.
type Archiver struct {
	trades        domain.TradeStore
	blob          BlobWriter
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(trades domain.TradeStore, blob BlobWriter, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		trades:        trades,
		blob:          blob,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass. It exports all settled trades older
// than the retention cutoff to one gzip JSONL object, then deletes them.
// The upload happens before the delete so a failure between the two steps
// duplicates data rather than losing it.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)

	trades, err := a.trades.ListSettledBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: list settled trades: %w", err)
	}
	if len(trades) == 0 {
		a.logger.Debug("archive run found nothing to export",
			slog.Time("cutoff", cutoff))
		return nil
	}

	body, err := encodeBatch(trades)
	if err != nil {
		return fmt.Errorf("archive: encode batch: %w", err)
	}

	key := objectKey(time.Now().UTC())
	if err := a.blob.Put(ctx, key, bytes.NewReader(body), "application/gzip"); err != nil {
		return fmt.Errorf("archive: upload batch %s: %w", key, err)
	}

	deleted, err := a.trades.DeleteSettledBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: prune settled trades: %w", err)
	}

	a.logger.Info("archive run complete",
		slog.Time("cutoff", cutoff),
		slog.String("object", key),
		slog.Int("exported", len(trades)),
		slog.Int64("pruned", deleted),
	)
	return nil
}

// RunInterval runs archive passes on a fixed interval until the context is
// cancelled.
func (a *Archiver) RunInterval(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// objectKey builds the storage key for one archive batch, partitioned by
// date so downstream tooling can scan ranges cheaply.
func objectKey(now time.Time) string {
	return fmt.Sprintf("trades/%s/batch-%d.jsonl.gz",
		now.Format("2006/01/02"), now.UnixNano())
}

// encodeBatch serializes trades as gzip-compressed JSON lines.
func encodeBatch(trades []domain.TradeRecord) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
