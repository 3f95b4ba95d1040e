package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictr-xyz/predictr/internal/domain"
)

type stubTradeStore struct {
	domain.TradeStore
	settled []domain.TradeRecord
	deleted int64
}

func (s *stubTradeStore) ListSettledBefore(ctx context.Context, cutoff time.Time) ([]domain.TradeRecord, error) {
	return s.settled, nil
}

func (s *stubTradeStore) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.deleted = int64(len(s.settled))
	return s.deleted, nil
}

type captureBlob struct {
	key  string
	body []byte
	ct   string
	err  error
}

func (b *captureBlob) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if b.err != nil {
		return b.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.key, b.body, b.ct = path, raw, contentType
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveRunExportsAndPrunes(t *testing.T) {
	store := &stubTradeStore{settled: []domain.TradeRecord{
		{ID: "a", UserID: "u1", Status: domain.TradeStatusConfirmed},
		{ID: "b", UserID: "u2", Status: domain.TradeStatusFailed},
	}}
	blob := &captureBlob{}

	arch := NewArchiver(store, blob, 30, testLogger())
	require.NoError(t, arch.Run(context.Background()))

	assert.Equal(t, int64(2), store.deleted)
	assert.Equal(t, "application/gzip", blob.ct)
	assert.Contains(t, blob.key, "trades/")
	assert.Contains(t, blob.key, ".jsonl.gz")

	gz, err := gzip.NewReader(bytes.NewReader(blob.body))
	require.NoError(t, err)
	defer gz.Close()

	var ids []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		var rec domain.TradeRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestArchiveRunNoopWhenEmpty(t *testing.T) {
	store := &stubTradeStore{}
	blob := &captureBlob{}

	arch := NewArchiver(store, blob, 30, testLogger())
	require.NoError(t, arch.Run(context.Background()))

	assert.Empty(t, blob.key, "no object should be written")
	assert.Zero(t, store.deleted)
}

func TestArchiveRunUploadFailureLeavesRows(t *testing.T) {
	store := &stubTradeStore{settled: []domain.TradeRecord{{ID: "a"}}}
	blob := &captureBlob{err: io.ErrClosedPipe}

	arch := NewArchiver(store, blob, 30, testLogger())
	require.Error(t, arch.Run(context.Background()))
	assert.Zero(t, store.deleted, "rows must survive a failed upload")
}
