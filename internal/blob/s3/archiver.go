package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nationforge/economy/internal/domain"
)

// The archiver only requires the time-ranged query methods it actually
// calls, not the full domain store interfaces; the postgres stores satisfy
// these implicitly.

// TransactionArchiveStore provides read access to old transactions.
type TransactionArchiveStore interface {
	TransactionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error)
}

// AuctionArchiveStore provides read access to settled auctions.
type AuctionArchiveStore interface {
	TerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Auction, error)
}

// exportBatchLimit bounds the records pulled per archive run.
const exportBatchLimit = 50000

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, and uploading the result to S3.
//
// The export is copy-only. The ledger is append-only by contract, so no
// pruning step follows an archive run.
type ArchiveImpl struct {
	writer       domain.BlobWriter
	transactions TransactionArchiveStore
	auctions     AuctionArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	transactions TransactionArchiveStore,
	auctions AuctionArchiveStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:       writer,
		transactions: transactions,
		auctions:     auctions,
	}
}

// ArchiveTransactions queries transactions before the cutoff, serializes
// them to JSONL, and uploads the file to
// ledger/YYYY/MM/transactions-<cutoff-date>.jsonl. It returns the number of
// archived records.
func (a *ArchiveImpl) ArchiveTransactions(ctx context.Context, before time.Time) (int64, error) {
	txns, err := a.transactions.TransactionsBefore(ctx, before, exportBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions query: %w", err)
	}
	if len(txns) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(txns)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions marshal: %w", err)
	}

	path := archivePath("ledger", "transactions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions upload: %w", err)
	}

	return int64(len(txns)), nil
}

// ArchiveAuctions queries completed and cancelled auctions before the
// cutoff, serializes them to JSONL, and uploads the file to
// auctions/YYYY/MM/terminal-<cutoff-date>.jsonl. It returns the number of
// archived records.
func (a *ArchiveImpl) ArchiveAuctions(ctx context.Context, before time.Time) (int64, error) {
	auctions, err := a.auctions.TerminalBefore(ctx, before, exportBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions query: %w", err)
	}
	if len(auctions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(auctions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions marshal: %w", err)
	}

	path := archivePath("auctions", "terminal", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions upload: %w", err)
	}

	return int64(len(auctions)), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)

// archivePath builds the S3 key for an archive file, partitioned by the
// year and month of the cutoff time.
//
//	ledger/2026/03/transactions-2026-03-01.jsonl
//	auctions/2026/03/terminal-2026-03-01.jsonl
func archivePath(prefix, kind string, before time.Time) string {
	return fmt.Sprintf("%s/%s/%s-%s.jsonl",
		prefix, before.Format("2006/01"), kind, before.Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
