package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports historical ledger and auction data to cold storage.
// Exports are copy-only; the primary store keeps its rows.
type Archiver interface {
	// ArchiveTransactions exports transactions older than the cutoff and
	// returns the number of records written.
	ArchiveTransactions(ctx context.Context, before time.Time) (int64, error)
	// ArchiveAuctions exports completed and cancelled auctions older than
	// the cutoff and returns the number of records written.
	ArchiveAuctions(ctx context.Context, before time.Time) (int64, error)
}
