package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nationforge/economy/internal/domain"
)

// AssetStore implements domain.AssetRegistry on the asset ownership table.
// Because it shares the database with the ledger and auction tables, its
// mutations can participate in the auction store's transactions through the
// package-level tx helpers below.
type AssetStore struct {
	pool *pgxpool.Pool
}

// NewAssetStore creates an AssetStore backed by the given connection pool.
func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

// Grant adds quantity units of an item to an account, creating the ownership
// row if needed. Used by the surrounding platform when items are produced or
// awarded.
func (s *AssetStore) Grant(ctx context.Context, itemRef, ownerID string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidAmount
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assets (item_ref, owner_id, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (item_ref, owner_id)
		 DO UPDATE SET quantity = assets.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		itemRef, ownerID, quantity)
	if err != nil {
		return fmt.Errorf("postgres: grant asset %s to %s: %w", itemRef, ownerID, err)
	}
	return nil
}

// LockAsset marks the owner's holding of itemRef as locked. It fails with
// ErrItemNotOwned when the owner holds no units and ErrItemLocked when the
// holding is already locked by another auction.
func (s *AssetStore) LockAsset(ctx context.Context, itemRef, ownerID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return lockAssetTx(ctx, tx, itemRef, ownerID)
	})
}

// UnlockAsset clears the locked flag. Unlocking an unlocked holding is a
// no-op, keeping the operation idempotent.
func (s *AssetStore) UnlockAsset(ctx context.Context, itemRef, ownerID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return unlockAssetTx(ctx, tx, itemRef, ownerID)
	})
}

// TransferAsset moves one unit of itemRef between accounts, clearing any lock
// held on the source holding.
func (s *AssetStore) TransferAsset(ctx context.Context, itemRef, fromID, toID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return transferAssetTx(ctx, tx, itemRef, fromID, toID)
	})
}

// GetOwnership returns the ownership row for one item and account.
func (s *AssetStore) GetOwnership(ctx context.Context, itemRef, ownerID string) (domain.AssetOwnership, error) {
	var o domain.AssetOwnership
	err := s.pool.QueryRow(ctx,
		`SELECT item_ref, owner_id, quantity, locked, updated_at
		 FROM assets WHERE item_ref = $1 AND owner_id = $2`,
		itemRef, ownerID,
	).Scan(&o.ItemRef, &o.OwnerID, &o.Quantity, &o.Locked, &o.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.AssetOwnership{}, domain.ErrNotFound
		}
		return domain.AssetOwnership{}, fmt.Errorf("postgres: get ownership %s/%s: %w", itemRef, ownerID, err)
	}
	return o, nil
}

func (s *AssetStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin asset op: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit asset op: %w", err)
	}
	return nil
}

func lockAssetTx(ctx context.Context, tx pgx.Tx, itemRef, ownerID string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE assets SET locked = TRUE, updated_at = NOW()
		 WHERE item_ref = $1 AND owner_id = $2 AND quantity >= 1 AND locked = FALSE`,
		itemRef, ownerID)
	if err != nil {
		return fmt.Errorf("postgres: lock asset %s/%s: %w", itemRef, ownerID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish "not owned" from "already locked".
	var locked bool
	err = tx.QueryRow(ctx,
		`SELECT locked FROM assets WHERE item_ref = $1 AND owner_id = $2 AND quantity >= 1`,
		itemRef, ownerID,
	).Scan(&locked)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrItemNotOwned
		}
		return fmt.Errorf("postgres: inspect asset %s/%s: %w", itemRef, ownerID, err)
	}
	if locked {
		return domain.ErrItemLocked
	}
	return domain.ErrItemNotOwned
}

func unlockAssetTx(ctx context.Context, tx pgx.Tx, itemRef, ownerID string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE assets SET locked = FALSE, updated_at = NOW()
		 WHERE item_ref = $1 AND owner_id = $2 AND locked = TRUE`,
		itemRef, ownerID,
	); err != nil {
		return fmt.Errorf("postgres: unlock asset %s/%s: %w", itemRef, ownerID, err)
	}
	return nil
}

func transferAssetTx(ctx context.Context, tx pgx.Tx, itemRef, fromID, toID string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE assets SET quantity = quantity - 1, locked = FALSE, updated_at = NOW()
		 WHERE item_ref = $1 AND owner_id = $2 AND quantity >= 1`,
		itemRef, fromID)
	if err != nil {
		return fmt.Errorf("postgres: transfer asset %s from %s: %w", itemRef, fromID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrItemNotOwned
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO assets (item_ref, owner_id, quantity) VALUES ($1, $2, 1)
		 ON CONFLICT (item_ref, owner_id)
		 DO UPDATE SET quantity = assets.quantity + 1, updated_at = NOW()`,
		itemRef, toID,
	); err != nil {
		return fmt.Errorf("postgres: transfer asset %s to %s: %w", itemRef, toID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AssetRegistry = (*AssetStore)(nil)
