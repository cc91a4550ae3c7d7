package domain

import (
	"context"
	"time"
)

// AssetOwnership records how many units of a tradable item an account holds.
// Locked is set while an active auction references the item and cleared when
// the auction reaches a terminal state.
type AssetOwnership struct {
	ItemRef   string    `json:"item_ref"`
	OwnerID   string    `json:"owner_id"`
	Quantity  int       `json:"quantity"`
	Locked    bool      `json:"locked"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssetRegistry is the boundary the auction engine drives at well-defined
// lifecycle points. All three mutations are atomic and idempotent from the
// engine's perspective; a failure aborts the enclosing operation.
type AssetRegistry interface {
	LockAsset(ctx context.Context, itemRef, ownerID string) error
	UnlockAsset(ctx context.Context, itemRef, ownerID string) error
	TransferAsset(ctx context.Context, itemRef, fromID, toID string) error
	GetOwnership(ctx context.Context, itemRef, ownerID string) (AssetOwnership, error)
}
