package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nationforge/economy/internal/domain"
)

// AssetRegistry is the slice of the asset store the handler needs. Grants
// come from the surrounding platform when items are produced or awarded.
type AssetRegistry interface {
	Grant(ctx context.Context, itemRef, ownerID string, quantity int) error
	GetOwnership(ctx context.Context, itemRef, ownerID string) (domain.AssetOwnership, error)
}

// AssetHandler exposes platform-internal asset registry endpoints.
type AssetHandler struct {
	assets AssetRegistry
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(assets AssetRegistry, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		assets: assets,
		logger: logHandler(logger, "asset"),
	}
}

type grantRequest struct {
	ItemRef  string `json:"item_ref"`
	OwnerID  string `json:"owner_id"`
	Quantity int    `json:"quantity"`
}

// Grant adds units of an item to an account.
// POST /api/assets/grant
func (h *AssetHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemRef == "" || req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "item_ref and owner_id are required")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	if err := h.assets.Grant(r.Context(), req.ItemRef, req.OwnerID, req.Quantity); err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "grant failed",
			slog.String("item_ref", req.ItemRef),
			slog.String("owner_id", req.OwnerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to grant item")
		return
	}

	ownership, err := h.assets.GetOwnership(r.Context(), req.ItemRef, req.OwnerID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, ownership)
}

// GetOwnership returns one account's holding of one item.
// GET /api/assets/{item_ref}/owners/{owner_id}
func (h *AssetHandler) GetOwnership(w http.ResponseWriter, r *http.Request) {
	itemRef := pathParam(r, "item_ref")
	ownerID := pathParam(r, "owner_id")

	ownership, err := h.assets.GetOwnership(r.Context(), itemRef, ownerID)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "get ownership failed",
			slog.String("item_ref", itemRef),
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch ownership")
		return
	}

	writeJSON(w, http.StatusOK, ownership)
}
