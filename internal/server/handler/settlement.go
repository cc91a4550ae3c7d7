package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// Sweeper triggers one settlement pass over due auctions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SettlementHandler exposes the settlement sweep for external cron systems.
type SettlementHandler struct {
	sweeper Sweeper
	logger  *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given sweeper and
// logger.
func NewSettlementHandler(sweeper Sweeper, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		sweeper: sweeper,
		logger:  logHandler(logger, "settlement"),
	}
}

// TriggerSweep settles all currently due auctions and reports the count.
// POST /api/settlement/sweep
func (h *SettlementHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	settled, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "sweep failed",
			slog.Int("settled", settled),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"settled": settled,
	})
}
