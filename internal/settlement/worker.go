// Package settlement drives expired auctions to their terminal state. The
// worker polls for due auctions on a fixed interval and settles each one
// individually, so a single bad auction never blocks the rest of the batch.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nationforge/economy/internal/domain"
	"github.com/nationforge/economy/internal/notify"
)

// Engine is the slice of the auction service the worker needs.
type Engine interface {
	DueAuctions(ctx context.Context, limit int) ([]string, error)
	CompleteExpired(ctx context.Context, auctionID string) (domain.SettlementResult, error)
}

// Config holds the worker tunables.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// BatchSize bounds the auctions claimed per sweep pass.
	BatchSize int
}

const (
	defaultInterval  = 30 * time.Second
	defaultBatchSize = 200
)

// Worker settles expired auctions in the background.
type Worker struct {
	engine   Engine
	notifier *notify.Notifier
	cfg      Config
	logger   *slog.Logger
}

// NewWorker creates a settlement Worker. notifier may be nil, in which case
// settlement failures are only logged.
func NewWorker(engine Engine, notifier *notify.Notifier, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Worker{
		engine:   engine,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "settlement_worker")),
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("settlement worker starting",
		slog.Duration("interval", w.cfg.Interval),
		slog.Int("batch_size", w.cfg.BatchSize),
	)

	if _, err := w.Sweep(ctx); err != nil {
		w.logger.Error("initial sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settlement worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep settles every currently due auction and returns how many reached a
// terminal state. Per-auction failures are logged and reported but do not
// stop the batch; only a failure to list due auctions aborts the sweep.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	settled := 0
	for {
		due, err := w.engine.DueAuctions(ctx, w.cfg.BatchSize)
		if err != nil {
			return settled, fmt.Errorf("settlement: list due auctions: %w", err)
		}
		if len(due) == 0 {
			return settled, nil
		}

		pageSettled := 0
		for _, auctionID := range due {
			if ctx.Err() != nil {
				return settled, ctx.Err()
			}
			result, err := w.engine.CompleteExpired(ctx, auctionID)
			if err != nil {
				// Another instance, or a concurrent buyout, already
				// settled this one.
				if errors.Is(err, domain.ErrAuctionNotActive) {
					continue
				}
				w.reportFailure(ctx, auctionID, err)
				continue
			}
			settled++
			pageSettled++
			w.logger.Info("auction settled",
				slog.String("auction_id", auctionID),
				slog.Bool("had_winner", result.HadWinner),
				slog.String("proceeds", result.SellerProceeds.String()),
			)
		}

		// A short page means the backlog is drained. A full page with no
		// progress means every remaining auction is failing; stop and let
		// the next sweep retry instead of spinning.
		if len(due) < w.cfg.BatchSize || pageSettled == 0 {
			return settled, nil
		}
	}
}

func (w *Worker) reportFailure(ctx context.Context, auctionID string, err error) {
	w.logger.Error("settlement failed",
		slog.String("auction_id", auctionID),
		slog.String("error", err.Error()),
	)
	if w.notifier == nil {
		return
	}
	if nerr := w.notifier.Notify(ctx, "settlement_failure",
		"Auction settlement failed",
		fmt.Sprintf("auction %s: %v", auctionID, err),
	); nerr != nil {
		w.logger.Error("settlement alert failed", slog.String("error", nerr.Error()))
	}
}
