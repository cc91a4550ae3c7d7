// Package archive runs the periodic cold-storage export of ledger and
// auction history.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nationforge/economy/internal/domain"
	"github.com/nationforge/economy/internal/notify"
)

// Config holds the export tunables.
type Config struct {
	// Interval between export runs.
	Interval time.Duration
	// RetentionDays is the age a record must reach before it is exported.
	RetentionDays int
}

const (
	defaultInterval      = 24 * time.Hour
	defaultRetentionDays = 90
)

// Runner exports old records to cold storage on a fixed interval.
type Runner struct {
	archiver domain.Archiver
	notifier *notify.Notifier
	cfg      Config
	logger   *slog.Logger
}

// NewRunner creates an archive Runner. notifier may be nil, in which case
// export failures are only logged.
func NewRunner(archiver domain.Archiver, notifier *notify.Notifier, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Runner{
		archiver: archiver,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "archive_runner")),
	}
}

// Run exports once immediately, then on every tick until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("archive runner starting",
		slog.Duration("interval", r.cfg.Interval),
		slog.Int("retention_days", r.cfg.RetentionDays),
	)

	if err := r.Export(ctx); err != nil {
		r.reportFailure(ctx, err)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("archive runner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Export(ctx); err != nil {
				r.reportFailure(ctx, err)
			}
		}
	}
}

// Export runs one archive pass over transactions and terminal auctions older
// than the retention window.
func (r *Runner) Export(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(r.cfg.RetentionDays) * 24 * time.Hour)
	r.logger.Info("starting archive run", slog.Time("cutoff", cutoff))

	txnCount, err := r.archiver.ArchiveTransactions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: transactions before %s: %w", cutoff, err)
	}

	auctionCount, err := r.archiver.ArchiveAuctions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: auctions before %s: %w", cutoff, err)
	}

	r.logger.Info("archive run complete",
		slog.Int64("transactions", txnCount),
		slog.Int64("auctions", auctionCount),
	)
	return nil
}

func (r *Runner) reportFailure(ctx context.Context, err error) {
	r.logger.Error("archive run failed", slog.String("error", err.Error()))
	if r.notifier == nil {
		return
	}
	if nerr := r.notifier.Notify(ctx, "archive_failure",
		"Ledger archive run failed", err.Error(),
	); nerr != nil {
		r.logger.Error("archive alert failed", slog.String("error", nerr.Error()))
	}
}
