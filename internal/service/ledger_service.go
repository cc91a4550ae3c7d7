// Package service implements the ledger and auction engine orchestration on
// top of the domain store interfaces. Validation happens here before any
// mutation; the stores enforce the authoritative in-transaction checks.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nationforge/economy/internal/domain"
)

// LedgerService is the single entry point for credit movement. External
// callers (missions, bonuses, marketplace actions) and the auction engine all
// move credits through it.
type LedgerService struct {
	ledger domain.LedgerStore
	caps   map[domain.TransactionType]decimal.Decimal
	logger *slog.Logger
}

// NewLedgerService creates a LedgerService. caps maps earn types to their
// rolling 24h allowance; types absent from the map are uncapped.
func NewLedgerService(
	ledger domain.LedgerStore,
	caps map[domain.TransactionType]decimal.Decimal,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		ledger: ledger,
		caps:   caps,
		logger: logger.With(slog.String("component", "ledger_service")),
	}
}

// Earn credits an account. The amount must be positive with at most two
// decimals and the type must be an EARN_* type.
func (s *LedgerService) Earn(
	ctx context.Context,
	accountID string,
	amount decimal.Decimal,
	typ domain.TransactionType,
	source string,
	metadata map[string]string,
) (domain.Transaction, error) {
	if !typ.IsEarn() {
		return domain.Transaction{}, domain.ErrInvalidType
	}
	if !domain.ValidMoney(amount) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	txn, err := s.ledger.Earn(ctx, domain.EntryParams{
		AccountID: accountID,
		Amount:    amount,
		Type:      typ,
		Source:    source,
		Metadata:  metadata,
		DailyCap:  s.caps[typ],
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "credits earned",
		slog.String("account_id", accountID),
		slog.String("amount", amount.String()),
		slog.String("type", string(typ)),
		slog.String("source", source),
	)
	return txn, nil
}

// Spend debits an account. It fails with ErrInsufficientFunds when the
// balance cannot cover the amount; no partial debit ever occurs.
func (s *LedgerService) Spend(
	ctx context.Context,
	accountID string,
	amount decimal.Decimal,
	typ domain.TransactionType,
	source string,
	metadata map[string]string,
) (domain.Transaction, error) {
	if !typ.IsSpend() {
		return domain.Transaction{}, domain.ErrInvalidType
	}
	if !domain.ValidMoney(amount) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	txn, err := s.ledger.Spend(ctx, domain.EntryParams{
		AccountID: accountID,
		Amount:    amount,
		Type:      typ,
		Source:    source,
		Metadata:  metadata,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "credits spent",
		slog.String("account_id", accountID),
		slog.String("amount", amount.String()),
		slog.String("type", string(typ)),
		slog.String("source", source),
	)
	return txn, nil
}

// Adjust applies a signed administrative correction. Negative adjustments
// respect the non-negative balance invariant like any other debit.
func (s *LedgerService) Adjust(
	ctx context.Context,
	accountID string,
	amount decimal.Decimal,
	source string,
	metadata map[string]string,
) (domain.Transaction, error) {
	if amount.IsZero() || amount.Exponent() < -2 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	p := domain.EntryParams{
		AccountID: accountID,
		Amount:    amount.Abs(),
		Type:      domain.AdminAdjustment,
		Source:    source,
		Metadata:  metadata,
	}
	if amount.IsNegative() {
		return s.ledger.Spend(ctx, p)
	}
	return s.ledger.Earn(ctx, p)
}

// GetBalance returns the account snapshot. Unknown accounts report a zero
// balance rather than an error, since accounts only materialize on first
// credit.
func (s *LedgerService) GetBalance(ctx context.Context, accountID string) (domain.Account, error) {
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		if err == domain.ErrNotFound {
			return domain.Account{
				ID:             accountID,
				Balance:        decimal.Zero,
				LifetimeEarned: decimal.Zero,
				LifetimeSpent:  decimal.Zero,
				Level:          1,
			}, nil
		}
		return domain.Account{}, err
	}
	return account, nil
}

// GetHistory returns a page of the account's transaction log, newest first,
// optionally filtered by type.
func (s *LedgerService) GetHistory(
	ctx context.Context,
	accountID string,
	typ domain.TransactionType,
	opts domain.ListOpts,
) ([]domain.Transaction, error) {
	return s.ledger.ListTransactions(ctx, accountID, typ, opts)
}

// loginBonus returns the daily streak bonus: 10 credits plus 5 for each
// consecutive day beyond the first, capped at a 7-day streak.
func loginBonus(streak int) decimal.Decimal {
	if streak > 7 {
		streak = 7
	}
	if streak < 1 {
		streak = 1
	}
	return decimal.NewFromInt(10 + 5*int64(streak-1))
}

// RecordLogin advances the account's login streak and pays the streak bonus
// on the first login of each day. Repeat logins return the current streak
// with no transaction.
func (s *LedgerService) RecordLogin(ctx context.Context, accountID string, now time.Time) (domain.LoginResult, *domain.Transaction, error) {
	result, err := s.ledger.RecordLogin(ctx, accountID, now)
	if err != nil {
		return domain.LoginResult{}, nil, err
	}
	if !result.FirstToday {
		return result, nil, nil
	}

	txn, err := s.Earn(ctx, accountID, loginBonus(result.Streak), domain.EarnLoginStreak,
		"login", map[string]string{"streak": fmt.Sprintf("%d", result.Streak)})
	if err != nil {
		// The streak advanced but the bonus failed; surface the error so the
		// caller can retry the claim.
		return result, nil, fmt.Errorf("ledger_service: login bonus: %w", err)
	}
	return result, &txn, nil
}
