package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nationforge/economy/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. It is the only
// type in the repository that writes accounts or transactions rows; the
// auction store reuses its transaction-scoped helpers so ledger movements
// stay inside the auction's atomic scope.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// dailyCapWindow is the rolling window over which capped earn types are
// summed.
const dailyCapWindow = 24 * time.Hour

// Earn credits an account and appends the documenting transaction row in one
// database transaction. The daily-cap check runs against the same snapshot so
// two concurrent capped earns cannot both slip past the cap.
func (s *LedgerStore) Earn(ctx context.Context, p domain.EntryParams) (domain.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: begin earn: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txn, err := creditTx(ctx, tx, p)
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: commit earn: %w", err)
	}
	return txn, nil
}

// Spend debits an account; it fails with ErrInsufficientFunds before any
// mutation when the balance cannot cover the amount.
func (s *LedgerStore) Spend(ctx context.Context, p domain.EntryParams) (domain.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: begin spend: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txn, err := debitTx(ctx, tx, p)
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: commit spend: %w", err)
	}
	return txn, nil
}

// creditTx applies a credit inside an existing transaction. The account row is
// created lazily, then locked so balance_after is computed from the row read
// in this scope rather than any cached value.
func creditTx(ctx context.Context, tx pgx.Tx, p domain.EntryParams) (domain.Transaction, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		p.AccountID,
	); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: ensure account %s: %w", p.AccountID, err)
	}

	balance, err := lockBalance(ctx, tx, p.AccountID)
	if err != nil {
		return domain.Transaction{}, err
	}

	if p.DailyCap.IsPositive() {
		var sumStr string
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0)::text
			 FROM transactions
			 WHERE account_id = $1 AND type = $2 AND created_at > $3`,
			p.AccountID, string(p.Type), time.Now().UTC().Add(-dailyCapWindow),
		).Scan(&sumStr)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("postgres: sum capped earns %s: %w", p.AccountID, err)
		}
		earned, err := decimal.NewFromString(sumStr)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("postgres: parse capped sum %q: %w", sumStr, err)
		}
		if earned.Add(p.Amount).GreaterThan(p.DailyCap) {
			return domain.Transaction{}, domain.ErrDailyCapExceeded
		}
	}

	newBalance := balance.Add(p.Amount)
	if _, err := tx.Exec(ctx,
		`UPDATE accounts
		 SET balance = $2, lifetime_earned = lifetime_earned + $3, updated_at = NOW()
		 WHERE id = $1`,
		p.AccountID, newBalance.String(), p.Amount.String(),
	); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: credit account %s: %w", p.AccountID, err)
	}

	return insertTransaction(ctx, tx, p, p.Amount, newBalance)
}

// debitTx applies a debit inside an existing transaction. No partial debit
// ever occurs: an insufficient balance aborts before any write.
func debitTx(ctx context.Context, tx pgx.Tx, p domain.EntryParams) (domain.Transaction, error) {
	balance, err := lockBalance(ctx, tx, p.AccountID)
	if err != nil {
		if err == domain.ErrNotFound {
			// Accounts are created on first credit; an unknown account has
			// nothing to spend.
			return domain.Transaction{}, domain.ErrInsufficientFunds
		}
		return domain.Transaction{}, err
	}

	if balance.LessThan(p.Amount) {
		return domain.Transaction{}, domain.ErrInsufficientFunds
	}

	newBalance := balance.Sub(p.Amount)
	if _, err := tx.Exec(ctx,
		`UPDATE accounts
		 SET balance = $2, lifetime_spent = lifetime_spent + $3, updated_at = NOW()
		 WHERE id = $1`,
		p.AccountID, newBalance.String(), p.Amount.String(),
	); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: debit account %s: %w", p.AccountID, err)
	}

	return insertTransaction(ctx, tx, p, p.Amount.Neg(), newBalance)
}

// lockBalance reads the account balance under FOR UPDATE so concurrent
// movements on the same account serialize on the row lock.
func lockBalance(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	var balanceStr string
	err := tx.QueryRow(ctx,
		`SELECT balance::text FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	).Scan(&balanceStr)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("postgres: lock account %s: %w", accountID, err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: parse balance %q: %w", balanceStr, err)
	}
	return balance, nil
}

func insertTransaction(
	ctx context.Context,
	tx pgx.Tx,
	p domain.EntryParams,
	signedAmount, balanceAfter decimal.Decimal,
) (domain.Transaction, error) {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: marshal metadata: %w", err)
	}

	txn := domain.Transaction{
		ID:           uuid.NewString(),
		AccountID:    p.AccountID,
		Amount:       signedAmount,
		BalanceAfter: balanceAfter,
		Type:         p.Type,
		Source:       p.Source,
		Metadata:     metadata,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (id, account_id, amount, balance_after, type, source, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		txn.ID, txn.AccountID, signedAmount.String(), balanceAfter.String(),
		string(txn.Type), txn.Source, metaJSON,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: insert transaction: %w", err)
	}
	return txn, nil
}

// GetAccount returns the account snapshot, or ErrNotFound if the account has
// never been credited.
func (s *LedgerStore) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var (
		a                      domain.Account
		balance, earned, spent string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, balance::text, lifetime_earned::text, lifetime_spent::text,
		        level, experience, login_streak, last_login_date, created_at, updated_at
		 FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&a.ID, &balance, &earned, &spent,
		&a.Level, &a.Experience, &a.LoginStreak, &a.LastLoginDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", accountID, err)
	}

	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: parse balance %q: %w", balance, err)
	}
	if a.LifetimeEarned, err = decimal.NewFromString(earned); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: parse lifetime_earned %q: %w", earned, err)
	}
	if a.LifetimeSpent, err = decimal.NewFromString(spent); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: parse lifetime_spent %q: %w", spent, err)
	}
	return a, nil
}

const transactionSelectCols = `id, account_id, amount::text, balance_after::text,
	type, source, metadata, created_at`

func scanTransaction(scanner interface{ Scan(dest ...any) error }) (domain.Transaction, error) {
	var (
		txn                  domain.Transaction
		amount, balanceAfter string
		typ                  string
		metaJSON             []byte
	)
	err := scanner.Scan(&txn.ID, &txn.AccountID, &amount, &balanceAfter,
		&typ, &txn.Source, &metaJSON, &txn.CreatedAt)
	if err != nil {
		return domain.Transaction{}, err
	}

	txn.Type = domain.TransactionType(typ)
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if txn.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
		return domain.Transaction{}, fmt.Errorf("parse balance_after %q: %w", balanceAfter, err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &txn.Metadata); err != nil {
			return domain.Transaction{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return txn, nil
}

// ListTransactions returns the account's ledger page ordered newest first,
// optionally filtered by type.
func (s *LedgerStore) ListTransactions(
	ctx context.Context,
	accountID string,
	typ domain.TransactionType,
	opts domain.ListOpts,
) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionSelectCols + ` FROM transactions WHERE account_id = $1`
	args := []any{accountID}
	argIdx := 2

	if typ != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(typ))
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// RecordLogin advances the login streak for the given day. A repeat login on
// the same calendar day is reported via FirstToday=false and changes nothing.
func (s *LedgerStore) RecordLogin(ctx context.Context, accountID string, day time.Time) (domain.LoginResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("postgres: begin login: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		accountID,
	); err != nil {
		return domain.LoginResult{}, fmt.Errorf("postgres: ensure account %s: %w", accountID, err)
	}

	var (
		streak int
		last   *time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT login_streak, last_login_date FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	).Scan(&streak, &last)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("postgres: lock account %s: %w", accountID, err)
	}

	today := day.UTC().Truncate(24 * time.Hour)
	if last != nil {
		lastDay := last.UTC().Truncate(24 * time.Hour)
		switch {
		case lastDay.Equal(today):
			return domain.LoginResult{Streak: streak, FirstToday: false}, tx.Commit(ctx)
		case today.Sub(lastDay) == 24*time.Hour:
			streak++
		default:
			streak = 1
		}
	} else {
		streak = 1
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET login_streak = $2, last_login_date = $3, updated_at = NOW() WHERE id = $1`,
		accountID, streak, today,
	); err != nil {
		return domain.LoginResult{}, fmt.Errorf("postgres: update login streak %s: %w", accountID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.LoginResult{}, fmt.Errorf("postgres: commit login: %w", err)
	}
	return domain.LoginResult{Streak: streak, FirstToday: true}, nil
}

// TransactionsBefore pages transactions older than cutoff, oldest first, for
// cold-storage export.
func (s *LedgerStore) TransactionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionSelectCols+` FROM transactions
		 WHERE created_at < $1 ORDER BY created_at LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions before %s: %w", cutoff, err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
