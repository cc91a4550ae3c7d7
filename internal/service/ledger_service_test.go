package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nationforge/economy/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedgerFixture(caps map[domain.TransactionType]decimal.Decimal) (*LedgerService, *memStore) {
	store := newMemStore()
	return NewLedgerService(store, caps, testLogger()), store
}

func TestEarnRejectsInvalidInput(t *testing.T) {
	svc, _ := newLedgerFixture(nil)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "alice", decimal.NewFromInt(-5), domain.EarnMission, "m1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Earn(ctx, "alice", decimal.Zero, domain.EarnMission, "m1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Earn(ctx, "alice", decimal.RequireFromString("1.005"), domain.EarnMission, "m1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Earn(ctx, "alice", decimal.NewFromInt(5), domain.SpendMarketplace, "m1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestSpendInsufficientFundsLeavesBalanceUntouched(t *testing.T) {
	svc, _ := newLedgerFixture(nil)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "alice", decimal.NewFromInt(50), domain.EarnMission, "m1", nil)
	require.NoError(t, err)

	_, err = svc.Spend(ctx, "alice", decimal.NewFromInt(60), domain.SpendMarketplace, "shop", nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	account, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(50)), "balance changed on failed spend: %s", account.Balance)

	history, err := svc.GetHistory(ctx, "alice", "", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 1, "failed spend must not append a transaction")
}

func TestBalanceMatchesTransactionSum(t *testing.T) {
	svc, _ := newLedgerFixture(nil)
	ctx := context.Background()

	steps := []struct {
		amount decimal.Decimal
		typ    domain.TransactionType
	}{
		{decimal.NewFromInt(100), domain.EarnMission},
		{decimal.RequireFromString("25.50"), domain.EarnAchievement},
		{decimal.NewFromInt(40), domain.SpendMarketplace},
		{decimal.RequireFromString("0.01"), domain.EarnSocial},
		{decimal.NewFromInt(10), domain.SpendMarketplace},
	}
	for _, step := range steps {
		var err error
		if step.typ.IsEarn() {
			_, err = svc.Earn(ctx, "alice", step.amount, step.typ, "src", nil)
		} else {
			_, err = svc.Spend(ctx, "alice", step.amount, step.typ, "src", nil)
		}
		require.NoError(t, err)
	}

	account, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)

	history, err := svc.GetHistory(ctx, "alice", "", domain.ListOpts{})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, txn := range history {
		sum = sum.Add(txn.Amount)
	}
	assert.True(t, account.Balance.Equal(sum), "balance %s != transaction sum %s", account.Balance, sum)
	// History is newest first; the latest row's snapshot is the live balance.
	assert.True(t, history[0].BalanceAfter.Equal(account.Balance))
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("75.51")))
}

func TestDailyCapEnforced(t *testing.T) {
	caps := map[domain.TransactionType]decimal.Decimal{
		domain.EarnActivePlay: decimal.NewFromInt(100),
	}
	svc, _ := newLedgerFixture(caps)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "alice", decimal.NewFromInt(60), domain.EarnActivePlay, "play", nil)
	require.NoError(t, err)
	_, err = svc.Earn(ctx, "alice", decimal.NewFromInt(40), domain.EarnActivePlay, "play", nil)
	require.NoError(t, err)

	_, err = svc.Earn(ctx, "alice", decimal.RequireFromString("0.01"), domain.EarnActivePlay, "play", nil)
	assert.ErrorIs(t, err, domain.ErrDailyCapExceeded)

	// Other earn types are not counted against this cap.
	_, err = svc.Earn(ctx, "alice", decimal.NewFromInt(50), domain.EarnMission, "m1", nil)
	assert.NoError(t, err)
}

func TestConcurrentSpendsNeverOverdraw(t *testing.T) {
	svc, store := newLedgerFixture(nil)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "alice", decimal.NewFromInt(100), domain.EarnMission, "m1", nil)
	require.NoError(t, err)

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Spend(ctx, "alice", decimal.NewFromInt(10), domain.SpendMarketplace, "shop", nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 10, succeeded)

	account, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero(), "balance %s", account.Balance)

	// Every intermediate snapshot stayed non-negative.
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, txn := range store.txns {
		assert.False(t, txn.BalanceAfter.IsNegative(), "negative snapshot %s", txn.BalanceAfter)
	}
}

func TestAdjust(t *testing.T) {
	svc, _ := newLedgerFixture(nil)
	ctx := context.Background()

	txn, err := svc.Adjust(ctx, "alice", decimal.NewFromInt(30), "support-ticket-7", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AdminAdjustment, txn.Type)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(30)))

	txn, err = svc.Adjust(ctx, "alice", decimal.NewFromInt(-12), "support-ticket-7", nil)
	require.NoError(t, err)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(-12)))
	assert.True(t, txn.BalanceAfter.Equal(decimal.NewFromInt(18)))

	// A negative adjustment may not push the balance below zero.
	_, err = svc.Adjust(ctx, "alice", decimal.NewFromInt(-100), "support-ticket-8", nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = svc.Adjust(ctx, "alice", decimal.Zero, "noop", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	svc, _ := newLedgerFixture(nil)

	account, err := svc.GetBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", account.ID)
	assert.True(t, account.Balance.IsZero())
	assert.Equal(t, 1, account.Level)
}

func TestRecordLoginStreakBonus(t *testing.T) {
	svc, _ := newLedgerFixture(nil)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	result, txn, err := svc.RecordLogin(ctx, "alice", day1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Streak)
	assert.True(t, result.FirstToday)
	require.NotNil(t, txn)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, domain.EarnLoginStreak, txn.Type)

	// Second login the same day pays nothing.
	result, txn, err = svc.RecordLogin(ctx, "alice", day1.Add(6*time.Hour))
	require.NoError(t, err)
	assert.False(t, result.FirstToday)
	assert.Nil(t, txn)

	// Next day extends the streak and raises the bonus.
	result, txn, err = svc.RecordLogin(ctx, "alice", day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Streak)
	require.NotNil(t, txn)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(15)))

	// A missed day resets the streak.
	result, txn, err = svc.RecordLogin(ctx, "alice", day1.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Streak)
	require.NotNil(t, txn)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(10)))
}

func TestLoginBonusCapsAtSevenDayStreak(t *testing.T) {
	assert.True(t, loginBonus(1).Equal(decimal.NewFromInt(10)))
	assert.True(t, loginBonus(3).Equal(decimal.NewFromInt(20)))
	assert.True(t, loginBonus(7).Equal(decimal.NewFromInt(40)))
	assert.True(t, loginBonus(30).Equal(decimal.NewFromInt(40)))
}
