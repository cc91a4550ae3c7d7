// Package domain defines the core types, errors, and store interfaces for the
// credit ledger and auction engine. Implementations live in internal/store and
// internal/cache; orchestration lives in internal/service.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry. Earn types carry positive
// amounts, spend types negative; ADMIN_ADJUSTMENT may be either.
type TransactionType string

const (
	EarnMission       TransactionType = "EARN_MISSION"
	EarnAchievement   TransactionType = "EARN_ACHIEVEMENT"
	EarnDailyBonus    TransactionType = "EARN_DAILY_BONUS"
	EarnLoginStreak   TransactionType = "EARN_LOGIN_STREAK"
	EarnActivePlay    TransactionType = "EARN_ACTIVE_PLAY"
	EarnSocial        TransactionType = "EARN_SOCIAL"
	EarnAuctionSale   TransactionType = "EARN_AUCTION_SALE"
	EarnAuctionRefund TransactionType = "EARN_AUCTION_REFUND"
	EarnListingRefund TransactionType = "EARN_LISTING_REFUND"

	SpendAuctionBid    TransactionType = "SPEND_AUCTION_BID"
	SpendAuctionBuyout TransactionType = "SPEND_AUCTION_BUYOUT"
	SpendListingFee    TransactionType = "SPEND_LISTING_FEE"
	SpendMarketplace   TransactionType = "SPEND_MARKETPLACE"

	AdminAdjustment TransactionType = "ADMIN_ADJUSTMENT"
)

// IsEarn reports whether t is a credit type.
func (t TransactionType) IsEarn() bool {
	return strings.HasPrefix(string(t), "EARN_")
}

// IsSpend reports whether t is a debit type.
func (t TransactionType) IsSpend() bool {
	return strings.HasPrefix(string(t), "SPEND_")
}

// Account is the per-participant balance row. Accounts are created lazily on
// first credit and never deleted. Balance always equals the balance_after of
// the account's most recent transaction.
type Account struct {
	ID             string          `json:"id"`
	Balance        decimal.Decimal `json:"balance"`
	LifetimeEarned decimal.Decimal `json:"lifetime_earned"`
	LifetimeSpent  decimal.Decimal `json:"lifetime_spent"`
	Level          int             `json:"level"`
	Experience     int64           `json:"experience"`
	LoginStreak    int             `json:"login_streak"`
	LastLoginDate  *time.Time      `json:"last_login_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Transaction is an immutable ledger entry. Amount is signed: positive for
// earns, negative for spends. Created only inside a ledger store operation,
// in the same database transaction as the balance update it documents.
type Transaction struct {
	ID           string            `json:"id"`
	AccountID    string            `json:"account_id"`
	Amount       decimal.Decimal   `json:"amount"`
	BalanceAfter decimal.Decimal   `json:"balance_after"`
	Type         TransactionType   `json:"type"`
	Source       string            `json:"source"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// LoginResult reports the outcome of a daily login touch.
type LoginResult struct {
	Streak     int  `json:"streak"`
	FirstToday bool `json:"first_today"`
}
