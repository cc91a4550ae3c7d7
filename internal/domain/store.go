package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EntryParams describes a single ledger movement. Amount is always positive;
// the store applies the sign from the operation (earn vs spend). DailyCap, if
// positive, bounds the sum of same-type credits inside a rolling 24h window
// and is checked in the same database transaction as the write.
type EntryParams struct {
	AccountID string
	Amount    decimal.Decimal
	Type      TransactionType
	Source    string
	Metadata  map[string]string
	DailyCap  decimal.Decimal
}

// LedgerStore owns all Account and Transaction mutation. Every write pairs a
// balance update with an appended transaction row in one atomic scope.
type LedgerStore interface {
	Earn(ctx context.Context, p EntryParams) (Transaction, error)
	Spend(ctx context.Context, p EntryParams) (Transaction, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	ListTransactions(ctx context.Context, accountID string, typ TransactionType, opts ListOpts) ([]Transaction, error)
	// RecordLogin advances the account's login streak for the given day.
	// Calling it twice on the same day is a no-op reported via FirstToday.
	RecordLogin(ctx context.Context, accountID string, day time.Time) (LoginResult, error)
	// TransactionsBefore pages transactions older than cutoff for archival.
	TransactionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error)
}

// CreateAuctionParams carries everything the store needs to open an auction:
// the listing-fee debit, the asset lock, and the insert happen in one
// transaction.
type CreateAuctionParams struct {
	ID          string
	SellerID    string
	ItemRef     string
	AskPrice    decimal.Decimal
	BuyoutPrice *decimal.Decimal
	Featured    bool
	Duration    time.Duration
	Now         time.Time
}

// PlaceBidParams carries one bid attempt. ExpectedBid is the current_bid the
// caller observed; the store's conditional update rejects the bid with
// ErrBidSuperseded when the row no longer matches.
type PlaceBidParams struct {
	BidID       string
	AuctionID   string
	BidderID    string
	Amount      decimal.Decimal
	ExpectedBid *decimal.Decimal
	Now         time.Time
}

// PlacedBid reports a committed bid. On ErrBidSuperseded the store still
// returns the authoritative Auction so callers can re-render current state.
type PlacedBid struct {
	Auction        Auction
	Bid            Bid
	Extended       bool
	RefundedBidder string
	RefundAmount   decimal.Decimal
}

// SettlementResult reports the terminal state reached by a settlement or
// buyout.
type SettlementResult struct {
	Auction        Auction
	HadWinner      bool
	SellerProceeds decimal.Decimal
	Fee            decimal.Decimal
}

// AuctionStore owns all Auction and Bid mutation. The multi-effect operations
// (bid, buyout, cancel, settle) each run as a single database transaction that
// also applies the paired ledger movements and asset lock changes; a failure
// anywhere rolls back everything.
type AuctionStore interface {
	Create(ctx context.Context, p CreateAuctionParams) (Auction, error)
	PlaceBid(ctx context.Context, p PlaceBidParams) (PlacedBid, error)
	ExecuteBuyout(ctx context.Context, auctionID, buyerID string, now time.Time) (SettlementResult, error)
	Cancel(ctx context.Context, auctionID, sellerID string, now time.Time) (Auction, error)
	CompleteExpired(ctx context.Context, auctionID string, now time.Time) (SettlementResult, error)
	GetByID(ctx context.Context, id string) (Auction, error)
	ListActive(ctx context.Context, f AuctionFilter, opts ListOpts) ([]Auction, error)
	ListBids(ctx context.Context, auctionID string, opts ListOpts) ([]Bid, error)
	// ListExpired returns ids of auctions due for settlement, oldest first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	// TerminalBefore pages completed/cancelled auctions older than cutoff for
	// archival.
	TerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]Auction, error)
}

// AuctionCache is a short-lived read cache for the active-auction browse page.
type AuctionCache interface {
	Get(ctx context.Context, key string) ([]Auction, bool, error)
	Set(ctx context.Context, key string, auctions []Auction) error
	Invalidate(ctx context.Context) error
}
