package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Ledger errors.
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDailyCapExceeded = errors.New("daily earning cap exceeded")

	// Auction errors.
	ErrItemNotOwned       = errors.New("item not owned by account")
	ErrItemLocked         = errors.New("item is locked by another auction")
	ErrAuctionNotActive   = errors.New("auction is not active")
	ErrAuctionNotExpired  = errors.New("auction has not reached its end time")
	ErrAuctionHasBids     = errors.New("auction already has bids")
	ErrBidTooLow          = errors.New("bid below minimum increment")
	ErrBidSuperseded      = errors.New("bid superseded by a newer bid")
	ErrSelfBidNotAllowed  = errors.New("bidder is already the highest bidder or the seller")
	ErrBuyoutNotAvailable = errors.New("auction has no buyout price")
	ErrNotSeller          = errors.New("account is not the auction seller")
	ErrInvalidDuration    = errors.New("invalid auction duration")

	ErrRateLimited = errors.New("rate limited")
)
