package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus tracks the auction lifecycle. ACTIVE transitions exactly once
// to COMPLETED or CANCELLED; both are terminal.
type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionCompleted AuctionStatus = "COMPLETED"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

const (
	// AntiSnipeWindow is how close to the end a bid must land to trigger an
	// automatic extension.
	AntiSnipeWindow = 5 * time.Minute

	// AntiSnipeExtension is added to ends_at once per qualifying bid.
	AntiSnipeExtension = time.Minute
)

// minIncrementFactor is the 5% minimum bid increment.
var minIncrementFactor = decimal.RequireFromString("1.05")

// marketplaceFeeRate applies to sale prices above marketplaceFeeThreshold.
var (
	marketplaceFeeRate      = decimal.RequireFromString("0.10")
	marketplaceFeeThreshold = decimal.NewFromInt(100)
)

var (
	standardListingFee = decimal.NewFromInt(5)
	featuredListingFee = decimal.NewFromInt(10)
	cancelRefundRate   = decimal.RequireFromString("0.50")
)

// allowedDurations are the auction lengths sellers may choose, in minutes.
var allowedDurations = map[int]bool{30: true, 60: true}

// ValidDuration reports whether minutes is an allowed auction duration.
func ValidDuration(minutes int) bool {
	return allowedDurations[minutes]
}

// ListingFee returns the flat fee charged when an auction is created.
func ListingFee(featured bool) decimal.Decimal {
	if featured {
		return featuredListingFee
	}
	return standardListingFee
}

// CancelRefund returns the partial listing-fee refund paid when a seller
// cancels an auction before any bid is placed.
func CancelRefund(featured bool) decimal.Decimal {
	return ListingFee(featured).Mul(cancelRefundRate)
}

// MarketplaceFee returns the engine's cut of a sale: 10% when the sale price
// exceeds 100 credits, zero otherwise. The fee is exact (a 110.25 sale yields
// an 11.025 fee); only caller-supplied amounts are limited to two decimals.
func MarketplaceFee(salePrice decimal.Decimal) decimal.Decimal {
	if salePrice.GreaterThan(marketplaceFeeThreshold) {
		return salePrice.Mul(marketplaceFeeRate)
	}
	return decimal.Zero
}

// ValidMoney reports whether amount is positive with at most two decimal
// places, the precision accepted from external callers.
func ValidMoney(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Exponent() >= -2
}

// Auction is a timed listing of a single tradable item.
type Auction struct {
	ID              string           `json:"id"`
	ItemRef         string           `json:"item_ref"`
	SellerID        string           `json:"seller_id"`
	AskPrice        decimal.Decimal  `json:"ask_price"`
	CurrentBid      *decimal.Decimal `json:"current_bid,omitempty"`
	CurrentBidderID *string          `json:"current_bidder_id,omitempty"`
	BuyoutPrice     *decimal.Decimal `json:"buyout_price,omitempty"`
	Featured        bool             `json:"featured"`
	StartsAt        time.Time        `json:"starts_at"`
	EndsAt          time.Time        `json:"ends_at"`
	Status          AuctionStatus    `json:"status"`
	FinalPrice      *decimal.Decimal `json:"final_price,omitempty"`
	WinnerID        *string          `json:"winner_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// MinNextBid returns the lowest acceptable bid:
// max(askPrice, currentBid) × 1.05, rounded up to two decimals.
func (a Auction) MinNextBid() decimal.Decimal {
	base := a.AskPrice
	if a.CurrentBid != nil && a.CurrentBid.GreaterThan(base) {
		base = *a.CurrentBid
	}
	return base.Mul(minIncrementFactor).RoundCeil(2)
}

// Bid is an immutable history row, one per accepted bid.
type Bid struct {
	ID                   string          `json:"id"`
	AuctionID            string          `json:"auction_id"`
	BidderID             string          `json:"bidder_id"`
	Amount               decimal.Decimal `json:"amount"`
	WasAutoExtendTrigger bool            `json:"was_auto_extend_trigger"`
	CreatedAt            time.Time       `json:"created_at"`
}

// AuctionFilter narrows active-auction listings.
type AuctionFilter struct {
	ItemRef  string
	SellerID string
}
