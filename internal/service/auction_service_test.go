package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nationforge/economy/internal/domain"
)

type auctionFixture struct {
	svc   *AuctionService
	store *memStore
	bus   *captureBus
	now   time.Time
}

func newAuctionFixture(t *testing.T) *auctionFixture {
	t.Helper()
	f := &auctionFixture{
		store: newMemStore(),
		bus:   &captureBus{},
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewAuctionService(f.store, nil, f.bus, nil, AuctionConfig{}, testLogger()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *auctionFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *auctionFixture) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	_, err := f.store.Earn(context.Background(), domain.EntryParams{
		AccountID: accountID,
		Amount:    decimal.NewFromInt(amount),
		Type:      domain.EarnMission,
		Source:    "seed",
	})
	require.NoError(t, err)
}

func (f *auctionFixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	account, err := f.store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return account.Balance
}

func (f *auctionFixture) list(t *testing.T, sellerID, itemRef string, ask string, buyout *string) domain.Auction {
	t.Helper()
	var buyoutPrice *decimal.Decimal
	if buyout != nil {
		v := decimal.RequireFromString(*buyout)
		buyoutPrice = &v
	}
	auction, err := f.svc.CreateAuction(context.Background(), sellerID, itemRef,
		decimal.RequireFromString(ask), 60, buyoutPrice, false)
	require.NoError(t, err)
	return auction
}

func strptr(s string) *string { return &s }

func TestCreateAuction(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.store.grant("sword", "seller", 1)

	auction, err := f.svc.CreateAuction(ctx, "seller", "sword",
		decimal.NewFromInt(100), 60, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, auction.Status)
	assert.Equal(t, f.now.Add(60*time.Minute), auction.EndsAt)
	assert.True(t, f.balance(t, "seller").Equal(decimal.NewFromInt(95)), "listing fee not charged")

	ownership := f.store.assets[assetKey("sword", "seller")]
	assert.True(t, ownership.Locked, "listed item must be locked")

	// The same item cannot back two live auctions.
	_, err = f.svc.CreateAuction(ctx, "seller", "sword",
		decimal.NewFromInt(50), 60, nil, false)
	assert.ErrorIs(t, err, domain.ErrItemLocked)
}

func TestCreateAuctionValidation(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.store.grant("sword", "seller", 1)

	_, err := f.svc.CreateAuction(ctx, "seller", "sword", decimal.Zero, 60, nil, false)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.CreateAuction(ctx, "seller", "sword", decimal.NewFromInt(100), 45, nil, false)
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	low := decimal.NewFromInt(50)
	_, err = f.svc.CreateAuction(ctx, "seller", "sword", decimal.NewFromInt(100), 60, &low, false)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.CreateAuction(ctx, "seller", "shield", decimal.NewFromInt(100), 60, nil, false)
	assert.ErrorIs(t, err, domain.ErrItemNotOwned)
}

func TestCreateAuctionFeaturedFee(t *testing.T) {
	f := newAuctionFixture(t)
	f.fund(t, "seller", 100)
	f.store.grant("sword", "seller", 1)

	_, err := f.svc.CreateAuction(context.Background(), "seller", "sword",
		decimal.NewFromInt(100), 30, nil, true)
	require.NoError(t, err)
	assert.True(t, f.balance(t, "seller").Equal(decimal.NewFromInt(90)))
}

func TestPlaceBidBelowMinimum(t *testing.T) {
	f := newAuctionFixture(t)
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	result, err := f.svc.PlaceBid(context.Background(), auction.ID, "bob",
		decimal.NewFromInt(104))
	assert.ErrorIs(t, err, domain.ErrBidTooLow)
	assert.Equal(t, auction.ID, result.Auction.ID, "rejection carries current state")
	assert.True(t, f.balance(t, "bob").Equal(decimal.NewFromInt(200)), "no reservation on rejected bid")
}

func TestPlaceBidOutbidRefundsPrevious(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.fund(t, "carol", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	result, err := f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)
	assert.True(t, f.balance(t, "bob").Equal(decimal.NewFromInt(95)))
	assert.True(t, result.Auction.MinNextBid().Equal(decimal.RequireFromString("110.25")))

	result, err = f.svc.PlaceBid(ctx, auction.ID, "carol", decimal.RequireFromString("110.25"))
	require.NoError(t, err)
	assert.Equal(t, "bob", result.RefundedBidder)
	assert.True(t, result.RefundAmount.Equal(decimal.NewFromInt(105)))
	assert.True(t, f.balance(t, "bob").Equal(decimal.NewFromInt(200)), "outbid bidder must be made whole")
	assert.True(t, f.balance(t, "carol").Equal(decimal.RequireFromString("89.75")))
	require.NotNil(t, result.Auction.CurrentBidderID)
	assert.Equal(t, "carol", *result.Auction.CurrentBidderID)

	// Only the standing high bid holds a reservation.
	outstanding := map[string]decimal.Decimal{}
	f.store.mu.Lock()
	for _, txn := range f.store.txns {
		if txn.Type == domain.SpendAuctionBid || txn.Type == domain.EarnAuctionRefund {
			prev, ok := outstanding[txn.AccountID]
			if !ok {
				prev = decimal.Zero
			}
			outstanding[txn.AccountID] = prev.Add(txn.Amount)
		}
	}
	f.store.mu.Unlock()
	assert.True(t, outstanding["bob"].IsZero())
	assert.True(t, outstanding["carol"].Equal(decimal.RequireFromString("-110.25")))
}

func TestPlaceBidSelfBidRejected(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 500)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	_, err := f.svc.PlaceBid(ctx, auction.ID, "seller", decimal.NewFromInt(105))
	assert.ErrorIs(t, err, domain.ErrSelfBidNotAllowed)

	_, err = f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)

	// The standing high bidder cannot raise against themselves.
	_, err = f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(120))
	assert.ErrorIs(t, err, domain.ErrSelfBidNotAllowed)
	assert.True(t, f.balance(t, "bob").Equal(decimal.NewFromInt(395)))
}

func TestPlaceBidInsufficientFunds(t *testing.T) {
	f := newAuctionFixture(t)
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 50)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	_, err := f.svc.PlaceBid(context.Background(), auction.ID, "bob", decimal.NewFromInt(105))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := f.svc.GetAuctionByID(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentBid)
}

func TestPlaceBidRateLimited(t *testing.T) {
	f := newAuctionFixture(t)
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	limited := NewAuctionService(f.store, nil, f.bus, denyLimiter{},
		AuctionConfig{BidRateLimit: 5, BidRateWindow: time.Minute}, testLogger()).
		WithClock(func() time.Time { return f.now })

	_, err := limited.PlaceBid(context.Background(), auction.ID, "bob", decimal.NewFromInt(105))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPlaceBidSupersededReturnsAuthoritativeState(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.fund(t, "carol", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	_, err := f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)

	// Simulate a bid that validated against the pre-bid snapshot and lost
	// the race: its expected current bid no longer matches the row.
	result, err := f.store.PlaceBid(ctx, domain.PlaceBidParams{
		BidID:     "stale-bid",
		AuctionID: auction.ID,
		BidderID:  "carol",
		Amount:    decimal.NewFromInt(106),
		Now:       f.now,
	})
	assert.ErrorIs(t, err, domain.ErrBidSuperseded)
	require.NotNil(t, result.Auction.CurrentBid)
	assert.True(t, result.Auction.CurrentBid.Equal(decimal.NewFromInt(105)))
	assert.True(t, f.balance(t, "carol").Equal(decimal.NewFromInt(200)), "lost race must not move credits")
}

func TestPlaceBidAntiSnipeExtension(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 500)
	f.fund(t, "carol", 500)
	f.store.grant("sword", "seller", 1)

	auction, err := f.svc.CreateAuction(ctx, "seller", "sword",
		decimal.NewFromInt(100), 30, nil, false)
	require.NoError(t, err)
	originalEnd := auction.EndsAt

	// 4 minutes before closing: inside the anti-snipe window.
	f.advance(26 * time.Minute)
	result, err := f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)
	assert.True(t, result.Extended)
	assert.Equal(t, originalEnd.Add(domain.AntiSnipeExtension), result.Auction.EndsAt)
	assert.True(t, result.Bid.WasAutoExtendTrigger)

	// Each late bid extends exactly once more.
	result, err = f.svc.PlaceBid(ctx, auction.ID, "carol", decimal.RequireFromString("110.25"))
	require.NoError(t, err)
	assert.True(t, result.Extended)
	assert.Equal(t, originalEnd.Add(2*domain.AntiSnipeExtension), result.Auction.EndsAt)

	extendEvents := 0
	for _, ev := range f.bus.published() {
		var payload map[string]any
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		if payload["event_type"] == string(domain.EventAuctionExtended) {
			extendEvents++
		}
	}
	assert.Equal(t, 2, extendEvents)
}

func TestPlaceBidEarlyBidDoesNotExtend(t *testing.T) {
	f := newAuctionFixture(t)
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	f.advance(10 * time.Minute)
	result, err := f.svc.PlaceBid(context.Background(), auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)
	assert.False(t, result.Extended)
	assert.Equal(t, auction.EndsAt, result.Auction.EndsAt)
}

func TestPlaceBidAfterExpiry(t *testing.T) {
	f := newAuctionFixture(t)
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	f.advance(61 * time.Minute)
	result, err := f.store.PlaceBid(context.Background(), domain.PlaceBidParams{
		BidID:     "late-bid",
		AuctionID: auction.ID,
		BidderID:  "bob",
		Amount:    decimal.NewFromInt(105),
		Now:       f.now,
	})
	assert.ErrorIs(t, err, domain.ErrAuctionNotActive)
	assert.Equal(t, auction.ID, result.Auction.ID)
}

func TestBidMonotonicity(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 100000)
	f.fund(t, "carol", 100000)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	bidders := []string{"bob", "carol"}
	for i := 0; i < 8; i++ {
		current, err := f.svc.GetAuctionByID(ctx, auction.ID)
		require.NoError(t, err)
		_, err = f.svc.PlaceBid(ctx, auction.ID, bidders[i%2], current.MinNextBid())
		require.NoError(t, err)
	}

	bids, err := f.svc.GetBidHistory(ctx, auction.ID, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, bids, 8)
	for i := 1; i < len(bids); i++ {
		assert.True(t, bids[i].Amount.GreaterThan(bids[i-1].Amount),
			"bid %d (%s) not above bid %d (%s)", i, bids[i].Amount, i-1, bids[i-1].Amount)
	}
}

func TestExecuteBuyout(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.fund(t, "carol", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", strptr("110.25"))

	_, err := f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)

	result, err := f.svc.ExecuteBuyout(ctx, auction.ID, "carol")
	require.NoError(t, err)
	assert.True(t, result.HadWinner)
	assert.Equal(t, domain.AuctionCompleted, result.Auction.Status)
	require.NotNil(t, result.Auction.FinalPrice)
	assert.True(t, result.Auction.FinalPrice.Equal(decimal.RequireFromString("110.25")))
	assert.True(t, result.Fee.Equal(decimal.RequireFromString("11.025")))
	assert.True(t, result.SellerProceeds.Equal(decimal.RequireFromString("99.225")))

	// bob refunded, carol charged, seller paid price minus fee (on top of
	// the 5 credit listing fee already spent).
	assert.True(t, f.balance(t, "bob").Equal(decimal.NewFromInt(200)))
	assert.True(t, f.balance(t, "carol").Equal(decimal.RequireFromString("89.75")))
	assert.True(t, f.balance(t, "seller").Equal(decimal.RequireFromString("194.225")))

	// Item changed hands and is tradable again.
	assert.Equal(t, 0, f.store.assets[assetKey("sword", "seller")].Quantity)
	assert.Equal(t, 1, f.store.assets[assetKey("sword", "carol")].Quantity)
	assert.False(t, f.store.assets[assetKey("sword", "carol")].Locked)

	_, err = f.svc.ExecuteBuyout(ctx, auction.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrAuctionNotActive)
}

func TestExecuteBuyoutPreconditions(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "carol", 500)
	f.store.grant("sword", "seller", 1)
	f.store.grant("shield", "seller", 1)

	noBuyout := f.list(t, "seller", "sword", "100", nil)
	_, err := f.svc.ExecuteBuyout(ctx, noBuyout.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrBuyoutNotAvailable)

	withBuyout := f.list(t, "seller", "shield", "100", strptr("150"))
	_, err = f.svc.ExecuteBuyout(ctx, withBuyout.ID, "seller")
	assert.ErrorIs(t, err, domain.ErrSelfBidNotAllowed)
}

func TestCancelAuction(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	_, err := f.svc.CancelAuction(ctx, auction.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrNotSeller)

	cancelled, err := f.svc.CancelAuction(ctx, auction.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCancelled, cancelled.Status)

	// Half the 5 credit listing fee comes back and the item unlocks.
	assert.True(t, f.balance(t, "seller").Equal(decimal.RequireFromString("97.5")))
	assert.False(t, f.store.assets[assetKey("sword", "seller")].Locked)

	_, err = f.svc.CancelAuction(ctx, auction.ID, "seller")
	assert.ErrorIs(t, err, domain.ErrAuctionNotActive)
}

func TestCancelAuctionWithBidsRejected(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	_, err := f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)

	_, err = f.svc.CancelAuction(ctx, auction.ID, "seller")
	assert.ErrorIs(t, err, domain.ErrAuctionHasBids)
	assert.True(t, f.balance(t, "bob").Equal(decimal.NewFromInt(95)), "standing bid must keep its reservation")
}

func TestCompleteExpiredWithWinner(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	_, err := f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)

	_, err = f.svc.CompleteExpired(ctx, auction.ID)
	assert.ErrorIs(t, err, domain.ErrAuctionNotExpired)

	f.advance(61 * time.Minute)
	result, err := f.svc.CompleteExpired(ctx, auction.ID)
	require.NoError(t, err)
	assert.True(t, result.HadWinner)
	assert.Equal(t, domain.AuctionCompleted, result.Auction.Status)
	require.NotNil(t, result.Auction.WinnerID)
	assert.Equal(t, "bob", *result.Auction.WinnerID)

	// Sale at 105 is above the fee threshold: seller nets 94.50.
	assert.True(t, result.Fee.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, f.balance(t, "seller").Equal(decimal.RequireFromString("189.5")))
	assert.Equal(t, 1, f.store.assets[assetKey("sword", "bob")].Quantity)
}

func TestCompleteExpiredNoBids(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	f.advance(61 * time.Minute)
	result, err := f.svc.CompleteExpired(ctx, auction.ID)
	require.NoError(t, err)
	assert.False(t, result.HadWinner)
	assert.Equal(t, domain.AuctionCancelled, result.Auction.Status)

	// Expiry without bids returns the item but not the listing fee.
	assert.False(t, f.store.assets[assetKey("sword", "seller")].Locked)
	assert.True(t, f.balance(t, "seller").Equal(decimal.NewFromInt(95)))
}

func TestCompleteExpiredIdempotent(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	_, err := f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)

	f.advance(61 * time.Minute)
	_, err = f.svc.CompleteExpired(ctx, auction.ID)
	require.NoError(t, err)

	before := f.balance(t, "seller")
	f.store.mu.Lock()
	txnsBefore := len(f.store.txns)
	f.store.mu.Unlock()

	// A second settlement attempt must not pay the seller twice.
	_, err = f.svc.CompleteExpired(ctx, auction.ID)
	assert.ErrorIs(t, err, domain.ErrAuctionNotActive)
	assert.True(t, f.balance(t, "seller").Equal(before))
	f.store.mu.Lock()
	assert.Equal(t, txnsBefore, len(f.store.txns))
	f.store.mu.Unlock()
}

func TestDueAuctions(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.store.grant("sword", "seller", 1)
	f.store.grant("shield", "seller", 1)

	short, err := f.svc.CreateAuction(ctx, "seller", "sword",
		decimal.NewFromInt(100), 30, nil, false)
	require.NoError(t, err)
	_, err = f.svc.CreateAuction(ctx, "seller", "shield",
		decimal.NewFromInt(100), 60, nil, false)
	require.NoError(t, err)

	f.advance(31 * time.Minute)
	due, err := f.svc.DueAuctions(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{short.ID}, due)
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	_, err := f.svc.PlaceBid(ctx, auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err)

	f.advance(61 * time.Minute)
	_, err = f.svc.CompleteExpired(ctx, auction.ID)
	require.NoError(t, err)

	events := f.bus.published()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, domain.EventChannel(auction.ID), ev.Channel)
	}

	var first, second domain.AuctionEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &first))
	require.NoError(t, json.Unmarshal(events[1].Payload, &second))
	assert.Equal(t, domain.EventBidPlaced, first.Type)
	assert.Equal(t, domain.EventAuctionCompleted, second.Type)
	assert.Equal(t, "bob", second.Payload["winner_id"])
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newAuctionFixture(t)
	f.bus.fail = true
	f.fund(t, "seller", 100)
	f.fund(t, "bob", 200)
	f.store.grant("sword", "seller", 1)
	auction := f.list(t, "seller", "sword", "100", nil)

	result, err := f.svc.PlaceBid(context.Background(), auction.ID, "bob", decimal.NewFromInt(105))
	require.NoError(t, err, "broadcast failure must not roll back the bid")
	require.NotNil(t, result.Auction.CurrentBid)
	assert.True(t, f.balance(t, "bob").Equal(decimal.NewFromInt(95)))
}
