package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nationforge/economy/internal/domain"
)

// AuctionConfig holds tunables for the auction engine.
type AuctionConfig struct {
	// BidRateLimit bounds bid attempts per bidder inside BidRateWindow.
	// Zero disables rate limiting.
	BidRateLimit  int
	BidRateWindow time.Duration
}

// AuctionService owns the auction and bid lifecycle. Credit movement and
// asset lock changes happen inside the store's atomic operations; this layer
// validates preconditions, assigns ids, and publishes events strictly after
// commit.
type AuctionService struct {
	auctions domain.AuctionStore
	cache    domain.AuctionCache
	bus      domain.SignalBus
	limiter  domain.RateLimiter
	cfg      AuctionConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuctionService creates an AuctionService. cache, bus, and limiter may be
// nil; the corresponding behavior is then disabled.
func NewAuctionService(
	auctions domain.AuctionStore,
	cache domain.AuctionCache,
	bus domain.SignalBus,
	limiter domain.RateLimiter,
	cfg AuctionConfig,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions: auctions,
		cache:    cache,
		bus:      bus,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "auction_service")),
		now:      time.Now,
	}
}

// WithClock overrides the service's time source. Intended for tests.
func (s *AuctionService) WithClock(now func() time.Time) *AuctionService {
	s.now = now
	return s
}

// CreateAuction validates the listing and opens the auction. The store
// charges the listing fee and locks the asset in the same transaction as the
// insert.
func (s *AuctionService) CreateAuction(
	ctx context.Context,
	sellerID, itemRef string,
	askPrice decimal.Decimal,
	durationMinutes int,
	buyoutPrice *decimal.Decimal,
	featured bool,
) (domain.Auction, error) {
	if !domain.ValidMoney(askPrice) {
		return domain.Auction{}, domain.ErrInvalidAmount
	}
	if !domain.ValidDuration(durationMinutes) {
		return domain.Auction{}, domain.ErrInvalidDuration
	}
	if buyoutPrice != nil {
		if !domain.ValidMoney(*buyoutPrice) || buyoutPrice.LessThan(askPrice) {
			return domain.Auction{}, domain.ErrInvalidAmount
		}
	}

	auction, err := s.auctions.Create(ctx, domain.CreateAuctionParams{
		ID:          uuid.NewString(),
		SellerID:    sellerID,
		ItemRef:     itemRef,
		AskPrice:    askPrice,
		BuyoutPrice: buyoutPrice,
		Featured:    featured,
		Duration:    time.Duration(durationMinutes) * time.Minute,
		Now:         s.now().UTC(),
	})
	if err != nil {
		return domain.Auction{}, err
	}

	s.invalidateListings(ctx)
	s.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", auction.ID),
		slog.String("seller_id", sellerID),
		slog.String("item_ref", itemRef),
		slog.String("ask_price", askPrice.String()),
	)
	return auction, nil
}

// PlaceBid attempts one bid. On ErrBidSuperseded and ErrAuctionNotActive the
// returned PlacedBid still carries the authoritative auction so callers can
// re-render current state and let the user re-bid.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (domain.PlacedBid, error) {
	if s.limiter != nil && s.cfg.BidRateLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, "bid:"+bidderID, s.cfg.BidRateLimit, s.cfg.BidRateWindow)
		if err != nil {
			return domain.PlacedBid{}, fmt.Errorf("auction_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.PlacedBid{}, domain.ErrRateLimited
		}
	}

	if !domain.ValidMoney(amount) {
		return domain.PlacedBid{}, domain.ErrInvalidAmount
	}

	auction, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.PlacedBid{}, err
	}
	if auction.Status != domain.AuctionActive {
		return domain.PlacedBid{Auction: auction}, domain.ErrAuctionNotActive
	}
	if bidderID == auction.SellerID {
		return domain.PlacedBid{Auction: auction}, domain.ErrSelfBidNotAllowed
	}
	if auction.CurrentBidderID != nil && *auction.CurrentBidderID == bidderID {
		return domain.PlacedBid{Auction: auction}, domain.ErrSelfBidNotAllowed
	}
	if amount.LessThan(auction.MinNextBid()) {
		return domain.PlacedBid{Auction: auction}, domain.ErrBidTooLow
	}

	// The expected bid pins the state this validation ran against; the store
	// rejects the bid if a concurrent bid landed in between.
	result, err := s.auctions.PlaceBid(ctx, domain.PlaceBidParams{
		BidID:       uuid.NewString(),
		AuctionID:   auctionID,
		BidderID:    bidderID,
		Amount:      amount,
		ExpectedBid: auction.CurrentBid,
		Now:         s.now().UTC(),
	})
	if err != nil {
		return result, err
	}

	s.invalidateListings(ctx)
	s.publish(ctx, domain.EventBidPlaced, auctionID, map[string]any{
		"bidder_id":    bidderID,
		"amount":       amount,
		"min_next_bid": result.Auction.MinNextBid(),
		"ends_at":      result.Auction.EndsAt,
	})
	if result.Extended {
		s.publish(ctx, domain.EventAuctionExtended, auctionID, map[string]any{
			"ends_at": result.Auction.EndsAt,
		})
	}

	s.logger.InfoContext(ctx, "bid placed",
		slog.String("auction_id", auctionID),
		slog.String("bidder_id", bidderID),
		slog.String("amount", amount.String()),
		slog.Bool("extended", result.Extended),
	)
	return result, nil
}

// ExecuteBuyout settles the auction immediately at the buyout price.
func (s *AuctionService) ExecuteBuyout(ctx context.Context, auctionID, buyerID string) (domain.SettlementResult, error) {
	result, err := s.auctions.ExecuteBuyout(ctx, auctionID, buyerID, s.now().UTC())
	if err != nil {
		return result, err
	}

	s.invalidateListings(ctx)
	s.publish(ctx, domain.EventAuctionCompleted, auctionID, map[string]any{
		"final_price": result.Auction.FinalPrice,
		"winner_id":   result.Auction.WinnerID,
		"buyout":      true,
	})

	s.logger.InfoContext(ctx, "auction bought out",
		slog.String("auction_id", auctionID),
		slog.String("buyer_id", buyerID),
		slog.String("fee", result.Fee.String()),
	)
	return result, nil
}

// CancelAuction withdraws a bid-free auction and refunds half the listing
// fee.
func (s *AuctionService) CancelAuction(ctx context.Context, auctionID, sellerID string) (domain.Auction, error) {
	auction, err := s.auctions.Cancel(ctx, auctionID, sellerID, s.now().UTC())
	if err != nil {
		return domain.Auction{}, err
	}

	s.invalidateListings(ctx)
	s.publish(ctx, domain.EventAuctionCancelled, auctionID, map[string]any{
		"reason": "seller_cancelled",
	})

	s.logger.InfoContext(ctx, "auction cancelled",
		slog.String("auction_id", auctionID),
		slog.String("seller_id", sellerID),
	)
	return auction, nil
}

// CompleteExpired drives one expired auction to its terminal state. Safe to
// call repeatedly; the second call fails the status precondition and does
// nothing.
func (s *AuctionService) CompleteExpired(ctx context.Context, auctionID string) (domain.SettlementResult, error) {
	result, err := s.auctions.CompleteExpired(ctx, auctionID, s.now().UTC())
	if err != nil {
		return result, err
	}

	s.invalidateListings(ctx)
	if result.HadWinner {
		s.publish(ctx, domain.EventAuctionCompleted, auctionID, map[string]any{
			"final_price": result.Auction.FinalPrice,
			"winner_id":   result.Auction.WinnerID,
			"buyout":      false,
		})
	} else {
		s.publish(ctx, domain.EventAuctionCancelled, auctionID, map[string]any{
			"reason": "expired_no_bids",
		})
	}
	return result, nil
}

// DueAuctions lists auctions past their end time, oldest first, up to limit.
func (s *AuctionService) DueAuctions(ctx context.Context, limit int) ([]string, error) {
	return s.auctions.ListExpired(ctx, s.now().UTC(), limit)
}

// GetActiveAuctions serves the browse page, through the short-TTL cache when
// one is configured.
func (s *AuctionService) GetActiveAuctions(ctx context.Context, f domain.AuctionFilter, opts domain.ListOpts) ([]domain.Auction, error) {
	key := fmt.Sprintf("%s|%s|%d|%d", f.ItemRef, f.SellerID, opts.Limit, opts.Offset)

	if s.cache != nil {
		auctions, hit, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "listing cache read failed", slog.String("error", err.Error()))
		} else if hit {
			return auctions, nil
		}
	}

	auctions, err := s.auctions.ListActive(ctx, f, opts)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, auctions); err != nil {
			s.logger.WarnContext(ctx, "listing cache write failed", slog.String("error", err.Error()))
		}
	}
	return auctions, nil
}

// GetAuctionByID returns one auction.
func (s *AuctionService) GetAuctionByID(ctx context.Context, id string) (domain.Auction, error) {
	return s.auctions.GetByID(ctx, id)
}

// GetBidHistory returns the auction's accepted bids in commit order.
func (s *AuctionService) GetBidHistory(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	return s.auctions.ListBids(ctx, auctionID, opts)
}

// publish broadcasts a committed state change. Failures are logged and
// swallowed; they never affect the outcome of the mutating operation.
func (s *AuctionService) publish(ctx context.Context, typ domain.EventType, auctionID string, payload map[string]any) {
	if s.bus == nil {
		return
	}

	event := domain.AuctionEvent{
		Type:      typ,
		AuctionID: auctionID,
		Payload:   payload,
		Timestamp: s.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal event failed",
			slog.String("event", string(typ)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.bus.Publish(ctx, domain.EventChannel(auctionID), data); err != nil {
		s.logger.ErrorContext(ctx, "publish event failed",
			slog.String("event", string(typ)),
			slog.String("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AuctionService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "listing cache invalidation failed", slog.String("error", err.Error()))
	}
}
