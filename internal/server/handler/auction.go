package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nationforge/economy/internal/domain"
)

// AuctionService defines the methods the auction handler requires from the
// service layer.
type AuctionService interface {
	CreateAuction(ctx context.Context, sellerID, itemRef string, askPrice decimal.Decimal, durationMinutes int, buyoutPrice *decimal.Decimal, featured bool) (domain.Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (domain.PlacedBid, error)
	ExecuteBuyout(ctx context.Context, auctionID, buyerID string) (domain.SettlementResult, error)
	CancelAuction(ctx context.Context, auctionID, sellerID string) (domain.Auction, error)
	GetActiveAuctions(ctx context.Context, f domain.AuctionFilter, opts domain.ListOpts) ([]domain.Auction, error)
	GetAuctionByID(ctx context.Context, id string) (domain.Auction, error)
	GetBidHistory(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error)
}

// AuctionHandler serves the auction and bid endpoints.
type AuctionHandler struct {
	auctions AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given service and
// logger.
func NewAuctionHandler(auctions AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		logger:   logHandler(logger, "auction"),
	}
}

// listAuctionsResponse wraps the browse-page response.
type listAuctionsResponse struct {
	Auctions []domain.Auction `json:"auctions"`
}

// ListAuctions returns active auctions, optionally filtered by item or
// seller.
// GET /api/auctions?item_ref=...&seller_id=...&limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuctionFilter{
		ItemRef:  q.Get("item_ref"),
		SellerID: q.Get("seller_id"),
	}

	auctions, err := h.auctions.GetActiveAuctions(r.Context(), filter, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list auctions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list auctions")
		return
	}

	if auctions == nil {
		auctions = []domain.Auction{}
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: auctions})
}

// GetAuction returns one auction by id.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	auction, err := h.auctions.GetAuctionByID(r.Context(), id)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "get auction failed",
			slog.String("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get auction")
		return
	}

	writeJSON(w, http.StatusOK, auction)
}

// listBidsResponse wraps the bid history response.
type listBidsResponse struct {
	Bids []domain.Bid `json:"bids"`
}

// ListBids returns the auction's accepted bids in commit order.
// GET /api/auctions/{id}/bids
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	bids, err := h.auctions.GetBidHistory(r.Context(), id, parseListOpts(r))
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "list bids failed",
			slog.String("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bids")
		return
	}

	if bids == nil {
		bids = []domain.Bid{}
	}
	writeJSON(w, http.StatusOK, listBidsResponse{Bids: bids})
}

// createAuctionRequest is the body for opening an auction.
type createAuctionRequest struct {
	SellerID        string           `json:"seller_id"`
	ItemRef         string           `json:"item_ref"`
	AskPrice        decimal.Decimal  `json:"ask_price"`
	DurationMinutes int              `json:"duration_minutes"`
	BuyoutPrice     *decimal.Decimal `json:"buyout_price,omitempty"`
	Featured        bool             `json:"featured"`
}

// CreateAuction opens a new listing. Charging the listing fee and locking the
// item happen atomically with the insert.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SellerID == "" || req.ItemRef == "" {
		writeError(w, http.StatusBadRequest, "seller_id and item_ref are required")
		return
	}

	auction, err := h.auctions.CreateAuction(r.Context(), req.SellerID, req.ItemRef,
		req.AskPrice, req.DurationMinutes, req.BuyoutPrice, req.Featured)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "create auction failed",
			slog.String("seller_id", req.SellerID),
			slog.String("item_ref", req.ItemRef),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create auction")
		return
	}

	writeJSON(w, http.StatusCreated, auction)
}

// placeBidRequest is the body for a bid.
type placeBidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// bidRejection reports a rejected bid along with the authoritative auction
// state so the client can re-render and re-bid.
type bidRejection struct {
	Error      string           `json:"error"`
	CurrentBid *decimal.Decimal `json:"current_bid,omitempty"`
	MinNextBid decimal.Decimal  `json:"min_next_bid"`
	EndsAt     string           `json:"ends_at"`
}

// PlaceBid attempts one bid on the auction.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BidderID == "" {
		writeError(w, http.StatusBadRequest, "bidder_id is required")
		return
	}

	result, err := h.auctions.PlaceBid(r.Context(), id, req.BidderID, req.Amount)
	if err != nil {
		// Price rejections carry the live auction so the client can retry
		// against current state.
		if (errors.Is(err, domain.ErrBidTooLow) || errors.Is(err, domain.ErrBidSuperseded)) &&
			result.Auction.ID != "" {
			writeJSON(w, errorStatus(err), bidRejection{
				Error:      err.Error(),
				CurrentBid: result.Auction.CurrentBid,
				MinNextBid: result.Auction.MinNextBid(),
				EndsAt:     result.Auction.EndsAt.Format(timeLayout),
			})
			return
		}
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "place bid failed",
			slog.String("auction_id", id),
			slog.String("bidder_id", req.BidderID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place bid")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// buyoutRequest is the body for an immediate purchase.
type buyoutRequest struct {
	BuyerID string `json:"buyer_id"`
}

// ExecuteBuyout settles the auction immediately at the buyout price.
// POST /api/auctions/{id}/buyout
func (h *AuctionHandler) ExecuteBuyout(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	var req buyoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BuyerID == "" {
		writeError(w, http.StatusBadRequest, "buyer_id is required")
		return
	}

	result, err := h.auctions.ExecuteBuyout(r.Context(), id, req.BuyerID)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "buyout failed",
			slog.String("auction_id", id),
			slog.String("buyer_id", req.BuyerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to execute buyout")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CancelAuction withdraws a bid-free listing.
// DELETE /api/auctions/{id}?seller_id=...
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}
	sellerID := r.URL.Query().Get("seller_id")
	if sellerID == "" {
		writeError(w, http.StatusBadRequest, "seller_id query parameter required")
		return
	}

	auction, err := h.auctions.CancelAuction(r.Context(), id, sellerID)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "cancel auction failed",
			slog.String("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel auction")
		return
	}

	writeJSON(w, http.StatusOK, auction)
}
