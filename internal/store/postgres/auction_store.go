package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nationforge/economy/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL. Each mutating
// operation locks the auction row, applies the paired ledger movements and
// asset changes through the package tx helpers, and finishes with a
// conditional update keyed on status = 'ACTIVE' so a terminal transition can
// only ever be applied once.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates an AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// Create opens an auction: the listing-fee debit, the asset lock, and the
// insert commit together or not at all.
func (s *AuctionStore) Create(ctx context.Context, p domain.CreateAuctionParams) (domain.Auction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: begin create auction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockAssetTx(ctx, tx, p.ItemRef, p.SellerID); err != nil {
		return domain.Auction{}, err
	}

	fee := domain.ListingFee(p.Featured)
	if _, err := debitTx(ctx, tx, domain.EntryParams{
		AccountID: p.SellerID,
		Amount:    fee,
		Type:      domain.SpendListingFee,
		Source:    "auction:" + p.ID,
	}); err != nil {
		return domain.Auction{}, err
	}

	a := domain.Auction{
		ID:          p.ID,
		ItemRef:     p.ItemRef,
		SellerID:    p.SellerID,
		AskPrice:    p.AskPrice,
		BuyoutPrice: p.BuyoutPrice,
		Featured:    p.Featured,
		StartsAt:    p.Now,
		EndsAt:      p.Now.Add(p.Duration),
		Status:      domain.AuctionActive,
	}

	var buyout *string
	if p.BuyoutPrice != nil {
		v := p.BuyoutPrice.String()
		buyout = &v
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO auctions (id, item_ref, seller_id, ask_price, buyout_price, featured, starts_at, ends_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		a.ID, a.ItemRef, a.SellerID, a.AskPrice.String(), buyout, a.Featured,
		a.StartsAt, a.EndsAt, string(a.Status),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: insert auction %s: %w", a.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: commit create auction: %w", err)
	}
	return a, nil
}

// PlaceBid applies one bid atomically: the bidder's debit, the previous
// bidder's refund, the auction row update, the bid row, and any anti-snipe
// extension commit in a single transaction. The caller's ExpectedBid acts as
// a check-and-set: a mismatch means a concurrent bid won, and the caller gets
// ErrBidSuperseded along with the authoritative row.
func (s *AuctionStore) PlaceBid(ctx context.Context, p domain.PlaceBidParams) (domain.PlacedBid, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.PlacedBid{}, fmt.Errorf("postgres: begin place bid: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := lockAuction(ctx, tx, p.AuctionID)
	if err != nil {
		return domain.PlacedBid{}, err
	}
	if a.Status != domain.AuctionActive || !p.Now.Before(a.EndsAt) {
		return domain.PlacedBid{Auction: a}, domain.ErrAuctionNotActive
	}
	if !sameBid(a.CurrentBid, p.ExpectedBid) {
		return domain.PlacedBid{Auction: a}, domain.ErrBidSuperseded
	}

	if _, err := debitTx(ctx, tx, domain.EntryParams{
		AccountID: p.BidderID,
		Amount:    p.Amount,
		Type:      domain.SpendAuctionBid,
		Source:    "auction:" + p.AuctionID,
	}); err != nil {
		return domain.PlacedBid{}, err
	}

	result := domain.PlacedBid{}
	if a.CurrentBidderID != nil {
		if _, err := creditTx(ctx, tx, domain.EntryParams{
			AccountID: *a.CurrentBidderID,
			Amount:    *a.CurrentBid,
			Type:      domain.EarnAuctionRefund,
			Source:    "auction:" + p.AuctionID,
		}); err != nil {
			return domain.PlacedBid{}, err
		}
		result.RefundedBidder = *a.CurrentBidderID
		result.RefundAmount = *a.CurrentBid
	}

	endsAt := a.EndsAt
	if endsAt.Sub(p.Now) < domain.AntiSnipeWindow {
		endsAt = endsAt.Add(domain.AntiSnipeExtension)
		result.Extended = true
	}

	var expected *string
	if p.ExpectedBid != nil {
		v := p.ExpectedBid.String()
		expected = &v
	}

	tag, err := tx.Exec(ctx,
		`UPDATE auctions
		 SET current_bid = $2, current_bidder_id = $3, ends_at = $4, updated_at = NOW()
		 WHERE id = $1 AND status = 'ACTIVE' AND current_bid IS NOT DISTINCT FROM $5::numeric`,
		p.AuctionID, p.Amount.String(), p.BidderID, endsAt, expected)
	if err != nil {
		return domain.PlacedBid{}, fmt.Errorf("postgres: update auction %s: %w", p.AuctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.PlacedBid{Auction: a}, domain.ErrBidSuperseded
	}

	bid := domain.Bid{
		ID:                   p.BidID,
		AuctionID:            p.AuctionID,
		BidderID:             p.BidderID,
		Amount:               p.Amount,
		WasAutoExtendTrigger: result.Extended,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, was_auto_extend_trigger)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount.String(), bid.WasAutoExtendTrigger,
	).Scan(&bid.CreatedAt)
	if err != nil {
		return domain.PlacedBid{}, fmt.Errorf("postgres: insert bid %s: %w", bid.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.PlacedBid{}, fmt.Errorf("postgres: commit place bid: %w", err)
	}

	a.CurrentBid = &p.Amount
	a.CurrentBidderID = &p.BidderID
	a.EndsAt = endsAt
	result.Auction = a
	result.Bid = bid
	return result, nil
}

// ExecuteBuyout settles an active auction immediately at the buyout price:
// refund of the current reservation, the buyer's debit, the seller's credit
// net of marketplace fee, the asset transfer, and the terminal transition all
// commit together.
func (s *AuctionStore) ExecuteBuyout(ctx context.Context, auctionID, buyerID string, now time.Time) (domain.SettlementResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: begin buyout: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := lockAuction(ctx, tx, auctionID)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	if a.Status != domain.AuctionActive || !now.Before(a.EndsAt) {
		return domain.SettlementResult{}, domain.ErrAuctionNotActive
	}
	if a.BuyoutPrice == nil {
		return domain.SettlementResult{}, domain.ErrBuyoutNotAvailable
	}
	if buyerID == a.SellerID {
		return domain.SettlementResult{}, domain.ErrSelfBidNotAllowed
	}

	if a.CurrentBidderID != nil {
		if _, err := creditTx(ctx, tx, domain.EntryParams{
			AccountID: *a.CurrentBidderID,
			Amount:    *a.CurrentBid,
			Type:      domain.EarnAuctionRefund,
			Source:    "auction:" + auctionID,
		}); err != nil {
			return domain.SettlementResult{}, err
		}
	}

	price := *a.BuyoutPrice
	if _, err := debitTx(ctx, tx, domain.EntryParams{
		AccountID: buyerID,
		Amount:    price,
		Type:      domain.SpendAuctionBuyout,
		Source:    "auction:" + auctionID,
	}); err != nil {
		return domain.SettlementResult{}, err
	}

	fee := domain.MarketplaceFee(price)
	proceeds := price.Sub(fee)
	if _, err := creditTx(ctx, tx, domain.EntryParams{
		AccountID: a.SellerID,
		Amount:    proceeds,
		Type:      domain.EarnAuctionSale,
		Source:    "auction:" + auctionID,
	}); err != nil {
		return domain.SettlementResult{}, err
	}

	if err := transferAssetTx(ctx, tx, a.ItemRef, a.SellerID, buyerID); err != nil {
		return domain.SettlementResult{}, err
	}

	if err := finalizeAuction(ctx, tx, auctionID, domain.AuctionCompleted, &price, &buyerID); err != nil {
		return domain.SettlementResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: commit buyout: %w", err)
	}

	a.Status = domain.AuctionCompleted
	a.FinalPrice = &price
	a.WinnerID = &buyerID
	return domain.SettlementResult{
		Auction:        a,
		HadWinner:      true,
		SellerProceeds: proceeds,
		Fee:            fee,
	}, nil
}

// Cancel lets the seller withdraw an auction that has attracted no bids. The
// asset unlock and the partial listing-fee refund commit with the terminal
// transition.
func (s *AuctionStore) Cancel(ctx context.Context, auctionID, sellerID string, now time.Time) (domain.Auction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: begin cancel: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := lockAuction(ctx, tx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.Status != domain.AuctionActive {
		return domain.Auction{}, domain.ErrAuctionNotActive
	}
	if a.SellerID != sellerID {
		return domain.Auction{}, domain.ErrNotSeller
	}
	if a.CurrentBid != nil {
		return domain.Auction{}, domain.ErrAuctionHasBids
	}

	if err := unlockAssetTx(ctx, tx, a.ItemRef, a.SellerID); err != nil {
		return domain.Auction{}, err
	}

	if _, err := creditTx(ctx, tx, domain.EntryParams{
		AccountID: a.SellerID,
		Amount:    domain.CancelRefund(a.Featured),
		Type:      domain.EarnListingRefund,
		Source:    "auction:" + auctionID,
	}); err != nil {
		return domain.Auction{}, err
	}

	if err := finalizeAuction(ctx, tx, auctionID, domain.AuctionCancelled, nil, nil); err != nil {
		return domain.Auction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: commit cancel: %w", err)
	}

	a.Status = domain.AuctionCancelled
	return a, nil
}

// CompleteExpired drives an auction past its end time to a terminal state.
// It is idempotent: a second call finds the status no longer ACTIVE and
// returns ErrAuctionNotActive without side effects. The winner's payment was
// already reserved at bid time, so settlement only pays the seller.
func (s *AuctionStore) CompleteExpired(ctx context.Context, auctionID string, now time.Time) (domain.SettlementResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: begin settle: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := lockAuction(ctx, tx, auctionID)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	if a.Status != domain.AuctionActive {
		return domain.SettlementResult{Auction: a}, domain.ErrAuctionNotActive
	}
	if a.EndsAt.After(now) {
		return domain.SettlementResult{Auction: a}, domain.ErrAuctionNotExpired
	}

	result := domain.SettlementResult{}
	if a.CurrentBid != nil {
		price := *a.CurrentBid
		winner := *a.CurrentBidderID

		fee := domain.MarketplaceFee(price)
		proceeds := price.Sub(fee)
		if _, err := creditTx(ctx, tx, domain.EntryParams{
			AccountID: a.SellerID,
			Amount:    proceeds,
			Type:      domain.EarnAuctionSale,
			Source:    "auction:" + auctionID,
		}); err != nil {
			return domain.SettlementResult{}, err
		}

		if err := transferAssetTx(ctx, tx, a.ItemRef, a.SellerID, winner); err != nil {
			return domain.SettlementResult{}, err
		}

		if err := finalizeAuction(ctx, tx, auctionID, domain.AuctionCompleted, &price, &winner); err != nil {
			return domain.SettlementResult{}, err
		}

		a.Status = domain.AuctionCompleted
		a.FinalPrice = &price
		a.WinnerID = &winner
		result = domain.SettlementResult{
			Auction:        a,
			HadWinner:      true,
			SellerProceeds: proceeds,
			Fee:            fee,
		}
	} else {
		// No bids: the auction ran its full course, so the listing fee is
		// not refunded.
		if err := unlockAssetTx(ctx, tx, a.ItemRef, a.SellerID); err != nil {
			return domain.SettlementResult{}, err
		}
		if err := finalizeAuction(ctx, tx, auctionID, domain.AuctionCancelled, nil, nil); err != nil {
			return domain.SettlementResult{}, err
		}
		a.Status = domain.AuctionCancelled
		result = domain.SettlementResult{Auction: a}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: commit settle: %w", err)
	}
	return result, nil
}

// finalizeAuction performs the single terminal transition. The status
// precondition makes the transition exactly-once even under concurrent
// settlement sweeps.
func finalizeAuction(
	ctx context.Context,
	tx pgx.Tx,
	auctionID string,
	status domain.AuctionStatus,
	finalPrice *decimal.Decimal,
	winnerID *string,
) error {
	var price *string
	if finalPrice != nil {
		v := finalPrice.String()
		price = &v
	}

	tag, err := tx.Exec(ctx,
		`UPDATE auctions
		 SET status = $2, final_price = $3, winner_id = $4, updated_at = NOW()
		 WHERE id = $1 AND status = 'ACTIVE'`,
		auctionID, string(status), price, winnerID)
	if err != nil {
		return fmt.Errorf("postgres: finalize auction %s: %w", auctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAuctionNotActive
	}
	return nil
}

const auctionSelectCols = `id, item_ref, seller_id, ask_price::text, current_bid::text,
	current_bidder_id, buyout_price::text, featured, starts_at, ends_at, status,
	final_price::text, winner_id, created_at, updated_at`

func scanAuction(scanner interface{ Scan(dest ...any) error }) (domain.Auction, error) {
	var (
		a                            domain.Auction
		ask                          string
		currentBid, buyout, finalPrc *string
		status                       string
	)
	err := scanner.Scan(&a.ID, &a.ItemRef, &a.SellerID, &ask, &currentBid,
		&a.CurrentBidderID, &buyout, &a.Featured, &a.StartsAt, &a.EndsAt, &status,
		&finalPrc, &a.WinnerID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Auction{}, err
	}

	a.Status = domain.AuctionStatus(status)
	if a.AskPrice, err = decimal.NewFromString(ask); err != nil {
		return domain.Auction{}, fmt.Errorf("parse ask_price %q: %w", ask, err)
	}
	if a.CurrentBid, err = parseNullDecimal(currentBid); err != nil {
		return domain.Auction{}, err
	}
	if a.BuyoutPrice, err = parseNullDecimal(buyout); err != nil {
		return domain.Auction{}, err
	}
	if a.FinalPrice, err = parseNullDecimal(finalPrc); err != nil {
		return domain.Auction{}, err
	}
	return a, nil
}

func parseNullDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", *s, err)
	}
	return &d, nil
}

// lockAuction reads the auction row under FOR UPDATE.
func lockAuction(ctx context.Context, tx pgx.Tx, auctionID string) (domain.Auction, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1 FOR UPDATE`,
		auctionID)
	a, err := scanAuction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Auction{}, domain.ErrNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: lock auction %s: %w", auctionID, err)
	}
	return a, nil
}

// sameBid compares two nullable bid amounts for the check-and-set.
func sameBid(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// GetByID retrieves a single auction.
func (s *AuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Auction{}, domain.ErrNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, nil
}

// ListActive returns active auctions ending soonest first.
func (s *AuctionStore) ListActive(ctx context.Context, f domain.AuctionFilter, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions WHERE status = 'ACTIVE'`
	args := []any{}
	argIdx := 1

	if f.ItemRef != "" {
		query += fmt.Sprintf(" AND item_ref = $%d", argIdx)
		args = append(args, f.ItemRef)
		argIdx++
	}
	if f.SellerID != "" {
		query += fmt.Sprintf(" AND seller_id = $%d", argIdx)
		args = append(args, f.SellerID)
		argIdx++
	}

	query += " ORDER BY ends_at"

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
		return nil, fmt.Errorf("postgres: list active auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// ListBids returns the bid history for an auction in commit order.
func (s *AuctionStore) ListBids(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	query := `SELECT id, auction_id, bidder_id, amount::text, was_auto_extend_trigger, created_at
		 FROM bids WHERE auction_id = $1 ORDER BY created_at`
	args := []any{auctionID}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids %s: %w", auctionID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var (
			b      domain.Bid
			amount string
		)
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &b.WasAutoExtendTrigger, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("postgres: parse bid amount %q: %w", amount, err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// ListExpired returns ids of auctions due for settlement, oldest first.
func (s *AuctionStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM auctions WHERE status = 'ACTIVE' AND ends_at <= $1
		 ORDER BY ends_at LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired auctions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TerminalBefore pages settled auctions older than cutoff for cold-storage
// export.
func (s *AuctionStore) TerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE status <> 'ACTIVE' AND updated_at < $1
		 ORDER BY updated_at LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// Compile-time interface check.
var _ domain.AuctionStore = (*AuctionStore)(nil)
