package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nationforge/economy/internal/domain"
)

// memStore is an in-memory stand-in for the postgres stores. It implements
// domain.LedgerStore and domain.AuctionStore on one struct guarded by one
// mutex, mirroring the shared transactional scope of the real thing.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	txns     []domain.Transaction
	auctions map[string]*domain.Auction
	bids     map[string][]domain.Bid
	assets   map[string]*domain.AssetOwnership
	seq      int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*domain.Account),
		auctions: make(map[string]*domain.Auction),
		bids:     make(map[string][]domain.Bid),
		assets:   make(map[string]*domain.AssetOwnership),
	}
}

func assetKey(itemRef, ownerID string) string {
	return itemRef + "|" + ownerID
}

func (m *memStore) grant(itemRef, ownerID string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[assetKey(itemRef, ownerID)] = &domain.AssetOwnership{
		ItemRef: itemRef, OwnerID: ownerID, Quantity: qty,
	}
}

func (m *memStore) ensureAccount(id string) *domain.Account {
	a, ok := m.accounts[id]
	if !ok {
		a = &domain.Account{
			ID: id, Balance: decimal.Zero,
			LifetimeEarned: decimal.Zero, LifetimeSpent: decimal.Zero,
			Level: 1,
		}
		m.accounts[id] = a
	}
	return a
}

func (m *memStore) stamp() time.Time {
	m.seq++
	return time.Now().UTC().Add(time.Duration(m.seq) * time.Microsecond)
}

// credit and debit are the locked-section equivalents of the postgres tx
// helpers. Callers must hold m.mu.
func (m *memStore) credit(p domain.EntryParams) (domain.Transaction, error) {
	a := m.ensureAccount(p.AccountID)

	if p.DailyCap.IsPositive() {
		cutoff := time.Now().UTC().Add(-24 * time.Hour)
		earned := decimal.Zero
		for _, t := range m.txns {
			if t.AccountID == p.AccountID && t.Type == p.Type && t.CreatedAt.After(cutoff) {
				earned = earned.Add(t.Amount)
			}
		}
		if earned.Add(p.Amount).GreaterThan(p.DailyCap) {
			return domain.Transaction{}, domain.ErrDailyCapExceeded
		}
	}

	a.Balance = a.Balance.Add(p.Amount)
	a.LifetimeEarned = a.LifetimeEarned.Add(p.Amount)
	txn := m.appendTxn(p, p.Amount, a.Balance)
	return txn, nil
}

func (m *memStore) debit(p domain.EntryParams) (domain.Transaction, error) {
	a, ok := m.accounts[p.AccountID]
	if !ok || a.Balance.LessThan(p.Amount) {
		return domain.Transaction{}, domain.ErrInsufficientFunds
	}

	a.Balance = a.Balance.Sub(p.Amount)
	a.LifetimeSpent = a.LifetimeSpent.Add(p.Amount)
	txn := m.appendTxn(p, p.Amount.Neg(), a.Balance)
	return txn, nil
}

func (m *memStore) appendTxn(p domain.EntryParams, signed, after decimal.Decimal) domain.Transaction {
	txn := domain.Transaction{
		ID:           "txn-" + p.AccountID + "-" + time.Now().Format("150405.000000000"),
		AccountID:    p.AccountID,
		Amount:       signed,
		BalanceAfter: after,
		Type:         p.Type,
		Source:       p.Source,
		Metadata:     p.Metadata,
		CreatedAt:    m.stamp(),
	}
	m.txns = append(m.txns, txn)
	return txn
}

func (m *memStore) Earn(_ context.Context, p domain.EntryParams) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credit(p)
}

func (m *memStore) Spend(_ context.Context, p domain.EntryParams) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debit(p)
}

func (m *memStore) GetAccount(_ context.Context, accountID string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return *a, nil
}

func (m *memStore) ListTransactions(_ context.Context, accountID string, typ domain.TransactionType, opts domain.ListOpts) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transaction
	for i := len(m.txns) - 1; i >= 0; i-- {
		t := m.txns[i]
		if t.AccountID != accountID {
			continue
		}
		if typ != "" && t.Type != typ {
			continue
		}
		out = append(out, t)
	}
	if opts.Offset > 0 && opts.Offset < len(out) {
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memStore) RecordLogin(_ context.Context, accountID string, day time.Time) (domain.LoginResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.ensureAccount(accountID)
	today := day.UTC().Truncate(24 * time.Hour)
	if a.LastLoginDate != nil {
		last := a.LastLoginDate.UTC().Truncate(24 * time.Hour)
		switch {
		case last.Equal(today):
			return domain.LoginResult{Streak: a.LoginStreak, FirstToday: false}, nil
		case today.Sub(last) == 24*time.Hour:
			a.LoginStreak++
		default:
			a.LoginStreak = 1
		}
	} else {
		a.LoginStreak = 1
	}
	a.LastLoginDate = &today
	return domain.LoginResult{Streak: a.LoginStreak, FirstToday: true}, nil
}

func (m *memStore) TransactionsBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transaction
	for _, t := range m.txns {
		if t.CreatedAt.Before(cutoff) {
			out = append(out, t)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) lockAsset(itemRef, ownerID string) error {
	o, ok := m.assets[assetKey(itemRef, ownerID)]
	if !ok || o.Quantity < 1 {
		return domain.ErrItemNotOwned
	}
	if o.Locked {
		return domain.ErrItemLocked
	}
	o.Locked = true
	return nil
}

func (m *memStore) unlockAsset(itemRef, ownerID string) {
	if o, ok := m.assets[assetKey(itemRef, ownerID)]; ok {
		o.Locked = false
	}
}

func (m *memStore) transferAsset(itemRef, fromID, toID string) error {
	from, ok := m.assets[assetKey(itemRef, fromID)]
	if !ok || from.Quantity < 1 {
		return domain.ErrItemNotOwned
	}
	from.Quantity--
	from.Locked = false

	to, ok := m.assets[assetKey(itemRef, toID)]
	if !ok {
		to = &domain.AssetOwnership{ItemRef: itemRef, OwnerID: toID}
		m.assets[assetKey(itemRef, toID)] = to
	}
	to.Quantity++
	return nil
}

func copyAuction(a *domain.Auction) domain.Auction {
	out := *a
	if a.CurrentBid != nil {
		v := *a.CurrentBid
		out.CurrentBid = &v
	}
	if a.CurrentBidderID != nil {
		v := *a.CurrentBidderID
		out.CurrentBidderID = &v
	}
	if a.BuyoutPrice != nil {
		v := *a.BuyoutPrice
		out.BuyoutPrice = &v
	}
	if a.FinalPrice != nil {
		v := *a.FinalPrice
		out.FinalPrice = &v
	}
	if a.WinnerID != nil {
		v := *a.WinnerID
		out.WinnerID = &v
	}
	return out
}

func (m *memStore) Create(_ context.Context, p domain.CreateAuctionParams) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lockAsset(p.ItemRef, p.SellerID); err != nil {
		return domain.Auction{}, err
	}
	if _, err := m.debit(domain.EntryParams{
		AccountID: p.SellerID,
		Amount:    domain.ListingFee(p.Featured),
		Type:      domain.SpendListingFee,
		Source:    "auction:" + p.ID,
	}); err != nil {
		m.unlockAsset(p.ItemRef, p.SellerID)
		return domain.Auction{}, err
	}

	a := &domain.Auction{
		ID:          p.ID,
		ItemRef:     p.ItemRef,
		SellerID:    p.SellerID,
		AskPrice:    p.AskPrice,
		BuyoutPrice: p.BuyoutPrice,
		Featured:    p.Featured,
		StartsAt:    p.Now,
		EndsAt:      p.Now.Add(p.Duration),
		Status:      domain.AuctionActive,
		CreatedAt:   p.Now,
		UpdatedAt:   p.Now,
	}
	m.auctions[a.ID] = a
	return copyAuction(a), nil
}

func (m *memStore) PlaceBid(_ context.Context, p domain.PlaceBidParams) (domain.PlacedBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[p.AuctionID]
	if !ok {
		return domain.PlacedBid{}, domain.ErrNotFound
	}
	if a.Status != domain.AuctionActive || !p.Now.Before(a.EndsAt) {
		return domain.PlacedBid{Auction: copyAuction(a)}, domain.ErrAuctionNotActive
	}
	if !sameBid(a.CurrentBid, p.ExpectedBid) {
		return domain.PlacedBid{Auction: copyAuction(a)}, domain.ErrBidSuperseded
	}

	if _, err := m.debit(domain.EntryParams{
		AccountID: p.BidderID,
		Amount:    p.Amount,
		Type:      domain.SpendAuctionBid,
		Source:    "auction:" + p.AuctionID,
	}); err != nil {
		return domain.PlacedBid{}, err
	}

	result := domain.PlacedBid{}
	if a.CurrentBidderID != nil {
		if _, err := m.credit(domain.EntryParams{
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

	if a.EndsAt.Sub(p.Now) < domain.AntiSnipeWindow {
		a.EndsAt = a.EndsAt.Add(domain.AntiSnipeExtension)
		result.Extended = true
	}

	amount := p.Amount
	bidder := p.BidderID
	a.CurrentBid = &amount
	a.CurrentBidderID = &bidder
	a.UpdatedAt = p.Now

	bid := domain.Bid{
		ID:                   p.BidID,
		AuctionID:            p.AuctionID,
		BidderID:             p.BidderID,
		Amount:               p.Amount,
		WasAutoExtendTrigger: result.Extended,
		CreatedAt:            m.stamp(),
	}
	m.bids[p.AuctionID] = append(m.bids[p.AuctionID], bid)

	result.Auction = copyAuction(a)
	result.Bid = bid
	return result, nil
}

func (m *memStore) ExecuteBuyout(_ context.Context, auctionID, buyerID string, now time.Time) (domain.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[auctionID]
	if !ok {
		return domain.SettlementResult{}, domain.ErrNotFound
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
		if _, err := m.credit(domain.EntryParams{
			AccountID: *a.CurrentBidderID,
			Amount:    *a.CurrentBid,
			Type:      domain.EarnAuctionRefund,
			Source:    "auction:" + auctionID,
		}); err != nil {
			return domain.SettlementResult{}, err
		}
	}

	price := *a.BuyoutPrice
	if _, err := m.debit(domain.EntryParams{
		AccountID: buyerID,
		Amount:    price,
		Type:      domain.SpendAuctionBuyout,
		Source:    "auction:" + auctionID,
	}); err != nil {
		return domain.SettlementResult{}, err
	}

	fee := domain.MarketplaceFee(price)
	proceeds := price.Sub(fee)
	if _, err := m.credit(domain.EntryParams{
		AccountID: a.SellerID,
		Amount:    proceeds,
		Type:      domain.EarnAuctionSale,
		Source:    "auction:" + auctionID,
	}); err != nil {
		return domain.SettlementResult{}, err
	}

	if err := m.transferAsset(a.ItemRef, a.SellerID, buyerID); err != nil {
		return domain.SettlementResult{}, err
	}

	a.Status = domain.AuctionCompleted
	a.FinalPrice = &price
	winner := buyerID
	a.WinnerID = &winner
	a.UpdatedAt = now

	return domain.SettlementResult{
		Auction:        copyAuction(a),
		HadWinner:      true,
		SellerProceeds: proceeds,
		Fee:            fee,
	}, nil
}

func (m *memStore) Cancel(_ context.Context, auctionID, sellerID string, now time.Time) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[auctionID]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
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

	m.unlockAsset(a.ItemRef, a.SellerID)
	if _, err := m.credit(domain.EntryParams{
		AccountID: a.SellerID,
		Amount:    domain.CancelRefund(a.Featured),
		Type:      domain.EarnListingRefund,
		Source:    "auction:" + auctionID,
	}); err != nil {
		return domain.Auction{}, err
	}

	a.Status = domain.AuctionCancelled
	a.UpdatedAt = now
	return copyAuction(a), nil
}

func (m *memStore) CompleteExpired(_ context.Context, auctionID string, now time.Time) (domain.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[auctionID]
	if !ok {
		return domain.SettlementResult{}, domain.ErrNotFound
	}
	if a.Status != domain.AuctionActive {
		return domain.SettlementResult{Auction: copyAuction(a)}, domain.ErrAuctionNotActive
	}
	if a.EndsAt.After(now) {
		return domain.SettlementResult{Auction: copyAuction(a)}, domain.ErrAuctionNotExpired
	}

	if a.CurrentBid != nil {
		price := *a.CurrentBid
		winner := *a.CurrentBidderID

		fee := domain.MarketplaceFee(price)
		proceeds := price.Sub(fee)
		if _, err := m.credit(domain.EntryParams{
			AccountID: a.SellerID,
			Amount:    proceeds,
			Type:      domain.EarnAuctionSale,
			Source:    "auction:" + auctionID,
		}); err != nil {
			return domain.SettlementResult{}, err
		}
		if err := m.transferAsset(a.ItemRef, a.SellerID, winner); err != nil {
			return domain.SettlementResult{}, err
		}

		a.Status = domain.AuctionCompleted
		a.FinalPrice = &price
		a.WinnerID = &winner
		a.UpdatedAt = now
		return domain.SettlementResult{
			Auction:        copyAuction(a),
			HadWinner:      true,
			SellerProceeds: proceeds,
			Fee:            fee,
		}, nil
	}

	m.unlockAsset(a.ItemRef, a.SellerID)
	a.Status = domain.AuctionCancelled
	a.UpdatedAt = now
	return domain.SettlementResult{Auction: copyAuction(a)}, nil
}

func (m *memStore) GetByID(_ context.Context, id string) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return copyAuction(a), nil
}

func (m *memStore) ListActive(_ context.Context, f domain.AuctionFilter, opts domain.ListOpts) ([]domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Auction
	for _, a := range m.auctions {
		if a.Status != domain.AuctionActive {
			continue
		}
		if f.ItemRef != "" && a.ItemRef != f.ItemRef {
			continue
		}
		if f.SellerID != "" && a.SellerID != f.SellerID {
			continue
		}
		out = append(out, copyAuction(a))
	}
	return out, nil
}

func (m *memStore) ListBids(_ context.Context, auctionID string, _ domain.ListOpts) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Bid(nil), m.bids[auctionID]...), nil
}

func (m *memStore) ListExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, a := range m.auctions {
		if a.Status == domain.AuctionActive && !a.EndsAt.After(now) {
			ids = append(ids, id)
		}
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *memStore) TerminalBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Auction
	for _, a := range m.auctions {
		if a.Status != domain.AuctionActive && a.UpdatedAt.Before(cutoff) {
			out = append(out, copyAuction(a))
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// sameBid mirrors the store's nullable comparison.
func sameBid(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

var (
	_ domain.LedgerStore  = (*memStore)(nil)
	_ domain.AuctionStore = (*memStore)(nil)
)

// captureBus records published events for assertions.
type captureBus struct {
	mu     sync.Mutex
	events []publishedEvent
	fail   bool
}

type publishedEvent struct {
	Channel string
	Payload []byte
}

func (b *captureBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return context.DeadlineExceeded
	}
	b.events = append(b.events, publishedEvent{Channel: channel, Payload: payload})
	return nil
}

func (b *captureBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *captureBus) published() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedEvent(nil), b.events...)
}

// denyLimiter rejects every request.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}
