package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nationforge/economy/internal/domain"
)

// defaultListingTTL keeps the browse page fresh without hammering Postgres
// on every marketplace refresh.
const defaultListingTTL = 5 * time.Second

// AuctionCache implements domain.AuctionCache over Redis. Keys are derived
// from the listing filter; the whole keyspace is dropped on any auction
// mutation, so a short TTL is only a backstop.
type AuctionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAuctionCache creates an AuctionCache with the given TTL; ttl <= 0 uses
// the default.
func NewAuctionCache(c *Client, ttl time.Duration) *AuctionCache {
	if ttl <= 0 {
		ttl = defaultListingTTL
	}
	return &AuctionCache{rdb: c.Underlying(), ttl: ttl}
}

func listingKey(key string) string {
	return "auctions:active:" + key
}

// Get returns the cached listing page for key, reporting a miss when absent.
func (c *AuctionCache) Get(ctx context.Context, key string) ([]domain.Auction, bool, error) {
	data, err := c.rdb.Get(ctx, listingKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis: get listing %s: %w", key, err)
	}

	var auctions []domain.Auction
	if err := json.Unmarshal(data, &auctions); err != nil {
		return nil, false, fmt.Errorf("redis: unmarshal listing %s: %w", key, err)
	}
	return auctions, true, nil
}

// Set stores a listing page under key with the cache TTL.
func (c *AuctionCache) Set(ctx context.Context, key string, auctions []domain.Auction) error {
	data, err := json.Marshal(auctions)
	if err != nil {
		return fmt.Errorf("redis: marshal listing %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, listingKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set listing %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached listing page.
func (c *AuctionCache) Invalidate(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, listingKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis: delete listing %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan listings: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AuctionCache = (*AuctionCache)(nil)
