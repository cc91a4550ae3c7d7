package domain

import (
	"context"
	"time"
)

// EventType identifies an auction lifecycle event published after commit.
type EventType string

const (
	EventBidPlaced        EventType = "bid_placed"
	EventAuctionExtended  EventType = "auction_extended"
	EventAuctionCompleted EventType = "auction_completed"
	EventAuctionCancelled EventType = "auction_cancelled"
)

// AuctionEvent is the envelope broadcast to subscribers of an auction.
type AuctionEvent struct {
	Type      EventType      `json:"event_type"`
	AuctionID string         `json:"auction_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventChannel returns the bus channel carrying events for one auction.
func EventChannel(auctionID string) string {
	return "auction:" + auctionID
}

// EventChannelPattern matches every auction event channel.
const EventChannelPattern = "auction:*"

// SignalBus is a fire-and-forget pub/sub fabric. Publish failures are never
// allowed to affect the outcome of the operation that triggered them.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter bounds the rate of an operation per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
