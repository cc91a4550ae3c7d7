package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nationforge/economy/internal/domain"
)

// chanBus is an in-process SignalBus delivering every published payload to a
// single subscriber channel, mimicking a pattern subscription.
type chanBus struct {
	ch chan []byte
}

func newChanBus() *chanBus {
	return &chanBus{ch: make(chan []byte, 16)}
}

func (b *chanBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marshalEvent(t *testing.T, typ domain.EventType, auctionID string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.AuctionEvent{
		Type:      typ,
		AuctionID: auctionID,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	return data
}

func TestClientWatches(t *testing.T) {
	c := &client{subs: map[string]bool{"a1": true}}

	assert.True(t, c.watches("a1"))
	assert.False(t, c.watches("a2"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", AuctionIDs: []string{"a2", " ", ""}})
	assert.True(t, c.watches("a2"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", AuctionIDs: []string{"a1"}})
	assert.False(t, c.watches("a1"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", AuctionIDs: []string{"*"}})
	assert.True(t, c.watches("anything"))
}

func dialHub(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestHubRoutesEventsToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newChanBus()
	hub := NewHub(bus, testLogger())
	go hub.Run(ctx)

	conn := dialHub(t, hub, "?auction_id=a1")

	welcome := readFrame(t, conn)
	assert.Equal(t, "connected", welcome["type"])

	// An event for a different auction must not reach this client.
	require.NoError(t, bus.Publish(ctx, domain.EventChannel("a2"),
		marshalEvent(t, domain.EventBidPlaced, "a2")))
	require.NoError(t, bus.Publish(ctx, domain.EventChannel("a1"),
		marshalEvent(t, domain.EventBidPlaced, "a1")))

	frame := readFrame(t, conn)
	assert.Equal(t, string(domain.EventBidPlaced), frame["event_type"])
	assert.Equal(t, "a1", frame["auction_id"])
}

func TestHubWildcardSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newChanBus()
	hub := NewHub(bus, testLogger())
	go hub.Run(ctx)

	conn := dialHub(t, hub, "")

	welcome := readFrame(t, conn)
	assert.Equal(t, "connected", welcome["type"])

	require.NoError(t, conn.WriteJSON(subscribeMsg{
		Action:     "subscribe",
		AuctionIDs: []string{"*"},
	}))

	// Give the read pump a moment to apply the subscription.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, bus.Publish(ctx, domain.EventChannel("a9"),
		marshalEvent(t, domain.EventAuctionCompleted, "a9")))

	frame := readFrame(t, conn)
	assert.Equal(t, "a9", frame["auction_id"])
}

func TestHubDropsMalformedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newChanBus()
	hub := NewHub(bus, testLogger())
	go hub.Run(ctx)

	conn := dialHub(t, hub, "?auction_id=a1")
	readFrame(t, conn) // welcome

	require.NoError(t, bus.Publish(ctx, domain.EventChannel("a1"), []byte("{not json")))
	require.NoError(t, bus.Publish(ctx, domain.EventChannel("a1"),
		marshalEvent(t, domain.EventAuctionExtended, "a1")))

	frame := readFrame(t, conn)
	assert.Equal(t, string(domain.EventAuctionExtended), frame["event_type"])
}
