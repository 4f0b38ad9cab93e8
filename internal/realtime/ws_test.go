package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/harvest-market/internal/auctions"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, c *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(map[string]any{"event": event, "data": data}))
}

func read(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func TestSocketJoinBidAndReject(t *testing.T) {
	hub := NewHub(nil)
	store := auctions.NewMemStore()
	require.NoError(t, store.Create(context.Background(), runningAuction("a1", 100, 10)))
	svc := &auctions.Service{Store: store, Broadcast: hub}
	srv := httptest.NewServer(NewHandler(hub, svc, nil))
	defer srv.Close()

	watcher := dial(t, srv)
	bidder := dial(t, srv)

	send(t, watcher, EventJoin, "a1")
	assert.Equal(t, EventJoined, read(t, watcher).Event)
	send(t, bidder, EventJoin, "a1")
	assert.Equal(t, EventJoined, read(t, bidder).Event)

	send(t, bidder, EventBid, map[string]any{"auctionId": "a1", "buyerId": "buyer-7", "amount": 110})

	f := read(t, watcher)
	require.Equal(t, EventNewBid, f.Event)
	var ev auctions.BidEvent
	require.NoError(t, json.Unmarshal(f.Data, &ev))
	assert.Equal(t, auctions.BidEvent{AuctionID: "a1", Seq: 1, BuyerID: "buyer-7", Amount: 110, PlacedAt: ev.PlacedAt}, ev)

	assert.Equal(t, EventNewBid, read(t, bidder).Event)
	assert.Equal(t, EventBidAccepted, read(t, bidder).Event)

	// too low: only the bidder hears about it
	send(t, bidder, EventBid, map[string]any{"auctionId": "a1", "buyerId": "buyer-7", "amount": 115})
	f = read(t, bidder)
	assert.Equal(t, EventError, f.Event)
	assert.JSONEq(t, `"Bid too low"`, string(f.Data))

	send(t, bidder, EventBid, map[string]any{"auctionId": "nope", "buyerId": "buyer-7", "amount": 115})
	f = read(t, bidder)
	assert.Equal(t, EventError, f.Event)
	assert.JSONEq(t, `"Auction not found"`, string(f.Data))

	a, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, a.Bids, 1)
}

func TestSocketUnknownEvent(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewHandler(hub, &auctions.Service{Store: auctions.NewMemStore()}, nil))
	defer srv.Close()

	c := dial(t, srv)
	send(t, c, "dance", nil)
	f := read(t, c)
	assert.Equal(t, EventError, f.Event)

	send(t, c, EventJoin, "")
	assert.Equal(t, EventError, read(t, c).Event)
}
