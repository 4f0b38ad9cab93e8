package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/apperr"
	"github.com/ariefcatur/harvest-market/internal/auctions"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
	maxFrame   = 4096
)

// Bidder is the auction entry point the channel shares with REST.
type Bidder interface {
	PlaceBid(ctx context.Context, cmd auctions.PlaceBidCmd) (auctions.Bid, error)
}

// Handler upgrades /ws/auctions requests and runs one read and one write
// pump per connection.
type Handler struct {
	Hub        *Hub
	Bids       Bidder
	Log        *zap.Logger
	BidTimeout time.Duration
	Upgrader   websocket.Upgrader
}

func NewHandler(hub *Hub, bids Bidder, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Hub:        hub,
		Bids:       bids,
		Log:        log,
		BidTimeout: 5 * time.Second,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origin dicek oleh gateway
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	who, _ := actor.From(r.Context())
	c := &Client{
		id:   uuid.NewString(),
		who:  who,
		conn: conn,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
		h:    h,
	}
	h.Log.Debug("auction socket connected", zap.String("client_id", c.id))
	go c.writePump()
	go c.readPump()
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type bidData struct {
	AuctionID string `json:"auctionId"`
	BuyerID   string `json:"buyerId"`
	Amount    int64  `json:"amount"`
}

type Client struct {
	id   string
	who  actor.Actor
	conn *websocket.Conn
	send chan Message
	h    *Handler

	closeOnce sync.Once
	done      chan struct{}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Send(m Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.h.Hub.Drop(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.h.Log.Debug("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.h.Hub.Reject(c, "malformed message")
				continue
			}
			return
		}
		c.handle(in)
	}
}

func (c *Client) handle(in inbound) {
	switch in.Event {
	case EventJoin, EventLeave:
		var auctionID string
		if err := json.Unmarshal(in.Data, &auctionID); err != nil || auctionID == "" {
			c.h.Hub.Reject(c, "auction id required")
			return
		}
		if in.Event == EventJoin {
			c.h.Hub.Subscribe(auctionID, c)
			c.Send(Message{Event: EventJoined, Data: auctionID})
		} else {
			c.h.Hub.Unsubscribe(auctionID, c)
		}
	case EventBid:
		var d bidData
		if err := json.Unmarshal(in.Data, &d); err != nil || d.AuctionID == "" {
			c.h.Hub.Reject(c, "malformed bid")
			return
		}
		bidder := d.BuyerID
		if !c.who.Anonymous() {
			bidder = c.who.ID
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.h.BidTimeout)
		defer cancel()
		b, err := c.h.Bids.PlaceBid(ctx, auctions.PlaceBidCmd{AuctionID: d.AuctionID, BidderID: bidder, Amount: d.Amount})
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				c.h.Log.Error("socket bid failed", zap.String("auction_id", d.AuctionID), zap.Error(err))
			}
			c.h.Hub.Reject(c, apperr.Public(err))
			return
		}
		c.Send(Message{Event: EventBidAccepted, Data: b})
	default:
		c.h.Hub.Reject(c, "unknown event "+in.Event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case m := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(m); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
