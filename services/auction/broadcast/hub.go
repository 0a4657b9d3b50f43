// Package broadcast streams auction events to live watchers over websockets.
// The hub is an events.Publisher, so the core never holds a socket itself.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"reverse-auction/internal/events"
	"reverse-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// ErrHubBusy is returned when the broadcast queue is full and the event is dropped
var ErrHubBusy = errors.New("broadcast queue full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	id        string
	auctionID string
	conn      *websocket.Conn
	send      chan []byte
}

type message struct {
	auctionID string
	payload   []byte
}

// Hub fans events out to the websocket clients watching each auction
type Hub struct {
	mu       sync.RWMutex
	watchers map[string]map[*client]struct{} // key: auctionID -> value: set of watchers

	register   chan *client
	unregister chan *client
	broadcast  chan message

	stopOnce sync.Once
	stop     chan struct{}
}

// NewHub creates a hub; call Run to start delivering
func NewHub() *Hub {
	return &Hub{
		watchers:   make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message, 256),
		stop:       make(chan struct{}),
	}
}

// Run owns the watcher set until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case m := <-h.broadcast:
			h.deliver(m)
		case <-h.stop:
			h.mu.Lock()
			for auctionID, set := range h.watchers {
				for c := range set {
					close(c.send)
				}
				delete(h.watchers, auctionID)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every watcher and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Publish queues the event for the auction's watchers without blocking
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	select {
	case h.broadcast <- message{auctionID: e.AuctionID, payload: payload}:
		return nil
	default:
		return ErrHubBusy
	}
}

// WatcherCount returns how many clients watch an auction
func (h *Hub) WatcherCount(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[auctionID])
}

// ServeWatch handles GET /auctions/:auction_id/watch
func (h *Hub) ServeWatch(c *gin.Context) {
	auctionID := c.Param("auction_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("websocket upgrade failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	cl := &client{
		id:        utils.GenerateID(),
		auctionID: auctionID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	welcome, _ := json.Marshal(map[string]string{"type": "connected", "auction_id": auctionID, "client_id": cl.id})
	cl.send <- welcome

	select {
	case h.register <- cl:
	case <-h.stop:
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump(h)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.watchers[c.auctionID]
	if !ok {
		set = make(map[*client]struct{})
		h.watchers[c.auctionID] = set
	}
	set[c] = struct{}{}
	utils.Debug("watcher connected", map[string]any{"auction_id": c.auctionID, "client_id": c.id})
}

// remove closes the client's queue, which ends its write pump
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.watchers[c.auctionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.watchers, c.auctionID)
	}
	close(c.send)
	utils.Debug("watcher disconnected", map[string]any{"auction_id": c.auctionID, "client_id": c.id})
}

func (h *Hub) deliver(m message) {
	h.mu.RLock()
	var slow []*client
	for c := range h.watchers[m.auctionID] {
		select {
		case c.send <- m.payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// a watcher that cannot keep up is dropped instead of stalling the others
	for _, c := range slow {
		h.remove(c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the peer going away; watchers send nothing
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stop:
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Warn("websocket read failed", map[string]any{"client_id": c.id, "error": err.Error()})
			}
			return
		}
	}
}
