package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMessage is the envelope pushed to balance stream clients.
type StreamMessage struct {
	Type      string                  `json:"type"`
	Timestamp time.Time               `json:"timestamp"`
	Snapshot  *models.BalanceSnapshot `json:"snapshot"`
}

type client struct {
	account common.Address
	send    chan []byte
}

// Hub fans balance snapshots out to websocket clients. Each client follows
// one account; slow clients are dropped rather than blocking the poller.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  func(common.Address) *models.BalanceSnapshot
	logger  *logrus.Entry
}

// NewHub creates a hub. latest, when set, seeds new clients with the
// account's current snapshot.
func NewHub(latest func(common.Address) *models.BalanceSnapshot) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		latest:  latest,
		logger:  utils.Component("ws_hub"),
	}
}

// PublishSnapshot implements the snapshot sink.
func (h *Hub) PublishSnapshot(ctx context.Context, snapshot *models.BalanceSnapshot) error {
	if snapshot == nil {
		return nil
	}
	msg, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.account != snapshot.Account {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.WithField("account", c.account.Hex()).Warn("Stream client too slow, dropping update")
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Serve upgrades the request and streams account's snapshots until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, account common.Address) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	c := &client{account: account, send: make(chan []byte, sendBufferSize)}
	if h.latest != nil {
		if snap := h.latest(account); snap != nil {
			if msg, err := encodeSnapshot(snap); err == nil {
				c.send <- msg
			}
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.WithField("account", account.Hex()).Debug("Stream client connected")

	go h.writePump(conn, c)
	h.readPump(conn, c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump only services control frames; clients never send data.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		h.remove(c)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeSnapshot(snapshot *models.BalanceSnapshot) ([]byte, error) {
	return json.Marshal(StreamMessage{
		Type:      "balances",
		Timestamp: time.Now().UTC(),
		Snapshot:  snapshot,
	})
}
