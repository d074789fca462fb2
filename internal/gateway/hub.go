package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub owns the WebSocket client set and the per-symbol subscription
// index. Broadcasting a sync event costs O(subscribers of that symbol),
// not O(all clients). All mutations of the client set and the index go
// through the hub's mutex.
type Hub struct {
	log     zerolog.Logger
	sendBuf int

	mu      sync.RWMutex
	clients map[*Client]bool
	subs    map[string]map[*Client]struct{}

	// Metrics hooks
	OnClients       func(total int)
	OnSubscriptions func(total int)
	OnDrop          func()
}

// NewHub creates a Hub. sendBuf is the per-client outbound queue depth.
func NewHub(sendBuf int, log zerolog.Logger) *Hub {
	if sendBuf <= 0 {
		sendBuf = 64
	}
	return &Hub{
		log:     log,
		sendBuf: sendBuf,
		clients: make(map[*Client]bool),
		subs:    make(map[string]map[*Client]struct{}),
	}
}

// HandleWS upgrades the HTTP connection, registers the client, sends the
// welcome envelope and starts the read/write pumps.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.sendBuf),
		symbols: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.notifyClients(count)

	h.log.Info().Str("remote", conn.RemoteAddr().String()).Int("total", count).Msg("ws client connected")

	client.enqueueJSON(connectedMsg{
		Type:      "connected",
		Message:   "connected to the update server",
		Timestamp: wsNow(),
	})

	go client.writePump()
	go client.readPump()
}

// removeClient drops a client from the set and the subscription index,
// then closes its send queue so the write pump exits.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for symbol := range c.symbols {
		h.dropSubLocked(symbol, c)
	}
	count := len(h.clients)
	subCount := h.subscriptionCountLocked()
	h.mu.Unlock()

	close(c.send)
	h.notifyClients(count)
	h.notifySubscriptions(subCount)
}

// subscribe adds the client to each symbol's subscriber set and returns
// the normalized symbols for the ack.
func (h *Hub) subscribe(c *Client, symbols []string) []string {
	normalized := normalizeSymbols(symbols)

	h.mu.Lock()
	for _, symbol := range normalized {
		if _, ok := c.symbols[symbol]; ok {
			continue
		}
		c.symbols[symbol] = struct{}{}
		set, ok := h.subs[symbol]
		if !ok {
			set = make(map[*Client]struct{})
			h.subs[symbol] = set
		}
		set[c] = struct{}{}
	}
	subCount := h.subscriptionCountLocked()
	h.mu.Unlock()

	h.notifySubscriptions(subCount)
	h.log.Debug().Strs("symbols", normalized).Msg("ws client subscribed")
	return normalized
}

// unsubscribe removes the client from each symbol's subscriber set.
func (h *Hub) unsubscribe(c *Client, symbols []string) []string {
	normalized := normalizeSymbols(symbols)

	h.mu.Lock()
	for _, symbol := range normalized {
		if _, ok := c.symbols[symbol]; !ok {
			continue
		}
		delete(c.symbols, symbol)
		h.dropSubLocked(symbol, c)
	}
	subCount := h.subscriptionCountLocked()
	h.mu.Unlock()

	h.notifySubscriptions(subCount)
	h.log.Debug().Strs("symbols", normalized).Msg("ws client unsubscribed")
	return normalized
}

func (h *Hub) dropSubLocked(symbol string, c *Client) {
	set, ok := h.subs[symbol]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, symbol)
	}
}

func (h *Hub) subscriptionCountLocked() int {
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Broadcast serializes the sync event once and enqueues it on every
// subscriber of the event's symbol.
func (h *Hub) Broadcast(res syncCompleteMsg) {
	buf, err := json.Marshal(res)
	if err != nil {
		h.log.Error().Err(err).Msg("sync_complete marshal failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.subs[res.Symbol] {
		client.enqueue(buf)
	}
}

// snapshot returns the stats payload for the "stats" action.
func (h *Hub) snapshot() statsData {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make(map[string]int, len(h.subs))
	for symbol, set := range h.subs {
		subs[symbol] = len(set)
	}
	return statsData{
		TotalConnections: len(h.clients),
		Subscriptions:    subs,
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to symbol.
func (h *Hub) SubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.ToUpper(symbol)])
}

// CloseAll sends a going-away close frame to every client. Read pumps
// observe the closed connections and unregister themselves.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		c.conn.Close()
	}
}

func (h *Hub) notifyClients(total int) {
	if h.OnClients != nil {
		h.OnClients(total)
	}
}

func (h *Hub) notifySubscriptions(total int) {
	if h.OnSubscriptions != nil {
		h.OnSubscriptions(total)
	}
}

func (h *Hub) notifyDrop() {
	if h.OnDrop != nil {
		h.OnDrop()
	}
}

// normalizeSymbols uppercases, trims and dedupes while keeping the
// request order for the ack.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
