package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HubConfig configures a Hub.
type HubConfig struct {
	// PingInterval is how often clients are pinged (default: 30s)
	PingInterval time.Duration
	// PongWait is how long to wait for a pong (default: 60s)
	PongWait time.Duration
	// WriteWait bounds a single write (default: 10s)
	WriteWait time.Duration
	// MaxMessageSize limits client messages (default: 512 bytes)
	MaxMessageSize int64
	// BroadcastBufferSize is the broadcast queue length (default: 256)
	BroadcastBufferSize int
	// ClientSendBufferSize is the per-client queue length (default: 256)
	ClientSendBufferSize int
}

// DefaultHubConfig returns the default configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 256,
	}
}

type client struct {
	connectedAt time.Time
	remoteAddr  string
	send        chan []byte
}

type registration struct {
	conn    *websocket.Conn
	initial []byte
}

// Hub fans preview notifications out to websocket clients.
//
// It composes:
//   - WSMessage envelopes (ws_message.go)
//   - a client map guarded by clientsMu
//   - register/unregister/broadcast channels served by Run
//
// A client that cannot keep up is disconnected rather than slowing the
// scheduler's listeners down.
type Hub struct {
	clients   map[*websocket.Conn]client
	clientsMu sync.RWMutex

	broadcast  chan WSMessage
	register   chan registration
	unregister chan *websocket.Conn
	done       chan struct{}
	doneOnce   sync.Once

	upgrader websocket.Upgrader
	config   HubConfig
	initial  func() WSMessage
	logger   *zap.Logger
}

// NewHub creates a hub. initial, when not nil, builds the first message
// every client receives.
func NewHub(config HubConfig, initial func() WSMessage, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]client),
		broadcast:  make(chan WSMessage, config.BroadcastBufferSize),
		register:   make(chan registration),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		config:     config,
		initial:    initial,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Preview UIs are served from other origins (IDE webviews).
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	pingTicker := time.NewTicker(h.config.PingInterval)
	defer pingTicker.Stop()
	defer h.doneOnce.Do(func() { close(h.done) })

	h.logger.Debug("Websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			h.logger.Debug("Websocket hub stopped")
			return

		case reg := <-h.register:
			h.addClient(reg)

		case conn := <-h.unregister:
			h.removeClient(conn)

		case msg := <-h.broadcast:
			h.broadcastToAll(msg)

		case <-pingTicker.C:
			h.pingAll()
		}
	}
}

// HandleConnection upgrades the request and registers the client.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	conn.SetReadLimit(h.config.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	reg := registration{conn: conn}
	if h.initial != nil {
		reg.initial, err = json.Marshal(h.initial())
		if err != nil {
			h.logger.Error("Failed to marshal initial message", zap.Error(err))
		}
	}

	select {
	case h.register <- reg:
	case <-h.done:
		conn.Close()
		return
	}
	go h.readPump(conn)
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast buffer full, dropping message", zap.String("type", msg.Type))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(reg registration) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	c := client{
		connectedAt: time.Now(),
		remoteAddr:  reg.conn.RemoteAddr().String(),
		send:        make(chan []byte, h.config.ClientSendBufferSize),
	}
	if reg.initial != nil {
		c.send <- reg.initial
	}
	h.clients[reg.conn] = c
	go h.writePump(reg.conn, c.send)

	h.logger.Debug("Websocket client connected",
		zap.String("remote_addr", c.remoteAddr),
		zap.Int("clients", len(h.clients)))
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if c, ok := h.clients[conn]; ok {
		close(c.send)
		delete(h.clients, conn)
		conn.Close()
		h.logger.Debug("Websocket client disconnected",
			zap.String("remote_addr", c.remoteAddr),
			zap.Duration("connected_for", time.Since(c.connectedAt)),
			zap.Int("clients", len(h.clients)))
	}
}

func (h *Hub) broadcastToAll(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for conn, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Client send buffer full, disconnecting", zap.String("remote_addr", c.remoteAddr))
			go h.drop(conn)
		}
	}
}

func (h *Hub) pingAll() {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for conn, c := range h.clients {
		// WriteControl may run concurrently with the write pump.
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteWait))
		if err != nil {
			h.logger.Debug("Ping failed", zap.String("remote_addr", c.remoteAddr), zap.Error(err))
			go h.drop(conn)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn, c := range h.clients {
		close(c.send)
		conn.Close()
		delete(h.clients, conn)
	}
}

// drop asks Run to unregister conn unless the hub has stopped.
func (h *Hub) drop(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// readPump discards client messages; it exists to process pongs and to
// notice disconnects.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("Unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()
	for message := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Debug("Websocket write failed", zap.Error(err))
			return
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
}
