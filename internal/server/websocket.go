package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	wshandler "github.com/windfall/phonoecho/internal/handler/ws"
	"github.com/windfall/phonoecho/internal/middleware"
	"github.com/windfall/phonoecho/internal/session"
	"github.com/windfall/phonoecho/pkg/response"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	inboxSize       = 16
)

var errClientGone = errors.New("websocket client disconnected")

// WebSocketMessage represents a WebSocket message.
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client bound to one session.
type Client struct {
	ID      string
	Session *session.Session
	Hub     *WebSocketHub
	Conn    *websocket.Conn
	Send    chan []byte

	inbox  chan WebSocketMessage
	ctx    context.Context
	cancel context.CancelFunc
}

// WebSocketHub tracks WebSocket connections.
type WebSocketHub struct {
	upgrader   websocket.Upgrader
	handler    *wshandler.Handler
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        zerolog.Logger

	// A peer that answers no ping within pongWait is dropped.
	pongWait   time.Duration
	pingPeriod time.Duration
}

// NewWebSocketHub creates a new WebSocket hub. Upgrades are accepted from
// allowedOrigins; "*" allows any origin.
func NewWebSocketHub(handler *wshandler.Handler, allowedOrigins []string, log zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		handler:    handler,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPongWait * 9 / 10,
	}
}

// Run starts the WebSocket hub.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				client.cancel()
				client.Conn.Close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.ID).Str("user", client.Session.User).Msg("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.ID).Msg("Client disconnected")
		}
	}
}

// HandleWebSocket handles GET /ws/feedback. The session is resolved by the
// auth middleware before the upgrade.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		response.Unauthorized(w, "missing session")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID := r.Header.Get("X-Request-ID")
	if clientID == "" {
		clientID = "client-" + uuid.NewString()[:8]
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:      clientID,
		Session: sess,
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		inbox:   make(chan WebSocketMessage, inboxSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.dispatch()
	go client.readPump()
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) send(message []byte) error {
	select {
	case <-c.ctx.Done():
		return errClientGone
	case c.Send <- message:
		return nil
	}
}

// readPump keeps reading while a message is being handled so pong frames
// extend the read deadline during long feedback streams.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		close(c.inbox)
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	pongWait := c.Hub.pongWait
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.log.Error().Err(err).Msg("Failed to parse WebSocket message")
			continue
		}

		select {
		case c.inbox <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// dispatch handles messages one at a time in arrival order.
func (c *Client) dispatch() {
	for msg := range c.inbox {
		if err := c.Hub.handler.Handle(c.ctx, c.Session, c.ID, msg.Type, msg.Payload, c.send); err != nil {
			c.Hub.log.Error().Err(err).Str("type", msg.Type).Msg("Failed to handle message")
			if errors.Is(err, errClientGone) {
				c.cancel()
				return
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.Hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
