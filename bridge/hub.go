// Package bridge exposes a session to WebSocket clients, such as a browser
// gamepad page or a phone app.
//
// Session notifications are broadcast to every client as JSON events, and
// every client can send JSON intents that are turned into commands.
package bridge

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arloliu/go-tankbot/command"
	"github.com/arloliu/go-tankbot/logger"
)

// DefaultWriteTimeout bounds one write to a client, so a slow client cannot
// hold up notifications.
const DefaultWriteTimeout = 100 * time.Millisecond

// Event types sent to clients.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventMessage      = "message"
	EventError        = "error"
	EventRejected     = "rejected"
)

// Event is the JSON document broadcast to clients.
type Event struct {
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Frame string `json:"frame,omitempty"`
	Error string `json:"error,omitempty"`
	Cmd   string `json:"cmd,omitempty"`
}

// Sender is the part of a session the hub drives.
type Sender interface {
	Send(cmd command.Command) error
}

// ErrNoSender is reported to clients when no session is bound yet.
var ErrNoSender = errors.New("bridge: no session bound")

type client struct {
	conn *websocket.Conn
	// wmu serialises writes, gorilla allows one concurrent writer.
	wmu sync.Mutex
}

func (c *client) writeJSON(v any, timeout time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))

	return c.conn.WriteJSON(v)
}

// Hub is an http.Handler upgrading requests to WebSocket clients and a
// session Listener broadcasting to them.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	sender   Sender
	upgrader websocket.Upgrader
	logger   logger.Logger

	writeTimeout time.Duration
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins restricts the Origin header of upgrade requests.
// By default any origin is accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}

		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			if !ok {
				h.logger.Warn("bridge: origin not allowed", "origin", origin, "remoteAddr", r.RemoteAddr)
			}

			return ok
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithWriteTimeout sets the per-client write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// NewHub creates a hub without a session; see Bind.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:       logger.GetLogger(),
		writeTimeout: DefaultWriteTimeout,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Bind sets the session that receives client intents.
func (h *Hub) Bind(s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sender = s
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("bridge: websocket upgrade failed", "error", err, "remoteAddr", r.RemoteAddr)
		return
	}

	c := &client{conn: conn}
	h.addClient(c)
	defer h.removeClient(c)

	h.logger.Info("bridge: client connected", "remoteAddr", r.RemoteAddr)

	for {
		var in Intent
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("bridge: client read ended", "remoteAddr", r.RemoteAddr, "error", err)
			}

			return
		}

		h.handleIntent(c, in)
	}
}

func (h *Hub) handleIntent(c *client, in Intent) {
	cmd, err := in.Command()
	if err == nil {
		h.mu.Lock()
		sender := h.sender
		h.mu.Unlock()

		if sender == nil {
			err = ErrNoSender
		} else {
			err = sender.Send(cmd)
		}
	}

	if err != nil {
		h.logger.Debug("bridge: intent rejected", "type", in.Type, "error", err)

		if werr := c.writeJSON(Event{Type: EventRejected, Cmd: cmd.String(), Error: err.Error()}, h.writeTimeout); werr != nil {
			h.removeClient(c)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		_ = c.conn.Close()
	}
}

// Broadcast sends ev to every client in parallel; clients failing the write
// are dropped.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []*client
	)

	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()

			if err := c.writeJSON(ev, h.writeTimeout); err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	for _, c := range failed {
		h.removeClient(c)
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		_ = c.conn.Close()
	}
}

// OnConnected broadcasts a connected event.
func (h *Hub) OnConnected(name string) { h.Broadcast(Event{Type: EventConnected, Name: name}) }

// OnDisconnected broadcasts a disconnected event.
func (h *Hub) OnDisconnected() { h.Broadcast(Event{Type: EventDisconnected}) }

// OnMessage broadcasts a robot frame.
func (h *Hub) OnMessage(frame string) { h.Broadcast(Event{Type: EventMessage, Frame: frame}) }

// OnError broadcasts a session error.
func (h *Hub) OnError(err error) { h.Broadcast(Event{Type: EventError, Error: err.Error()}) }
