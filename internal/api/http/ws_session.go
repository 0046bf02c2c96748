package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/metrics"
	"animestream/catalog/internal/session"
)

const (
	wsSendBuffer   = 256
	wsReadLimit    = 8 << 10
	wsPingInterval = 30 * time.Second
	wsPongWait     = 60 * time.Second
	wsWriteWait    = 10 * time.Second
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type wsInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wsQuery struct {
	Query string `json:"query"`
}

type wsGenres struct {
	Genre  string   `json:"genre"`
	Genres []string `json:"genres"`
}

type wsBrowse struct {
	Route string `json:"route"`
	Page  int    `json:"page"`
}

type wsCategories struct {
	Categories []domain.Category `json:"categories"`
}

type wsHello struct {
	Session string         `json:"session"`
	Genres  []domain.Genre `json:"genres"`
}

// wsClient is one browser tab. Each connection owns a session; the session
// publishes into send until the hub closes it.
type wsClient struct {
	hub     *wsHub
	conn    *websocket.Conn
	session *session.Session
	logger  *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

type wsHub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				client.closeSend()
				delete(h.clients, client)
			}
			metrics.ActiveSessions.Set(0)
			h.logger.Debug("ws hub stopped, all sessions disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			metrics.ActiveSessions.Set(float64(len(h.clients)))
			h.logger.Debug("ws session connected", slog.Int("total", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
				metrics.ActiveSessions.Set(float64(len(h.clients)))
				h.logger.Debug("ws session disconnected", slog.Int("total", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				client.deliver(msg)
			}
		}
	}
}

// Close signals the hub to stop and disconnect all clients.
func (h *wsHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast sends a typed JSON message to every connected session.
func (h *wsHub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	default:
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		http.Error(w, "search service is not configured", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}
	client.session = session.New(s.catalog, s.searchContext, client.publish,
		session.WithDelays(s.searchDelay, s.listingDelay),
		session.WithLogger(s.logger),
	)
	client.logger = s.logger.With(slog.String("session", client.session.ID()))

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		client.session.Close()
		_ = conn.Close()
		return
	}

	hello := wsHello{Session: client.session.ID(), Genres: []domain.Genre{}}
	if s.genres != nil {
		if genres := s.genres.Snapshot(); genres != nil {
			hello.Genres = genres
		}
	}
	client.enqueue(wsMessage{Type: "hello", Data: hello})

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) publish(event session.Event) {
	c.enqueue(wsMessage{Type: "event", Data: event})
}

func (c *wsClient) enqueue(msg wsMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	c.deliver(payload)
}

// deliver never blocks; a client that cannot keep up loses the message.
func (c *wsClient) deliver(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("ws send buffer full, dropping message")
	}
}

func (c *wsClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.session.Close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		c.handle(data)
	}
}

// handle applies one client command to the session.
func (c *wsClient) handle(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reject("invalid message")
		return
	}

	switch msg.Type {
	case "type", "submit":
		var body wsQuery
		if !c.decode(msg.Data, &body) {
			return
		}
		if len(body.Query) > maxQueryLength {
			c.reject("query too long (max 500 characters)")
			return
		}
		if msg.Type == "type" {
			c.session.Type(body.Query)
		} else {
			c.session.Submit(body.Query)
		}
	case "loadMore":
		c.session.LoadMore()
	case "genre":
		var body wsGenres
		if !c.decode(msg.Data, &body) {
			return
		}
		if body.Genres != nil {
			c.session.SetGenreFilter(body.Genres)
		} else {
			c.session.ToggleGenre(body.Genre)
		}
	case "browse":
		var body wsBrowse
		if !c.decode(msg.Data, &body) {
			return
		}
		if err := c.session.Browse(body.Route, body.Page); err != nil {
			c.reject("unknown listing route")
		}
	case "categories":
		var body wsCategories
		if len(msg.Data) > 0 && !c.decode(msg.Data, &body) {
			return
		}
		categories := make([]domain.Category, 0, len(body.Categories))
		for _, raw := range body.Categories {
			category, ok := parseCategory(string(raw))
			if !ok {
				c.reject("unknown category")
				return
			}
			categories = append(categories, category)
		}
		c.session.LoadCategories(categories...)
	case "open":
		var body session.Selection
		if !c.decode(msg.Data, &body) {
			return
		}
		if body.Result.ID == "" {
			c.reject("id is required")
			return
		}
		c.session.Open(body)
	case "dismiss":
		c.session.Dismiss()
	default:
		c.reject("unknown message type")
	}
}

func (c *wsClient) decode(raw json.RawMessage, dest any) bool {
	if err := json.Unmarshal(raw, dest); err != nil {
		c.reject("invalid message data")
		return false
	}
	return true
}

func (c *wsClient) reject(message string) {
	c.enqueue(wsMessage{Type: "error", Data: map[string]string{"message": message}})
}
