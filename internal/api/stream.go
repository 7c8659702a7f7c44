package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"neuraldrive/internal/sim"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

// Controller receives commands sent by stream clients.
type Controller interface {
	Pause()
	Resume()
	RequestReset()
}

type streamMessage struct {
	Type string        `json:"type"`
	Data *sim.Snapshot `json:"data,omitempty"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans snapshots out to websocket clients. A client whose buffer is full
// is dropped.
type Hub struct {
	clients    map[*streamClient]bool
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan []byte
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    map[*streamClient]bool{},
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg []byte) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) join(c *streamClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *streamClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish sends a snapshot to every stream client and keeps it for clients
// that connect later.
func (s *Server) Publish(snap sim.Snapshot) error {
	msg, err := json.Marshal(streamMessage{Type: "snapshot", Data: &snap})
	if err != nil {
		return err
	}
	s.latestMu.Lock()
	s.latest = msg
	s.latestMu.Unlock()
	s.hub.Broadcast(msg)
	return nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFound(w, r)
		return
	}
	if !s.hasAPIAccess(r) && r.URL.Query().Get("api_key") != s.cfg.APIKey {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("stream upgrade failed", "error", err)
		return
	}

	c := &streamClient{conn: conn, send: make(chan []byte, clientBuffer)}
	s.latestMu.Lock()
	if s.latest != nil {
		c.send <- s.latest
	}
	s.latestMu.Unlock()

	if !s.hub.join(c) {
		_ = conn.Close()
		return
	}
	go s.writeStream(c)
	go s.readStream(c)
}

func (s *Server) readStream(c *streamClient) {
	defer func() {
		s.hub.leave(c)
		_ = c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd streamMessage
		if json.Unmarshal(data, &cmd) != nil {
			continue
		}
		s.command(cmd.Type)
	}
}

func (s *Server) writeStream(c *streamClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) command(kind string) {
	if s.controller == nil {
		return
	}
	switch kind {
	case "pause":
		s.controller.Pause()
	case "resume":
		s.controller.Resume()
	case "reset":
		s.controller.RequestReset()
	default:
		return
	}
	s.logger.Info("stream command", "type", kind)
}
