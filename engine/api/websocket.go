package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSMessageType identifies the kind of a websocket event.
type WSMessageType string

const (
	WSMessageTypeConnection         WSMessageType = "connection"
	WSMessageTypeRunSaved           WSMessageType = "run_saved"
	WSMessageTypeRunDeleted         WSMessageType = "run_deleted"
	WSMessageTypeRegressionDetected WSMessageType = "regression_detected"
)

// WSMessage is the envelope broadcast to dashboard clients.
type WSMessage struct {
	Type      WSMessageType `json:"type"`
	Data      interface{}   `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	wsWriteTimeout        = 10 * time.Second
	wsBroadcastBufferSize = 256
	wsClientBufferSize    = 64
	wsRegisterBufferSize  = 16
)

// wsClient is one connected dashboard client. All writes to the
// connection go through the send channel and its writePump; gorilla
// connections allow only one concurrent writer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump drains the send channel onto the connection. It is the
// connection's sole writer. A closed send channel means the hub dropped
// the client.
func (c *wsClient) writePump(log logrus.FieldLogger) {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.WithError(err).Debug("Websocket write failed")
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// WSHub fans run lifecycle events out to connected dashboard clients so
// they can refresh displayed comparisons. The clients map is owned by
// the Run goroutine; registration and teardown go through channels, so
// a send channel is only ever closed after the client has left the map.
type WSHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	log        logrus.FieldLogger
}

// NewWSHub creates a websocket hub.
func NewWSHub(log logrus.FieldLogger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient, wsRegisterBufferSize),
		unregister: make(chan *wsClient, wsRegisterBufferSize),
		broadcast:  make(chan []byte, wsBroadcastBufferSize),
		log:        log.WithField("component", "ws-hub"),
	}
}

// Run manages client membership and fans broadcasts out to the
// per-client send channels until the context is done.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client is not keeping up; cut it loose.
					h.log.Warn("Websocket client send buffer full, dropping client")
					h.drop(client)
				}
			}
		}
	}
}

// drop removes a client and closes its send channel, which terminates
// its writePump. Only called from the Run goroutine.
func (h *WSHub) drop(client *wsClient) {
	delete(h.clients, client)
	close(client.send)
}

// Broadcast queues an event for all connected clients. Events are
// dropped when the buffer is full; clients resynchronize via the API.
func (h *WSHub) Broadcast(msgType WSMessageType, data interface{}) {
	payload, err := json.Marshal(WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.log.WithError(err).Warn("Failed to marshal websocket message")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("Websocket broadcast buffer full, dropping event")
	}
}

// handleWebSocket upgrades the connection and hands it to the hub.
// Clients only listen; inbound messages are read and discarded to
// service control frames.
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, wsClientBufferSize),
	}

	// The greeting goes through the send channel like every other
	// message, so the writePump stays the only writer.
	greeting, _ := json.Marshal(WSMessage{
		Type:      WSMessageTypeConnection,
		Timestamp: time.Now(),
	})
	client.send <- greeting

	select {
	case s.hub.register <- client:
	default:
		s.log.Warn("Websocket registration queue full, rejecting client")
		conn.Close()
		return
	}
	s.log.WithField("remote", r.RemoteAddr).Debug("Websocket client connected")

	go client.writePump(s.hub.log)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.unregister <- client
				return
			}
		}
	}()
}
