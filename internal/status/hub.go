// Package status pushes sync lifecycle events to the UI shell over a
// localhost WebSocket. The hub implements the orchestrator's Publisher
// interface; publishing never blocks a sync pass.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wirasto/fieldsync/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The endpoint only serves the UI shell on the same device.
		host, _, err := net.SplitHostPort(r.Host)
		if err != nil {
			host = r.Host
		}
		return host == "localhost" || host == "127.0.0.1"
	},
}

// Envelope wraps every pushed message.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

type message struct {
	event   string
	payload []byte
}

// client is one connected UI shell.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu         sync.Mutex // readPump writes, the fan-out loop reads
	subscriptions map[string]bool

	sendMu sync.Mutex // guards closing of send against concurrent senders
	closed bool
}

func (c *client) wants(event string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[event]
}

// trySend queues a payload without blocking. Returns false when the buffer
// is full or the channel is already closed; it never panics, because the
// readPump may still issue control sends after the fan-out loop dropped
// the client.
func (c *client) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub maintains connected clients and fans events out to them. A client
// with no subscriptions receives everything; one that subscribed receives
// only the named events.
type Hub struct {
	clients    map[string]*client
	broadcast  chan message
	register   chan *client
	unregister chan *client
}

// NewHub creates the hub and starts its fan-out loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]*client),
		broadcast:  make(chan message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c.id] = c
			logging.Debug("Status client connected", map[string]interface{}{
				"client": c.id, "total": len(h.clients),
			})

		case c := <-h.unregister:
			delete(h.clients, c.id)
			c.closeSend()

		case m := <-h.broadcast:
			for _, c := range h.clients {
				if !c.wants(m.event) {
					continue
				}
				if !c.trySend(m.payload) {
					// Slow client; drop it rather than stall the loop.
					delete(h.clients, c.id)
					c.closeSend()
				}
			}
		}
	}
}

// Publish implements the orchestrator's Publisher interface. When the
// broadcast buffer is full the event is dropped: status push is advisory
// and must never hold up a sync pass.
func (h *Hub) Publish(event string, data map[string]interface{}) {
	payload, err := json.Marshal(Envelope{
		Type:      event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		logging.Error("Failed to marshal status event", err)
		return
	}

	select {
	case h.broadcast <- message{event: event, payload: payload}:
	default:
		logging.Warn("Status event dropped, broadcast buffer full", map[string]interface{}{
			"event": event,
		})
	}
}

// Handler upgrades a connection and starts its pumps.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("Failed to upgrade status connection", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		c := &client{
			id:            time.Now().Format("20060102150405.000000") + "-" + r.RemoteAddr,
			conn:          conn,
			send:          make(chan []byte, 64),
			hub:           h,
			subscriptions: make(map[string]bool),
		}
		h.register <- c

		go c.writePump()
		go c.readPump()
	}
}

// ListenAndServe runs the localhost status endpoint until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/events", h.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	wg.Wait()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// readPump consumes client messages: subscribe/unsubscribe and ping.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("Status read error", map[string]interface{}{"error": err.Error()})
			}
			break
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		action, ok := msg["action"].(string)
		if !ok {
			continue
		}

		switch action {
		case "subscribe":
			if events, ok := msg["events"].([]interface{}); ok {
				c.subMu.Lock()
				for _, e := range events {
					if name, ok := e.(string); ok {
						c.subscriptions[name] = true
					}
				}
				c.subMu.Unlock()
				c.sendControl("subscribe_ack")
			}

		case "unsubscribe":
			if events, ok := msg["events"].([]interface{}); ok {
				c.subMu.Lock()
				for _, e := range events {
					if name, ok := e.(string); ok {
						delete(c.subscriptions, name)
					}
				}
				c.subMu.Unlock()
			}

		case "ping":
			c.sendControl("pong")
		}
	}
}

// writePump delivers queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) sendControl(action string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"action":    action,
		"timestamp": time.Now().Unix(),
	})
	c.trySend(payload)
}
