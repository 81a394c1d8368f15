package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"eyescroll/internal/engine"
	"eyescroll/internal/protocol"
	"eyescroll/internal/scroll"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins as this is a local network tool
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSManager handles WebSocket connections and broadcasting
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.RWMutex
	broadcast  chan protocol.Message
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	shutdown   chan struct{}
	stopOnce   sync.Once
}

// WebSocketClient represents a connected event listener
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	id      string
	ip      string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:  s,
		clients: make(map[*WebSocketClient]bool),
		// Buffered so engine observers never wait on the hub
		broadcast:  make(chan protocol.Message, 64),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *WSManager) start() {
	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			total := len(m.clients)
			m.clientsMu.Unlock()
			log.Printf("WS: Client %s registered from %s. Total clients: %d", client.id, client.ip, total)

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				client.closeSend()
				log.Printf("WS: Client %s unregistered. Total clients: %d", client.id, len(m.clients))
			}
			m.clientsMu.Unlock()

		case message := <-m.broadcast:
			m.broadcastMessage(message)

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				client.closeSend()
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) stop() {
	m.stopOnce.Do(func() { close(m.shutdown) })
}

// Clients returns the number of registered clients
func (m *WSManager) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

func (m *WSManager) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS: Failed to marshal broadcast message: %v", err)
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		if !client.enqueue(jsonMsg) {
			// Slow client, drop it
			client.closeSend()
			delete(m.clients, client)
		}
	}
}

// onEvent turns engine events into broadcasts. It never blocks: events
// are dropped while the hub is backed up.
func (m *WSManager) onEvent(ev engine.Event) {
	var (
		msg protocol.Message
		err error
	)
	switch ev.Type {
	case engine.EventGaze:
		msg, err = protocol.NewMessage(protocol.TypeGaze, protocol.GazePayload{
			Direction: ev.Direction,
			Delta:     ev.Delta,
			Threshold: ev.Threshold,
			Timestamp: ev.Time.UnixMilli(),
		})
	case engine.EventDispatch:
		msg, err = protocol.NewMessage(protocol.TypeDispatch, protocol.DispatchPayload{
			Direction: ev.Direction,
			Origin:    string(ev.Origin),
			Delivered: ev.Delivered,
			Timestamp: ev.Time.UnixMilli(),
		})
	default:
		return
	}
	if err != nil {
		log.Printf("WS: Failed to encode %s event: %v", ev.Type, err)
		return
	}

	select {
	case m.broadcast <- msg:
	default:
	}
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS: Failed to upgrade connection: %v", err)
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		id:      uuid.NewString(),
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
	}

	// Greet with the current state before any broadcast
	if msg, err := protocol.NewMessage(protocol.TypeStatus, m.server.engine.Status()); err == nil {
		if data, err := json.Marshal(msg); err == nil {
			client.enqueue(data)
		}
	}

	// Register client
	select {
	case m.register <- client:
	case <-m.shutdown:
		conn.Close()
		return
	}

	// Start pump goroutines
	go client.writePump()
	go client.readPump()
}

// enqueue queues data for the write pump. It returns false when the
// client is gone or its buffer is full.
func (c *WebSocketClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WebSocketClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS: Read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

func (c *WebSocketClient) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("WS: Invalid message format: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeScroll:
		var payload protocol.ScrollPayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("WS: Invalid scroll payload: %v", err)
			return
		}
		if payload.Direction == scroll.Center {
			log.Printf("WS: Ignoring center scroll from %s", c.id)
			return
		}

		log.Printf("WS: Received scroll %s from %s", payload.Direction, c.id)
		// The resulting dispatch event is broadcast to every client, this one included
		c.manager.server.engine.Dispatch(engine.OriginWS, payload.Direction)

	case protocol.TypePing:
		if resp, err := json.Marshal(protocol.Message{Type: protocol.TypePing}); err == nil {
			c.enqueue(resp)
		}

	default:
		log.Printf("WS: Ignoring message of type %q from %s", msg.Type, c.id)
	}
}
