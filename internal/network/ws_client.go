// Package network provides the client side of the eyescroll event stream.
package network

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eyescroll/internal/engine"
	"eyescroll/internal/protocol"
	"eyescroll/internal/scroll"
)

// ErrClosed is returned when sending on a closed client
var ErrClosed = errors.New("ws client closed")

// WSClient follows the event stream of a running instance and can send
// scroll requests to it. It reconnects until closed.
type WSClient struct {
	hostAddr string
	token    string
	retry    time.Duration
	send     chan protocol.Message
	done     chan struct{}
	once     sync.Once

	// Callbacks, set before Start
	OnStatus   func(st engine.Status)
	OnGaze     func(p protocol.GazePayload)
	OnDispatch func(p protocol.DispatchPayload)

	mu          sync.Mutex
	conn        *websocket.Conn
	isConnected bool
}

// NewWSClient creates a new WebSocket client for the API at hostAddr
// (host:port)
func NewWSClient(hostAddr, token string) *WSClient {
	return &WSClient{
		hostAddr: hostAddr,
		token:    token,
		retry:    5 * time.Second,
		send:     make(chan protocol.Message, 100),
		done:     make(chan struct{}),
	}
}

// Start begins the client loop (connect & process)
func (c *WSClient) Start() {
	go c.loop()
}

func (c *WSClient) loop() {
	for {
		c.connect()

		// If connect returns, it means we disconnected. Wait a bit and retry.
		select {
		case <-c.done:
			return
		case <-time.After(c.retry):
			log.Println("WS Client: Attempting reconnection...")
		}
	}
}

func (c *WSClient) connect() {
	u := url.URL{Scheme: "ws", Host: c.hostAddr, Path: "/ws"}
	log.Printf("WS Client: Connecting to %s", u.String())

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Printf("WS Client: Connection failed: %v", err)
		return
	}
	defer conn.Close()

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	log.Printf("WS Client: Connected to %s", c.hostAddr)

	// Write pump lives as long as the read pump
	connDone := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(conn, connDone)
	}()

	c.readPump(conn)
	close(connDone)

	// Cleanup
	c.mu.Lock()
	c.isConnected = false
	c.conn = nil
	c.mu.Unlock()

	<-writerDone
}

func (c *WSClient) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WS Client: Read error: %v", err)
			}
			return
		}
		// Any traffic proves the server is alive
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("WS Client: Invalid message: %v", err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *WSClient) writePump(conn *websocket.Conn, connDone <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second) // Ping ticker
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("WS Client: Write error: %v", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-connDone:
			return
		}
	}
}

func (c *WSClient) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeStatus:
		var st engine.Status
		if err := msg.Decode(&st); err != nil {
			log.Printf("WS Client: Invalid status payload: %v", err)
			return
		}
		if c.OnStatus != nil {
			c.OnStatus(st)
		}

	case protocol.TypeGaze:
		var payload protocol.GazePayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("WS Client: Invalid gaze payload: %v", err)
			return
		}
		if c.OnGaze != nil {
			c.OnGaze(payload)
		}

	case protocol.TypeDispatch:
		var payload protocol.DispatchPayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("WS Client: Invalid dispatch payload: %v", err)
			return
		}
		if c.OnDispatch != nil {
			c.OnDispatch(payload)
		}
	}
}

// SendScroll queues a scroll request. It is delivered once connected.
func (c *WSClient) SendScroll(d scroll.Direction) error {
	if d != scroll.Up && d != scroll.Down {
		return scroll.ErrNoDirection
	}
	msg, err := protocol.NewMessage(protocol.TypeScroll, protocol.ScrollPayload{Direction: d})
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// IsConnected returns true if client is connected
func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close stops the client and drops the current connection
func (c *WSClient) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
}
