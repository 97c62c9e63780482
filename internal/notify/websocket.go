package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"usbtrigger/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds loopback only; any local origin is fine.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope pushed to clients.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// command is the envelope clients send back.
type command struct {
	Command string `json:"command"`
}

// WSManager handles WebSocket connections and broadcasting
type WSManager struct {
	server     *Server
	clients    map[*wsClient]bool
	clientsMu  sync.RWMutex
	broadcast  chan Message
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
}

// wsClient represents one connected frontend
type wsClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan Message, 16),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *WSManager) start() {
	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			m.clientsMu.Unlock()
			logging.Log.Info("WebSocket client connected",
				zap.String("remote", client.ip),
				zap.Int("total", len(m.clients)),
			)

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				logging.Log.Info("WebSocket client disconnected",
					zap.String("remote", client.ip),
					zap.Int("total", len(m.clients)),
				)
			}
			m.clientsMu.Unlock()

		case message := <-m.broadcast:
			m.broadcastMessage(message)

		case <-m.shutdown:
			return
		}
	}
}

func (m *WSManager) stop() {
	close(m.shutdown)
}

func (m *WSManager) broadcastMessage(message Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		logging.Log.Warn("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			close(client.send)
			delete(m.clients, client)
		}
	}
}

// Broadcast queues an event for every connected client. Drops the event
// if the hub is saturated rather than blocking the caller.
func (m *WSManager) Broadcast(event string, payload interface{}) {
	select {
	case m.broadcast <- Message{Event: event, Payload: payload}:
	default:
		logging.Log.Warn("Broadcast queue full, dropping event", zap.String("event", event))
	}
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &wsClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
	}

	m.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		c.manager.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Log.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
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

func (c *wsClient) handleMessage(data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		logging.Log.Warn("Invalid WebSocket message", zap.Error(err))
		return
	}

	switch cmd.Command {
	case "start-identify":
		logging.Log.Info("Identification requested", zap.String("remote", c.ip))
		go func() {
			if err := c.manager.server.ctrl.StartIdentify(); err != nil {
				logging.Log.Warn("Identification failed to start", zap.Error(err))
				c.manager.Broadcast("identify-error", err.Error())
			}
		}()

	case "stop-identify":
		c.manager.server.ctrl.StopIdentify()

	default:
		logging.Log.Debug("Unknown WebSocket command", zap.String("command", cmd.Command))
	}
}
