package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

// Message types pushed to browser clients
const (
	MessageTypeTranscriptPartial = "transcript_partial" // In-progress utterance text
	MessageTypeTranscriptEntry   = "transcript_entry"   // Committed transcript entry
	MessageTypeSessionStatus     = "session_status"     // Live session lifecycle updates
	MessageTypeError             = "error"              // Session or provider error
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Client represents a WebSocket client
type Client struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server represents a WebSocket server
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewServer creates a new WebSocket server
func NewServer(logger *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: logger.Named("web-socket"),
	}
}

// Run starts the WebSocket server
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", String("client_count", fmt.Sprintf("%d", clientCount)))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				// Mark client as closed first to prevent new messages
				client.mu.Lock()
				client.closed = true
				client.mu.Unlock()
				// Then close the channel
				close(client.send)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", String("client_count", fmt.Sprintf("%d", clientCount)))

		case message := <-s.broadcast:
			s.mu.RLock()
			clientsToRemove := make([]*Client, 0)
			for client := range s.clients {
				// Check if client is still valid before sending
				client.mu.Lock()
				if client.closed {
					clientsToRemove = append(clientsToRemove, client)
					client.mu.Unlock()
					continue
				}
				client.mu.Unlock()

				select {
				case client.send <- message:
					// Message sent successfully
				default:
					// Channel is full, mark for removal
					clientsToRemove = append(clientsToRemove, client)
				}
			}
			s.mu.RUnlock()

			// Clean up failed clients
			if len(clientsToRemove) > 0 {
				s.mu.Lock()
				for _, client := range clientsToRemove {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.mu.Lock()
						if !client.closed {
							client.closed = true
							close(client.send)
						}
						client.mu.Unlock()
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

// HandleConnection handles a WebSocket connection
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		String("remote_addr", r.RemoteAddr),
		String("user_agent", r.UserAgent()))

	// Upgrade HTTP connection to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Successfully upgraded connection to WebSocket",
		String("remote_addr", r.RemoteAddr))

	// Create client
	client := &Client{
		conn:      conn,
		send:      make(chan *Message, 256),
		server:    s,
		closeChan: make(chan struct{}),
	}

	// Register client
	s.register <- client

	// Start client goroutines
	go client.readPump()
	go client.writePump()
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(message *Message) {
	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()

	s.logger.Debug("Broadcasting message to all clients",
		String("message_type", message.Type),
		String("client_count", fmt.Sprintf("%d", clientCount)))

	s.broadcast <- message
}

// readPump drains the WebSocket connection to detect disconnects. Clients
// are consumers only, inbound payloads are ignored.
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()

		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		// Check if client is closed
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		// Read message
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", Error(err))
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Channel closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.mu.Unlock()
				return
			}

			// Marshal message to JSON
			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal message", Error(err))
				c.mu.Unlock()
				continue
			}

			w.Write(data)

			// Close writer
			if err := w.Close(); err != nil {
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeChan)
	c.conn.Close()
}

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)
