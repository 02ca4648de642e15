package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/CageChen/ttbox/internal/watcher"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WSHandler pushes change and update notifications to connected clients
type WSHandler struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

// NewWSHandler creates a new WebSocket handler. Handshakes carrying an Origin
// header are accepted only when allowOrigin approves it.
func NewWSHandler(allowOrigin func(origin string) bool) *WSHandler {
	return &WSHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || (allowOrigin != nil && allowOrigin(origin))
			},
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWS handles WebSocket upgrade and connection
func (h *WSHandler) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() {
		h.removeClient(conn)
		_ = conn.Close()
	}()

	h.addClient(conn)

	// Keep connection alive and drain incoming messages
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// OnFileChange is called when a file change is detected
func (h *WSHandler) OnFileChange(event watcher.Event) {
	h.Broadcast("fileChange", map[string]string{
		"event": event.Type.String(),
		"path":  event.Path,
	})
}

// Broadcast sends a message of the given type to every client
func (h *WSHandler) Broadcast(msgType string, payload any) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("Warning: failed to encode %s message: %v", msgType, err)
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.removeClient(client)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WSHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHandler) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *WSHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}
