package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// WebSocket errors
var (
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrConnectionBufferFull = errors.New("connection buffer full")
)

// Dashboard event types pushed over WebSocket.
const (
	WSTypeNewMessage  = "new_message"
	WSTypeHandoff     = "handoff"
	WSTypeHotLead     = "hot_lead"
	WSTypeThreatAlert = "threat_alert"
)

// WebSocketManager manages dashboard WebSocket connections keyed by tenant.
type WebSocketManager struct {
	// Map of tenant ID to map of client ID to connection
	connections map[string]map[string]*WebSocketConnection
	mu          sync.RWMutex
	broadcast   chan BroadcastMessage
}

// WebSocketConnection represents a single WebSocket connection
type WebSocketConnection struct {
	Conn     *websocket.Conn
	TenantID string
	ClientID string
	Send     chan []byte
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	TenantID string
	Phone    string
	Type     string
	Data     interface{}
}

// MessagePayload represents the structure of WebSocket messages
type MessagePayload struct {
	Type      string      `json:"type"`
	Phone     string      `json:"phone,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

var wsManager *WebSocketManager
var once sync.Once

// GetWebSocketManager returns the singleton WebSocket manager
func GetWebSocketManager() *WebSocketManager {
	once.Do(func() {
		wsManager = &WebSocketManager{
			connections: make(map[string]map[string]*WebSocketConnection),
			broadcast:   make(chan BroadcastMessage, 100),
		}
		go wsManager.handleBroadcast()
	})
	return wsManager
}

// RegisterConnection registers a new WebSocket connection
func (m *WebSocketManager) RegisterConnection(conn *WebSocketConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connections[conn.TenantID] == nil {
		m.connections[conn.TenantID] = make(map[string]*WebSocketConnection)
	}

	m.connections[conn.TenantID][conn.ClientID] = conn

	slog.Info("WebSocket connection registered",
		"tenantID", conn.TenantID,
		"clientID", conn.ClientID,
		"totalConnections", len(m.connections[conn.TenantID]))
}

// UnregisterConnection removes a WebSocket connection
func (m *WebSocketManager) UnregisterConnection(tenantID, clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tenantConns, exists := m.connections[tenantID]; exists {
		if conn, exists := tenantConns[clientID]; exists {
			close(conn.Send)
			delete(tenantConns, clientID)

			slog.Info("WebSocket connection unregistered",
				"tenantID", tenantID,
				"clientID", clientID,
				"remainingConnections", len(tenantConns))

			// Clean up empty tenant map
			if len(tenantConns) == 0 {
				delete(m.connections, tenantID)
			}
		}
	}
}

// BroadcastToTenant sends a message to all dashboard connections of a tenant
func (m *WebSocketManager) BroadcastToTenant(message BroadcastMessage) {
	select {
	case m.broadcast <- message:
	default:
		slog.Warn("WebSocket broadcast channel full, dropping event",
			"tenantID", message.TenantID,
			"type", message.Type)
	}
}

// handleBroadcast processes broadcast messages
func (m *WebSocketManager) handleBroadcast() {
	for message := range m.broadcast {
		m.mu.RLock()
		tenantConns, exists := m.connections[message.TenantID]
		m.mu.RUnlock()

		if !exists {
			continue
		}

		payload := MessagePayload{
			Type:      message.Type,
			Phone:     message.Phone,
			Data:      message.Data,
			Timestamp: time.Now().Unix(),
		}

		jsonData, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to marshal WebSocket message", "error", err)
			continue
		}

		m.mu.RLock()
		for _, conn := range tenantConns {
			select {
			case conn.Send <- jsonData:
				// Message sent successfully
			default:
				// Connection buffer full, skip
				slog.Warn("WebSocket connection buffer full",
					"tenantID", message.TenantID,
					"clientID", conn.ClientID)
			}
		}
		m.mu.RUnlock()
	}
}

// SendToConnection sends a message to a specific connection
func (m *WebSocketManager) SendToConnection(tenantID, clientID string, data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if tenantConns, exists := m.connections[tenantID]; exists {
		if conn, exists := tenantConns[clientID]; exists {
			select {
			case conn.Send <- data:
				return nil
			default:
				return ErrConnectionBufferFull
			}
		}
	}
	return ErrConnectionNotFound
}

// GetConnectionCount returns the number of active connections for a tenant
func (m *WebSocketManager) GetConnectionCount(tenantID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if tenantConns, exists := m.connections[tenantID]; exists {
		return len(tenantConns)
	}
	return 0
}
