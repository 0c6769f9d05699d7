package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"whatsapp-bot/models"
	"whatsapp-bot/services"
)

// WebSocketMessage represents an incoming WebSocket message
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Phone   string          `json:"phone,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// WebSocketUpgrade upgrades HTTP connection to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket handles dashboard WebSocket connections
func HandleWebSocket(c *websocket.Conn) {
	tenantID, ok := c.Locals("tenant_id").(string)
	if !ok || tenantID == "" {
		slog.Error("WebSocket connection without tenant ID")
		c.Close()
		return
	}

	clientID := uuid.New().String()

	conn := &services.WebSocketConnection{
		Conn:     c,
		TenantID: tenantID,
		ClientID: clientID,
		Send:     make(chan []byte, 256),
	}

	wsManager := services.GetWebSocketManager()
	wsManager.RegisterConnection(conn)
	defer wsManager.UnregisterConnection(tenantID, clientID)

	slog.Info("WebSocket connection established",
		"tenantID", tenantID,
		"clientID", clientID)

	welcomeMsg := map[string]interface{}{
		"type":      "connected",
		"message":   "WebSocket connection established",
		"client_id": clientID,
	}
	if welcomeData, err := json.Marshal(welcomeMsg); err == nil {
		c.WriteMessage(websocket.TextMessage, welcomeData)
	}

	go handleWebSocketSend(conn)

	handleWebSocketReceive(conn)
}

// handleWebSocketSend handles sending messages to the WebSocket client
func handleWebSocketSend(conn *services.WebSocketConnection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Failed to write WebSocket message", "error", err)
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocketReceive handles receiving messages from the WebSocket client
func handleWebSocketReceive(conn *services.WebSocketConnection) {
	defer func() {
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512 * 1024) // 512KB max message size
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}

		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to parse WebSocket message", "error", err)
			continue
		}

		switch msg.Type {
		case "ping":
			pongMsg := map[string]string{"type": "pong"}
			if pongData, err := json.Marshal(pongMsg); err == nil {
				conn.Send <- pongData
			}

		case "send_message":
			// Handle sending message from dashboard to customer
			handleDashboardMessage(conn, msg)

		default:
			slog.Warn("Unknown WebSocket message type",
				"type", msg.Type,
				"tenantID", conn.TenantID)
		}
	}
}

// handleDashboardMessage sends a human agent's reply from the dashboard to a
// lead on WhatsApp. Only leads under human attendance accept dashboard
// messages; the automated pipeline keeps owning everything else.
func handleDashboardMessage(conn *services.WebSocketConnection, msg WebSocketMessage) {
	if msg.Phone == "" || msg.Message == "" {
		sendWebSocketError(conn, "Missing required fields: phone and message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tenant, err := services.GetTenantByID(ctx, conn.TenantID)
	if err != nil {
		slog.Error("Failed to get tenant", "error", err)
		sendWebSocketError(conn, "Failed to get tenant configuration")
		return
	}

	phone := services.NormalizePhone(msg.Phone)

	lead, err := services.GetLead(ctx, conn.TenantID, phone)
	if err != nil || lead == nil {
		sendWebSocketError(conn, "Lead not found")
		return
	}

	if lead.AttendedBy == models.AttendedByAI {
		sendWebSocketError(conn, "Lead is under automated attendance; hand it off first")
		return
	}

	providerID, err := services.SendWhatsAppReply(ctx, tenant.WhatsAppPhoneID, tenant.WhatsAppToken, phone, msg.Message)
	status := models.DeliverySent
	if err != nil {
		slog.Error("Failed to send dashboard message", "error", err)
		sendWebSocketError(conn, "Failed to send message to customer")
		status = models.DeliveryFailed
	}

	if err := services.SaveMessage(ctx, &models.Message{
		TenantID:          conn.TenantID,
		Phone:             phone,
		Role:              models.RoleHumanAgent,
		AttendedBy:        lead.AttendedBy,
		Content:           msg.Message,
		ProviderMessageID: providerID,
		DeliveryStatus:    status,
	}); err != nil {
		slog.Error("Failed to save dashboard message", "error", err)
	}

	if status != models.DeliverySent {
		return
	}

	successMsg := map[string]interface{}{
		"type":      "message_sent",
		"phone":     phone,
		"message":   msg.Message,
		"timestamp": time.Now().Unix(),
	}
	if successData, err := json.Marshal(successMsg); err == nil {
		conn.Send <- successData
	}

	services.GetWebSocketManager().BroadcastToTenant(services.BroadcastMessage{
		TenantID: conn.TenantID,
		Phone:    phone,
		Type:     services.WSTypeNewMessage,
		Data: map[string]interface{}{
			"role":      models.RoleHumanAgent,
			"content":   msg.Message,
			"timestamp": time.Now().Unix(),
		},
	})
}

// sendWebSocketError sends an error message to the WebSocket client
func sendWebSocketError(conn *services.WebSocketConnection, errorMessage string) {
	errorMsg := map[string]string{
		"type":  "error",
		"error": errorMessage,
	}
	if errorData, err := json.Marshal(errorMsg); err == nil {
		conn.Send <- errorData
	}
}
