package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Notification routing keys. Consumers bind queues per tenant or per event
// class, e.g. "handoff.*" or "*.tenant-42".
const (
	EventHandoff      = "handoff"
	EventManagerQueue = "manager_queue"
	EventHotLead      = "hot_lead"
	EventThreat       = "threat"
)

// NotificationEvent is the envelope published to the broker.
type NotificationEvent struct {
	EventID   string      `json:"event_id"`
	Event     string      `json:"event"`
	TenantID  string      `json:"tenant_id"`
	Phone     string      `json:"phone"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier publishes pipeline events to a topic exchange. All publishes are
// fire and forget: a broker outage never blocks or fails message processing.
type Notifier struct {
	exchange string
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	url      string
	disabled bool
}

// NewNotifier connects to the broker and declares the exchange. An empty URL
// yields a disabled notifier whose publishes are no-ops.
func NewNotifier(url, exchange string) (*Notifier, error) {
	if url == "" {
		slog.Info("Notifier disabled, no broker URL configured")
		return &Notifier{disabled: true}, nil
	}

	n := &Notifier{url: url, exchange: exchange}
	if err := n.connect(); err != nil {
		return nil, err
	}

	return n, nil
}

func (n *Notifier) connect() error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		n.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	n.conn = conn
	n.channel = channel

	slog.Info("Notifier connected", "exchange", n.exchange)
	return nil
}

// Publish emits one event with routing key "<event>.<tenantID>". Errors are
// logged, not returned; one reconnect is attempted on a closed channel.
func (n *Notifier) Publish(ctx context.Context, event, tenantID, phone string, data interface{}) {
	if n == nil || n.disabled {
		return
	}

	envelope := NotificationEvent{
		EventID:   uuid.NewString(),
		Event:     event,
		TenantID:  tenantID,
		Phone:     phone,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		slog.Error("Failed to marshal notification", "event", event, "error", err)
		return
	}

	routingKey := fmt.Sprintf("%s.%s", event, tenantID)

	if err := n.publish(ctx, routingKey, envelope.EventID, body); err != nil {
		slog.Warn("Notification publish failed, reconnecting", "event", event, "error", err)

		n.mu.Lock()
		reconnectErr := n.connect()
		n.mu.Unlock()
		if reconnectErr != nil {
			slog.Error("Notifier reconnect failed", "error", reconnectErr)
			return
		}

		if err := n.publish(ctx, routingKey, envelope.EventID, body); err != nil {
			slog.Error("Notification dropped", "event", event, "tenantID", tenantID, "error", err)
		}
	}
}

func (n *Notifier) publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.channel == nil {
		return fmt.Errorf("notifier channel not open")
	}

	return n.channel.PublishWithContext(ctx,
		n.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
}

// Close releases the broker connection.
func (n *Notifier) Close() {
	if n == nil || n.disabled {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
