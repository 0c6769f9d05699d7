package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message roles.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleSystem     = "system"
	RoleHumanAgent = "human_agent"
)

// Delivery status values for outbound messages.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
	DeliveryFailed    = "failed"
)

// Message is one entry in a lead's append-only conversation ledger. Messages
// are immutable once created except for delivery status updates.
type Message struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID string             `bson:"tenant_id" json:"tenant_id"`
	Phone    string             `bson:"phone" json:"phone"` // lead phone, the conversation key

	Role       string `bson:"role" json:"role"`                 // user, assistant, system, human_agent
	AttendedBy string `bson:"attended_by" json:"attended_by"`   // attended_by at creation time
	Content    string `bson:"content" json:"content"`

	// ProviderMessageID correlates with the outbound channel's id and keys
	// duplicate-delivery detection for inbound events.
	ProviderMessageID string `bson:"provider_message_id,omitempty" json:"provider_message_id,omitempty"`

	DeliveryStatus string       `bson:"delivery_status,omitempty" json:"delivery_status,omitempty"`
	Attachments    []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Attachment describes media attached to an inbound message.
type Attachment struct {
	Type string `bson:"type" json:"type"` // image, audio, document
	URL  string `bson:"url" json:"url"`
}

// ProcessedEvent tracks inbound provider message ids that have already been
// handled, so duplicate webhook deliveries produce at most one reply. Expired
// by a TTL index.
type ProcessedEvent struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProviderMessageID string             `bson:"provider_message_id" json:"provider_message_id"`
	ProcessedAt       time.Time          `bson:"processed_at" json:"processed_at"`
	TTL               time.Time          `bson:"ttl" json:"ttl"`
}
