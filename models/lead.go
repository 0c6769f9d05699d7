package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AttendedBy values. A lead is attended by exactly one of these at a time.
const (
	AttendedByAI      = "ai"
	AttendedBySeller  = "seller"
	AttendedByManager = "manager"
)

// Lead lifecycle status values.
const (
	LeadStatusActive   = "active"
	LeadStatusArchived = "archived"
)

// Qualification tiers.
const (
	QualificationCold = "cold"
	QualificationWarm = "warm"
	QualificationHot  = "hot"
)

// Lead represents a prospective customer conversation thread, identified by
// phone number within a tenant.
type Lead struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Phone    string             `bson:"phone" json:"phone"`
	TenantID string             `bson:"tenant_id" json:"tenant_id"`
	Name     string             `bson:"name,omitempty" json:"name,omitempty"`

	Status     string `bson:"status" json:"status"`           // active, archived
	AttendedBy string `bson:"attended_by" json:"attended_by"` // ai, seller, manager
	SellerID   string `bson:"seller_id,omitempty" json:"seller_id,omitempty"`

	Qualification           string  `bson:"qualification" json:"qualification"` // cold, warm, hot
	QualificationConfidence float64 `bson:"qualification_confidence" json:"qualification_confidence"`

	MessageCount      int    `bson:"message_count" json:"message_count"`           // total inbound messages
	AITurnCount       int    `bson:"ai_turn_count" json:"ai_turn_count"`           // automated replies this episode
	ValidatorFailures int    `bson:"validator_failures" json:"validator_failures"` // unsafe replies this episode
	InsistenceCount   int    `bson:"insistence_count" json:"insistence_count"`     // repeated disallowed-topic hits
	LastBlockedTopic  string `bson:"last_blocked_topic,omitempty" json:"last_blocked_topic,omitempty"`

	LastMessage      string     `bson:"last_message,omitempty" json:"last_message,omitempty"`
	FirstMessageAt   time.Time  `bson:"first_message_at" json:"first_message_at"`
	LastMessageAt    time.Time  `bson:"last_message_at" json:"last_message_at"`
	SellerTookOverAt *time.Time `bson:"seller_took_over_at,omitempty" json:"seller_took_over_at,omitempty"`
	ArchivedAt       *time.Time `bson:"archived_at,omitempty" json:"archived_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
