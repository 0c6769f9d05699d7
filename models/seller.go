package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Seller is an assignable human sales agent. CurrentLeadsCount and
// LastAssignedAt drive the fairness distribution and are mutated only by the
// distribution service.
type Seller struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SellerID string             `bson:"seller_id" json:"seller_id"`
	TenantID string             `bson:"tenant_id" json:"tenant_id"`
	Name     string             `bson:"name" json:"name"`
	Phone    string             `bson:"phone,omitempty" json:"phone,omitempty"`

	IsActive          bool      `bson:"is_active" json:"is_active"`
	CurrentLeadsCount int       `bson:"current_leads_count" json:"current_leads_count"`
	LastAssignedAt    time.Time `bson:"last_assigned_at" json:"last_assigned_at"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
