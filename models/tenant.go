package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Handoff modes.
const (
	HandoffModeCRMInbox       = "crm_inbox"
	HandoffModeLegacyWhatsApp = "legacy_personal_whatsapp"
)

// Tenant represents an isolated customer organization. All data is
// partitioned by tenant; per-tenant policy lives here and is read-mostly.
type Tenant struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID string             `bson:"tenant_id" json:"tenant_id"`
	Name     string             `bson:"name" json:"name"`
	IsActive bool               `bson:"is_active" json:"is_active"`

	// WhatsAppPhoneID is the provider phone-number id the webhook delivers
	// events for; it maps an inbound event to its tenant.
	WhatsAppPhoneID string `bson:"whatsapp_phone_id" json:"whatsapp_phone_id"`
	WhatsAppToken   string `bson:"whatsapp_token" json:"whatsapp_token"`

	ClaudeAPIKey string `bson:"claude_api_key" json:"claude_api_key"`
	ClaudeModel  string `bson:"claude_model" json:"claude_model"`
	MaxTokens    int    `bson:"max_tokens" json:"max_tokens"`

	BusinessHours BusinessHours `bson:"business_hours" json:"business_hours"`
	Guards        GuardPolicy   `bson:"guards" json:"guards"`
	Templates     Templates     `bson:"templates" json:"templates"`

	HandoffMode string     `bson:"handoff_mode" json:"handoff_mode"` // crm_inbox, legacy_personal_whatsapp
	FAQs        []FAQEntry `bson:"faqs,omitempty" json:"faqs,omitempty"`
	Products    []Product  `bson:"products,omitempty" json:"products,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// BusinessHours is the tenant's weekly service window.
type BusinessHours struct {
	Enabled  bool       `bson:"enabled" json:"enabled"`
	Timezone string     `bson:"timezone" json:"timezone"` // IANA name, e.g. America/Sao_Paulo
	Days     []DayHours `bson:"days" json:"days"`
}

// DayHours is one weekday's open/close window in HH:MM local time. A day
// absent from the schedule is closed.
type DayHours struct {
	Weekday int    `bson:"weekday" json:"weekday"` // 0 = Sunday, per time.Weekday
	Open    string `bson:"open" json:"open"`
	Close   string `bson:"close" json:"close"`
}

// GuardPolicy carries the tenant's guard thresholds and policy text.
type GuardPolicy struct {
	// ScopeKeywords describe the tenant's business domain; a message matching
	// none of them is treated as out of scope.
	ScopeKeywords []string `bson:"scope_keywords" json:"scope_keywords"`

	// ForbidPriceDisclosure blocks the assistant from stating prices,
	// availability and delivery specifics; matching intent suggests handoff.
	ForbidPriceDisclosure bool   `bson:"forbid_price_disclosure" json:"forbid_price_disclosure"`
	PricePolicyText       string `bson:"price_policy_text,omitempty" json:"price_policy_text,omitempty"`

	// InsistenceTolerance is how many times a disallowed topic may recur
	// before the conversation is handed to a human.
	InsistenceTolerance int `bson:"insistence_tolerance" json:"insistence_tolerance"`

	// MaxAITurns caps automated replies per episode before forcing handoff.
	MaxAITurns int `bson:"max_ai_turns" json:"max_ai_turns"`
}

// Templates are the tenant's canned replies. All have Portuguese defaults
// applied by the pipeline when empty.
type Templates struct {
	OutOfHours      string `bson:"out_of_hours,omitempty" json:"out_of_hours,omitempty"`
	OutOfScope      string `bson:"out_of_scope,omitempty" json:"out_of_scope,omitempty"`
	ThreatReply     string `bson:"threat_reply,omitempty" json:"threat_reply,omitempty"`
	RateLimited     string `bson:"rate_limited,omitempty" json:"rate_limited,omitempty"`
	HandoffReply    string `bson:"handoff_reply,omitempty" json:"handoff_reply,omitempty"`
	Fallback        string `bson:"fallback,omitempty" json:"fallback,omitempty"`
	UnsafeReply     string `bson:"unsafe_reply,omitempty" json:"unsafe_reply,omitempty"`
	SecurityPreface string `bson:"security_preface,omitempty" json:"security_preface,omitempty"`
	BasePrompt      string `bson:"base_prompt,omitempty" json:"base_prompt,omitempty"`
}

// FAQEntry is a pre-authored answer matched before the model is invoked.
type FAQEntry struct {
	Keywords []string `bson:"keywords" json:"keywords"`
	Answer   string   `bson:"answer" json:"answer"`
}

// Product is catalog data injected into the prompt when matched.
type Product struct {
	Name        string   `bson:"name" json:"name"`
	Description string   `bson:"description" json:"description"`
	Keywords    []string `bson:"keywords" json:"keywords"`
}
