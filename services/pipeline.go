package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"whatsapp-bot/config"
	"whatsapp-bot/models"
)

// InboundMessage is one sanitizable inbound event, already extracted from the
// webhook payload.
type InboundMessage struct {
	PhoneNumberID     string
	From              string
	Name              string
	Text              string
	ProviderMessageID string
	Timestamp         time.Time
}

// Pipeline runs every inbound message through dedup, sanitization, admission
// control, threat scanning, the guard chain and finally the model. Stages are
// ordered cheapest first; each stage only runs when every prior stage passed.
type Pipeline struct {
	cfg       *config.Config
	sanitizer *Sanitizer
	limiter   *RateLimiter
	scanner   *ThreatScanner
	guards    *GuardChain
	builder   *ContextBuilder
	model     *ModelClient
	notifier  *Notifier
}

// NewPipeline wires the pipeline stages from configuration.
func NewPipeline(cfg *config.Config, notifier *Notifier) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		sanitizer: NewSanitizer(cfg.MaxMessageLength),
		limiter:   NewRateLimiter(&MongoWindowStore{}, cfg.RateWindow),
		scanner:   NewThreatScanner(),
		guards:    NewGuardChain(),
		builder:   NewContextBuilder(cfg.PromptBudget),
		model:     NewModelClient(cfg.ModelAttempts, cfg.ModelTimeout),
		notifier:  notifier,
	}
}

// ProcessInbound handles one inbound message end to end. Errors are logged,
// not returned: the webhook has already been acked by the time this runs.
func (p *Pipeline) ProcessInbound(ctx context.Context, in InboundMessage) {
	fresh, err := MarkEventProcessed(ctx, in.ProviderMessageID)
	if err != nil {
		slog.Error("Dedup check failed", "providerMessageID", in.ProviderMessageID, "error", err)
		return
	}
	if !fresh {
		return
	}

	tenant, err := GetTenantByPhoneID(ctx, in.PhoneNumberID)
	if err != nil {
		slog.Warn("Inbound event for unknown or inactive tenant",
			"phoneNumberID", in.PhoneNumberID,
			"error", err)
		return
	}

	sanitized := p.sanitizer.Sanitize(in.Text)
	if sanitized.Blocked {
		slog.Info("Inbound message dropped",
			"tenantID", tenant.TenantID,
			"reason", sanitized.BlockReason)
		return
	}
	clean := sanitized.Clean

	phone := NormalizePhone(in.From)
	if phone == "" {
		slog.Warn("Inbound message with no usable sender phone", "tenantID", tenant.TenantID)
		return
	}

	lead, err := SaveOrUpdateLead(ctx, tenant.TenantID, phone, in.Name, clean)
	if err != nil {
		slog.Error("Failed to upsert lead", "tenantID", tenant.TenantID, "phone", phone, "error", err)
		return
	}

	// Snapshot recent user turns before persisting the current one, so the
	// repetition check sees only prior messages.
	recentUserMessages, err := GetRecentUserMessages(ctx, tenant.TenantID, phone, SpamLookback)
	if err != nil {
		slog.Warn("Failed to load recent messages for spam check", "error", err)
		recentUserMessages = nil
	}

	if err := SaveMessage(ctx, &models.Message{
		TenantID:          tenant.TenantID,
		Phone:             phone,
		Role:              models.RoleUser,
		AttendedBy:        lead.AttendedBy,
		Content:           clean,
		ProviderMessageID: in.ProviderMessageID,
		Timestamp:         in.Timestamp,
	}); err != nil {
		slog.Error("Failed to persist inbound message", "error", err)
	}

	GetWebSocketManager().BroadcastToTenant(BroadcastMessage{
		TenantID: tenant.TenantID,
		Phone:    phone,
		Type:     WSTypeNewMessage,
		Data:     map[string]string{"role": models.RoleUser, "content": clean},
	})

	MarkWhatsAppRead(ctx, tenant.WhatsAppPhoneID, tenant.WhatsAppToken, in.ProviderMessageID)

	// A lead under human attendance gets no automated reply; the message is
	// persisted and surfaced, nothing else.
	if lead.AttendedBy != models.AttendedByAI {
		if lead.SellerTookOverAt != nil && time.Since(*lead.SellerTookOverAt) > p.cfg.HandoffCooldown {
			slog.Info("Handoff cooldown elapsed, lead still awaits explicit reset",
				"tenantID", tenant.TenantID,
				"phone", phone,
				"attendedBy", lead.AttendedBy)
		}
		return
	}

	decision := p.limiter.CheckAll(ctx, []SubjectLimit{
		{Subject: "phone:" + phone, Limit: p.cfg.PhoneRateLimit},
		{Subject: "tenant:" + tenant.TenantID, Limit: p.cfg.TenantRateLimit},
	})
	if !decision.Allowed {
		reply := tenant.Templates.RateLimited
		if reply == "" {
			reply = fmt.Sprintf("Você enviou muitas mensagens em pouco tempo. Aguarde %d segundos e tente novamente.",
				int(decision.RetryAfter.Seconds())+1)
		}
		p.sendAndRecord(ctx, tenant, phone, reply, models.AttendedByAI)
		return
	}

	assessment := p.scanner.Scan(clean, recentUserMessages)
	if assessment.ShouldBlock() {
		slog.Warn("Inbound message blocked by threat scanner",
			"tenantID", tenant.TenantID,
			"phone", phone,
			"level", assessment.Level,
			"type", assessment.Type,
			"rule", assessment.MatchedRule)

		p.notifier.Publish(ctx, EventThreat, tenant.TenantID, phone, assessment)
		GetWebSocketManager().BroadcastToTenant(BroadcastMessage{
			TenantID: tenant.TenantID,
			Phone:    phone,
			Type:     WSTypeThreatAlert,
			Data:     assessment,
		})

		reply := tenant.Templates.ThreatReply
		if reply == "" {
			reply = "Não consegui processar sua mensagem. Posso te ajudar com algo sobre nossos produtos e serviços?"
		}
		p.sendAndRecord(ctx, tenant, phone, reply, models.AttendedByAI)
		return
	}

	if DetectHumanRequest(clean) {
		p.performHandoff(ctx, tenant, lead, phone, "customer requested a human agent")
		return
	}

	guardDecision := p.guards.Evaluate(GuardContext{
		Tenant:  tenant,
		Lead:    lead,
		Message: clean,
		Now:     time.Now(),
	})

	switch guardDecision.Action {
	case GuardRespond:
		if guardDecision.Topic != "" {
			if _, err := RecordInsistence(ctx, tenant.TenantID, phone, guardDecision.Topic); err != nil {
				slog.Warn("Failed to record insistence", "error", err)
			}
		}
		slog.Info("Guard responded deterministically",
			"tenantID", tenant.TenantID,
			"phone", phone,
			"guard", guardDecision.Guard,
			"reason", guardDecision.Reason)
		p.sendAndRecord(ctx, tenant, phone, guardDecision.Reply, models.AttendedByAI)
		return

	case GuardHandoff:
		if guardDecision.Topic != "" {
			if _, err := RecordInsistence(ctx, tenant.TenantID, phone, guardDecision.Topic); err != nil {
				slog.Warn("Failed to record insistence", "error", err)
			}
		}
		p.performHandoff(ctx, tenant, lead, phone, guardDecision.Reason)
		return
	}

	p.generateReply(ctx, tenant, lead, phone, clean)
}

// generateReply runs the model path: prompt assembly, completion, validation,
// qualification and delivery.
func (p *Pipeline) generateReply(ctx context.Context, tenant *models.Tenant, lead *models.Lead, phone, clean string) {
	history, err := GetChatHistory(ctx, tenant.TenantID, phone, 10)
	if err != nil {
		slog.Warn("Failed to load chat history", "error", err)
	}

	product := MatchProduct(tenant, clean)
	prompt := p.builder.Build(lead, tenant, history, product, clean)

	reply, err := p.model.Complete(ctx, tenant, prompt)
	if err != nil {
		if errors.Is(err, ErrModelExhausted) {
			slog.Error("Model exhausted all attempts, sending fallback",
				"tenantID", tenant.TenantID,
				"phone", phone)
		} else {
			slog.Error("Model call failed", "tenantID", tenant.TenantID, "error", err)
		}
		fallback := tenant.Templates.Fallback
		if fallback == "" {
			fallback = "Desculpe, estou com dificuldade para responder agora. Pode tentar novamente em instantes?"
		}
		p.sendAndRecord(ctx, tenant, phone, fallback, models.AttendedByAI)
		return
	}

	validator := NewResponseValidator(tenant.Templates.UnsafeReply)
	validation := validator.Validate(reply)
	if !validation.Safe {
		failures, err := IncrementValidatorFailures(ctx, tenant.TenantID, phone)
		if err != nil {
			slog.Warn("Failed to record validator failure", "error", err)
		}
		if failures >= p.cfg.ValidatorTolerance {
			p.performHandoff(ctx, tenant, lead, phone, "repeated unsafe model replies")
			return
		}
		reply = validation.Sanitized
	}

	if err := IncrementAITurn(ctx, tenant.TenantID, phone); err != nil {
		slog.Warn("Failed to bump AI turn counter", "error", err)
	}

	tier, confidence := ScoreQualification(lead, clean)
	if err := UpdateQualification(ctx, tenant.TenantID, phone, tier, confidence); err != nil {
		slog.Warn("Failed to update qualification", "error", err)
	} else if tier == models.QualificationHot && lead.Qualification != models.QualificationHot {
		p.notifier.Publish(ctx, EventHotLead, tenant.TenantID, phone, map[string]interface{}{
			"tier":       tier,
			"confidence": confidence,
		})
		GetWebSocketManager().BroadcastToTenant(BroadcastMessage{
			TenantID: tenant.TenantID,
			Phone:    phone,
			Type:     WSTypeHotLead,
			Data:     map[string]interface{}{"tier": tier, "confidence": confidence},
		})
	}

	p.sendAndRecord(ctx, tenant, phone, reply, models.AttendedByAI)
}

// performHandoff transfers the lead, notifies the tenant's channels and tells
// the customer a human is taking over.
func (p *Pipeline) performHandoff(ctx context.Context, tenant *models.Tenant, lead *models.Lead, phone, reason string) {
	result, err := HandoffToSeller(ctx, tenant.TenantID, phone, reason)
	if err != nil {
		if errors.Is(err, ErrAlreadyHandedOff) {
			slog.Info("Handoff skipped, lead already under human attendance",
				"tenantID", tenant.TenantID,
				"phone", phone)
			return
		}
		slog.Error("Handoff failed", "tenantID", tenant.TenantID, "phone", phone, "error", err)
		return
	}

	event := EventHandoff
	attendedBy := models.AttendedBySeller
	data := map[string]interface{}{
		"reason":       result.Reason,
		"lead_name":    lead.Name,
		"handoff_mode": tenant.HandoffMode,
	}
	if result.ManagerQueue {
		event = EventManagerQueue
		attendedBy = models.AttendedByManager
	} else {
		data["seller_id"] = result.Seller.SellerID
		data["seller_name"] = result.Seller.Name
		if tenant.HandoffMode == models.HandoffModeLegacyWhatsApp {
			data["seller_phone"] = result.Seller.Phone
		}
	}

	p.notifier.Publish(ctx, event, tenant.TenantID, phone, data)
	GetWebSocketManager().BroadcastToTenant(BroadcastMessage{
		TenantID: tenant.TenantID,
		Phone:    phone,
		Type:     WSTypeHandoff,
		Data:     data,
	})

	reply := tenant.Templates.HandoffReply
	if reply == "" {
		reply = "Vou te conectar com um de nossos atendentes para continuar o atendimento. Um momento, por favor!"
	}
	p.sendAndRecord(ctx, tenant, phone, reply, attendedBy)
}

// sendAndRecord delivers a reply and appends it to the ledger. The message is
// persisted even when the send fails, with the failure reflected in the
// delivery status. attendedBy is the lead's attendance at record time, which
// differs from ai for the confirmation sent right after a handoff.
func (p *Pipeline) sendAndRecord(ctx context.Context, tenant *models.Tenant, phone, content, attendedBy string) {
	providerID, sendErr := SendWhatsAppReply(ctx, tenant.WhatsAppPhoneID, tenant.WhatsAppToken, phone, content)

	status := models.DeliverySent
	if sendErr != nil {
		status = models.DeliveryFailed
		slog.Error("Failed to deliver reply",
			"tenantID", tenant.TenantID,
			"phone", phone,
			"error", sendErr)
	}

	if err := SaveMessage(ctx, &models.Message{
		TenantID:          tenant.TenantID,
		Phone:             phone,
		Role:              models.RoleAssistant,
		AttendedBy:        attendedBy,
		Content:           content,
		ProviderMessageID: providerID,
		DeliveryStatus:    status,
	}); err != nil {
		slog.Error("Failed to persist outbound message", "error", err)
	}

	GetWebSocketManager().BroadcastToTenant(BroadcastMessage{
		TenantID: tenant.TenantID,
		Phone:    phone,
		Type:     WSTypeNewMessage,
		Data:     map[string]string{"role": models.RoleAssistant, "content": content},
	})
}
