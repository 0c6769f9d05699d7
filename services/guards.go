package services

import (
	"strings"
	"time"

	"whatsapp-bot/models"
)

// Guard actions.
const (
	GuardPass    = "pass"
	GuardRespond = "respond" // reply deterministically and stop
	GuardHandoff = "handoff" // transfer the lead to a human
)

// GuardDecision is the transient result of one guard. It is never persisted;
// only its terminal effect is.
type GuardDecision struct {
	Action string
	Guard  string
	Reply  string
	Reason string
	Topic  string // disallowed topic, for insistence bookkeeping
}

// GuardContext is the immutable input every guard sees. Guards are pure
// functions over it, so each can be unit-tested with a synthetic context.
type GuardContext struct {
	Tenant  *models.Tenant
	Lead    *models.Lead
	Message string
	Now     time.Time
}

// Guard is one ordered policy check.
type Guard struct {
	Name  string
	Check func(GuardContext) GuardDecision
}

// GuardChain evaluates guards strictly left to right and stops at the first
// non-pass decision. The order is a correctness property: each guard assumes
// every prior guard already passed.
type GuardChain struct {
	guards []Guard
}

// NewGuardChain builds the standard chain: business hours → FAQ → scope →
// price disclosure → insistence → message-volume cap.
func NewGuardChain() *GuardChain {
	return &GuardChain{guards: []Guard{
		{Name: "business_hours", Check: checkBusinessHours},
		{Name: "faq", Check: checkFAQ},
		{Name: "scope", Check: checkScope},
		{Name: "price_disclosure", Check: checkPriceDisclosure},
		{Name: "insistence", Check: checkInsistence},
		{Name: "volume_cap", Check: checkVolumeCap},
	}}
}

// Evaluate runs the chain and returns the first non-pass decision, or a pass.
func (c *GuardChain) Evaluate(gctx GuardContext) GuardDecision {
	for _, g := range c.guards {
		decision := g.Check(gctx)
		if decision.Action != GuardPass {
			decision.Guard = g.Name
			return decision
		}
	}
	return GuardDecision{Action: GuardPass}
}

func checkBusinessHours(gctx GuardContext) GuardDecision {
	if IsWithinBusinessHours(gctx.Tenant, gctx.Now) {
		return GuardDecision{Action: GuardPass}
	}

	reply := gctx.Tenant.Templates.OutOfHours
	if reply == "" {
		reply = "Olá! Nosso horário de atendimento já encerrou. Retornaremos sua mensagem no próximo horário comercial."
	}

	return GuardDecision{
		Action: GuardRespond,
		Reply:  reply,
		Reason: "outside business hours",
	}
}

func checkFAQ(gctx GuardContext) GuardDecision {
	if answer := MatchFAQ(gctx.Tenant, gctx.Message); answer != "" {
		return GuardDecision{
			Action: GuardRespond,
			Reply:  answer,
			Reason: "canned FAQ match",
		}
	}
	return GuardDecision{Action: GuardPass}
}

// checkScope classifies whether the message concerns the tenant's declared
// business domain. Greetings and short messages pass through to the model; a
// substantive message matching no domain keyword is deflected. A pricing
// question about an off-domain subject lands here, not in the price guard.
func checkScope(gctx GuardContext) GuardDecision {
	keywords := gctx.Tenant.Guards.ScopeKeywords
	if len(keywords) == 0 {
		return GuardDecision{Action: GuardPass}
	}

	lower := strings.ToLower(gctx.Message)

	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return GuardDecision{Action: GuardPass}
		}
	}

	if isSmallTalk(lower) {
		return GuardDecision{Action: GuardPass}
	}

	// A bare pricing question with no subject still concerns the tenant's
	// own products; let the price guard judge it.
	if hasPriceIntent(lower) && len(strings.Fields(lower)) <= 3 {
		return GuardDecision{Action: GuardPass}
	}

	// Very short messages carry too little signal to call off-domain
	if len(strings.Fields(lower)) < 3 {
		return GuardDecision{Action: GuardPass}
	}

	// Recurring off-topic insistence escalates instead of deflecting again.
	// The chain stops at the first non-pass decision, so the escalation has
	// to happen here rather than in the insistence guard downstream.
	tolerance := gctx.Tenant.Guards.InsistenceTolerance
	if tolerance <= 0 {
		tolerance = 3
	}
	if gctx.Lead != nil && gctx.Lead.LastBlockedTopic == "off_topic" && gctx.Lead.InsistenceCount >= tolerance {
		return GuardDecision{
			Action: GuardHandoff,
			Reason: "repeated insistence on disallowed topic",
			Topic:  "off_topic",
		}
	}

	reply := gctx.Tenant.Templates.OutOfScope
	if reply == "" {
		reply = "Posso te ajudar com assuntos relacionados aos nossos produtos e serviços. Sobre isso, como posso ajudar?"
	}

	return GuardDecision{
		Action: GuardRespond,
		Reply:  reply,
		Reason: "message outside tenant business domain",
		Topic:  "off_topic",
	}
}

// checkPriceDisclosure detects intent to extract price, availability or
// delivery specifics the tenant forbids the assistant from stating. It
// suggests a handoff rather than refusing the customer.
func checkPriceDisclosure(gctx GuardContext) GuardDecision {
	if !gctx.Tenant.Guards.ForbidPriceDisclosure {
		return GuardDecision{Action: GuardPass}
	}

	if !hasPriceIntent(strings.ToLower(gctx.Message)) {
		return GuardDecision{Action: GuardPass}
	}

	return GuardDecision{
		Action: GuardHandoff,
		Reason: "price disclosure request",
		Topic:  "price",
	}
}

// checkInsistence forces a handoff when the customer keeps returning to a
// topic earlier guards already deflected.
func checkInsistence(gctx GuardContext) GuardDecision {
	if gctx.Lead == nil || gctx.Lead.LastBlockedTopic == "" {
		return GuardDecision{Action: GuardPass}
	}

	tolerance := gctx.Tenant.Guards.InsistenceTolerance
	if tolerance <= 0 {
		tolerance = 3
	}

	if gctx.Lead.InsistenceCount >= tolerance {
		return GuardDecision{
			Action: GuardHandoff,
			Reason: "repeated insistence on disallowed topic",
			Topic:  gctx.Lead.LastBlockedTopic,
		}
	}

	return GuardDecision{Action: GuardPass}
}

// checkVolumeCap forces a handoff when the conversation has consumed the
// automated-turn budget without resolution.
func checkVolumeCap(gctx GuardContext) GuardDecision {
	maxTurns := gctx.Tenant.Guards.MaxAITurns
	if maxTurns <= 0 || gctx.Lead == nil {
		return GuardDecision{Action: GuardPass}
	}

	if gctx.Lead.AITurnCount >= maxTurns {
		return GuardDecision{
			Action: GuardHandoff,
			Reason: "automated turn cap reached",
		}
	}

	return GuardDecision{Action: GuardPass}
}

var priceIntentTerms = []string{
	"preço", "preco", "quanto custa", "custa", "valor", "quanto é", "quanto e",
	"quanto sai", "desconto", "estoque", "disponível", "disponivel",
	"disponibilidade", "prazo de entrega", "quando chega",
	"price", "how much", "cost", "in stock", "availability", "delivery time",
}

func hasPriceIntent(lower string) bool {
	for _, term := range priceIntentTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

var smallTalkTerms = []string{
	"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "tudo bem",
	"obrigado", "obrigada", "valeu", "ok", "certo", "sim", "não", "nao",
	"hello", "hi", "hey", "thanks", "thank you",
}

func isSmallTalk(lower string) bool {
	trimmed := strings.TrimSpace(lower)
	for _, term := range smallTalkTerms {
		if trimmed == term || strings.HasPrefix(trimmed, term+" ") || strings.HasPrefix(trimmed, term+",") || strings.HasPrefix(trimmed, term+"!") {
			return true
		}
	}
	return false
}

// humanRequestTerms flag an explicit request to talk to a person. Greetings
// are never agent requests.
var humanRequestTerms = []string{
	"falar com atendente", "falar com humano", "falar com uma pessoa",
	"falar com alguém", "falar com alguem", "atendente", "atendimento humano",
	"quero uma pessoa", "pessoa de verdade", "não quero falar com robô",
	"nao quero falar com robo", "chega de robô", "chega de robo",
	"real person", "human agent", "speak to someone", "talk to a person",
	"representative", "not a bot", "stop bot", "i want a human",
}

// DetectHumanRequest reports whether the customer explicitly asked for a
// human agent.
func DetectHumanRequest(message string) bool {
	lower := strings.ToLower(message)
	for _, term := range humanRequestTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
