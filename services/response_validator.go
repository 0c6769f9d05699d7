package services

import (
	"log/slog"
	"regexp"
)

// ValidationResult is the outcome of the post-generation safety check.
type ValidationResult struct {
	Safe        bool
	Sanitized   string
	MatchedRule string
}

// hallucinationRule is one declarative pattern the generated reply must not
// match. A match discards the whole reply.
type hallucinationRule struct {
	Name    string
	Pattern *regexp.Regexp
}

var hallucinationRules = []hallucinationRule{
	// Currency amounts: R$ 150, R$1.200,00
	{
		Name:    "currency_amount",
		Pattern: regexp.MustCompile(`(?i)R\$\s*\d+(?:[.,]\d+)*`),
	},
	// Price wording co-occurring with digits: "custa 200", "preço é 89"
	{
		Name:    "price_with_digits",
		Pattern: regexp.MustCompile(`(?i)(custa|custam|preço|preco|valor|sai por|por apenas|price|costs?)\D{0,12}\d`),
	},
	// Delivery-day promises: "entrega em 5 dias", "chega em 2 dias úteis"
	{
		Name:    "delivery_days",
		Pattern: regexp.MustCompile(`(?i)(entrega|chega|prazo)\D{0,15}\d+\s*dias?`),
	},
	// Availability counts: "temos 3 unidades", "restam 2 em estoque"
	{
		Name:    "unit_availability",
		Pattern: regexp.MustCompile(`(?i)(temos|restam|há|ha|disponíveis?|disponiveis?)\s*\d+\s*(unidades?|itens?|peças?|pecas?|em estoque)`),
	},
}

// ResponseValidator is the anti-hallucination filter that runs after
// generation and before persistence or delivery. A reply that fails here
// never reaches the customer.
type ResponseValidator struct {
	fallback string
}

// NewResponseValidator creates a validator with the given fallback reply,
// which must offer human escalation instead of the discarded content.
func NewResponseValidator(fallback string) *ResponseValidator {
	if fallback == "" {
		fallback = "Sobre valores, disponibilidade e prazos, vou te conectar com um de nossos consultores para te passar as informações exatas. Um momento, por favor!"
	}
	return &ResponseValidator{fallback: fallback}
}

// Validate checks a generated reply. On any hallucination-pattern match the
// reply is discarded and replaced with the fallback.
func (v *ResponseValidator) Validate(responseText string) ValidationResult {
	for _, rule := range hallucinationRules {
		if rule.Pattern.MatchString(responseText) {
			slog.Warn("Generated reply discarded by response validator",
				"rule", rule.Name)
			return ValidationResult{
				Safe:        false,
				Sanitized:   v.fallback,
				MatchedRule: rule.Name,
			}
		}
	}

	return ValidationResult{Safe: true, Sanitized: responseText}
}
