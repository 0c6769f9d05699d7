package services

import (
	"strings"

	"whatsapp-bot/models"
)

// Qualification signal tables. Scoring is additive over keyword hits plus
// engagement, then mapped to a tier.
var hotSignalTerms = []string{
	"quero comprar", "quero fechar", "vou levar", "pode emitir", "fechar pedido",
	"como pago", "forma de pagamento", "pix", "boleto", "cartão", "cartao",
	"fechar negócio", "fechar negocio", "quando posso buscar",
	"i want to buy", "ready to buy", "place the order", "payment",
}

var warmSignalTerms = []string{
	"me interessa", "interessado", "interessada", "gostei", "quero saber mais",
	"mais detalhes", "me manda", "catálogo", "catalogo", "orçamento", "orcamento",
	"tem como", "vocês fazem", "voces fazem",
	"interested", "more details", "quote",
}

// ScoreQualification infers a lead tier from the latest message and the
// conversation so far. The tier only ever moves up; downgrades are a human
// call.
func ScoreQualification(lead *models.Lead, message string) (string, float64) {
	lower := strings.ToLower(message)

	score := 0.0
	for _, term := range hotSignalTerms {
		if strings.Contains(lower, term) {
			score += 3
			break
		}
	}
	for _, term := range warmSignalTerms {
		if strings.Contains(lower, term) {
			score += 1.5
			break
		}
	}
	if hasPriceIntent(lower) {
		score += 1
	}
	if lead != nil && lead.MessageCount >= 5 {
		score += 0.5
	}

	switch {
	case score >= 3:
		return models.QualificationHot, clampConfidence(score / 4)
	case score >= 1.5:
		return models.QualificationWarm, clampConfidence(score / 3)
	default:
		return models.QualificationCold, 0
	}
}

func clampConfidence(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
