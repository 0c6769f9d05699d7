package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"whatsapp-bot/models"
)

func TestScoreQualificationHotOnBuyingIntent(t *testing.T) {
	tier, confidence := ScoreQualification(&models.Lead{}, "quero comprar o sofá, como pago?")

	assert.Equal(t, models.QualificationHot, tier)
	assert.Greater(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestScoreQualificationWarmOnInterest(t *testing.T) {
	tier, _ := ScoreQualification(&models.Lead{}, "me interessa, pode mandar mais detalhes?")

	assert.Equal(t, models.QualificationWarm, tier)
}

func TestScoreQualificationColdOnSmallTalk(t *testing.T) {
	tier, confidence := ScoreQualification(&models.Lead{}, "bom dia!")

	assert.Equal(t, models.QualificationCold, tier)
	assert.Equal(t, 0.0, confidence)
}

func TestScoreQualificationEngagementBoost(t *testing.T) {
	shortLead := &models.Lead{MessageCount: 1}
	longLead := &models.Lead{MessageCount: 10}

	// Price intent alone is cold on a fresh conversation
	tier, _ := ScoreQualification(shortLead, "qual o valor?")
	assert.Equal(t, models.QualificationCold, tier)

	// The same question deep into a conversation reads warm
	tier, _ = ScoreQualification(longLead, "qual o valor?")
	assert.Equal(t, models.QualificationWarm, tier)
}

func TestScoreQualificationNilLead(t *testing.T) {
	tier, _ := ScoreQualification(nil, "quero fechar o pedido hoje")

	assert.Equal(t, models.QualificationHot, tier)
}
