package webhooks

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-bot/config"
)

func TestVerifyWebhookAcceptsValidToken(t *testing.T) {
	cfg := &config.Config{VerifyToken: "secret-token"}

	app := fiber.New()
	app.Get("/webhook", verifyWebhook(cfg))

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(body))
}

func TestVerifyWebhookRejectsWrongToken(t *testing.T) {
	cfg := &config.Config{VerifyToken: "secret-token"}

	app := fiber.New()
	app.Get("/webhook", verifyWebhook(cfg))

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestVerifyWebhookRejectsWrongMode(t *testing.T) {
	cfg := &config.Config{VerifyToken: "secret-token"}

	app := fiber.New()
	app.Get("/webhook", verifyWebhook(cfg))

	req := httptest.NewRequest("GET", "/webhook?hub.mode=unsubscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestExtractInboundTextMessage(t *testing.T) {
	value := Value{
		Contacts: []Contact{
			{WaID: "5511999990000", Profile: Profile{Name: "João Silva"}},
		},
	}
	msg := Message{
		From:      "5511999990000",
		ID:        "wamid.ABC123",
		Timestamp: "1756700000",
		Type:      "text",
		Text:      &Text{Body: "quero saber sobre o sofá"},
	}

	inbound, ok := extractInbound(value, msg, "phone-id-1")

	require.True(t, ok)
	assert.Equal(t, "phone-id-1", inbound.PhoneNumberID)
	assert.Equal(t, "5511999990000", inbound.From)
	assert.Equal(t, "João Silva", inbound.Name)
	assert.Equal(t, "quero saber sobre o sofá", inbound.Text)
	assert.Equal(t, "wamid.ABC123", inbound.ProviderMessageID)
	assert.Equal(t, time.Unix(1756700000, 0), inbound.Timestamp)
}

func TestExtractInboundSkipsNonText(t *testing.T) {
	msg := Message{
		From: "5511999990000",
		ID:   "wamid.IMG",
		Type: "image",
		Image: &Media{
			ID:       "media-1",
			MimeType: "image/jpeg",
		},
	}

	_, ok := extractInbound(Value{}, msg, "phone-id-1")

	assert.False(t, ok)
}

func TestExtractInboundNoContactMatch(t *testing.T) {
	value := Value{
		Contacts: []Contact{
			{WaID: "other", Profile: Profile{Name: "Alguém"}},
		},
	}
	msg := Message{
		From:      "5511999990000",
		ID:        "wamid.X",
		Timestamp: "not-a-number",
		Type:      "text",
		Text:      &Text{Body: "oi"},
	}

	inbound, ok := extractInbound(value, msg, "phone-id-1")

	require.True(t, ok)
	assert.Empty(t, inbound.Name)
	// Unparseable provider timestamp falls back to now
	assert.WithinDuration(t, time.Now(), inbound.Timestamp, time.Minute)
}
