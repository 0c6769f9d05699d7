package webhooks

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"whatsapp-bot/config"
	"whatsapp-bot/services"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, pipeline *services.Pipeline) {
	webhook := app.Group("/webhook")

	// Webhook verification endpoint
	webhook.Get("/", verifyWebhook(cfg))

	// Webhook event handler
	webhook.Post("/", handleWebhookEvent(pipeline))
}

// verifyWebhook handles WhatsApp webhook verification
func verifyWebhook(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mode := c.Query("hub.mode")
		token := c.Query("hub.verify_token")
		challenge := c.Query("hub.challenge")

		if mode == "subscribe" && token == cfg.VerifyToken {
			slog.Info("Webhook verified successfully")
			return c.SendString(challenge)
		}

		slog.Warn("Webhook verification failed", "mode", mode)
		return c.SendStatus(fiber.StatusForbidden)
	}
}

// handleWebhookEvent acks immediately and processes events asynchronously.
// The provider retries unacked deliveries, so anything slower than a parse
// happens off the request path.
func handleWebhookEvent(pipeline *services.Pipeline) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body WebhookEvent
		if err := c.BodyParser(&body); err != nil {
			slog.Error("Failed to parse webhook body", "error", err)
			return c.SendStatus(fiber.StatusBadRequest)
		}

		if body.Object != "whatsapp_business_account" {
			return c.SendStatus(fiber.StatusNotFound)
		}

		// Process webhook asynchronously
		go processWebhookEvent(pipeline, body)

		// Return immediately to the provider
		return c.SendString("EVENT_RECEIVED")
	}
}

// processWebhookEvent handles the webhook processing in a separate goroutine
func processWebhookEvent(pipeline *services.Pipeline, body WebhookEvent) {
	ctx := context.Background()

	for _, entry := range body.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}

			phoneNumberID := change.Value.Metadata.PhoneNumberID

			for _, msg := range change.Value.Messages {
				inbound, ok := extractInbound(change.Value, msg, phoneNumberID)
				if !ok {
					slog.Info("Skipping unsupported message type",
						"type", msg.Type,
						"providerMessageID", msg.ID)
					continue
				}
				pipeline.ProcessInbound(ctx, inbound)
			}

			for _, status := range change.Value.Statuses {
				if err := services.UpdateDeliveryStatus(ctx, status.ID, status.Status); err != nil {
					slog.Warn("Failed to update delivery status",
						"providerMessageID", status.ID,
						"error", err)
				}
			}
		}
	}
}

// extractInbound maps a provider message to the pipeline's input. Only text
// messages carry content the pipeline can process.
func extractInbound(value Value, msg Message, phoneNumberID string) (services.InboundMessage, bool) {
	if msg.Type != "text" || msg.Text == nil {
		return services.InboundMessage{}, false
	}

	name := ""
	for _, contact := range value.Contacts {
		if contact.WaID == msg.From {
			name = contact.Profile.Name
			break
		}
	}

	timestamp := time.Now()
	if unix, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		timestamp = time.Unix(unix, 0)
	}

	return services.InboundMessage{
		PhoneNumberID:     phoneNumberID,
		From:              msg.From,
		Name:              name,
		Text:              msg.Text.Body,
		ProviderMessageID: msg.ID,
		Timestamp:         timestamp,
	}, true
}
