package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"whatsapp-bot/models"
)

// SaveMessage appends a message to the lead's ledger.
func SaveMessage(ctx context.Context, message *models.Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	collection := database.Collection("messages")
	_, err := collection.InsertOne(ctx, message)
	return err
}

// MarkEventProcessed claims an inbound provider message id. It returns false
// when the id was already claimed, which means a duplicate webhook delivery
// that must not produce a second reply.
func MarkEventProcessed(ctx context.Context, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		// No correlation id to dedup on; process it.
		return true, nil
	}

	collection := database.Collection("processed_events")

	_, err := collection.InsertOne(ctx, models.ProcessedEvent{
		ProviderMessageID: providerMessageID,
		ProcessedAt:       time.Now(),
		TTL:               time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			slog.Info("Duplicate inbound event ignored", "providerMessageID", providerMessageID)
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// UpdateDeliveryStatus records the outbound channel's verdict for a message.
func UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error {
	collection := database.Collection("messages")

	_, err := collection.UpdateOne(ctx,
		bson.M{"provider_message_id": providerMessageID},
		bson.M{"$set": bson.M{"delivery_status": status}})
	return err
}

// ChatHistory represents a chat history entry
type ChatHistory struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// GetChatHistory fetches the most recent messages of a lead's conversation,
// oldest first.
func GetChatHistory(ctx context.Context, tenantID, phone string, limit int) ([]ChatHistory, error) {
	collection := database.Collection("messages")

	if limit <= 0 {
		limit = 10
	}

	filter := bson.M{"tenant_id": tenantID, "phone": phone}
	findOptions := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	// Reverse into chronological order for conversation context
	history := make([]ChatHistory, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		role := msg.Role
		if role == models.RoleHumanAgent {
			role = models.RoleAssistant
		}
		history = append(history, ChatHistory{
			Role:      role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}

	return history, nil
}

// GetRecentUserMessages returns the content of the lead's latest user turns
// within the given lookback, newest first. Used by the repetition-spam check.
func GetRecentUserMessages(ctx context.Context, tenantID, phone string, lookback int) ([]string, error) {
	collection := database.Collection("messages")

	if lookback <= 0 {
		lookback = 6
	}

	filter := bson.M{"tenant_id": tenantID, "phone": phone}
	findOptions := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetLimit(int64(lookback))

	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	var contents []string
	for _, msg := range messages {
		if msg.Role == models.RoleUser {
			contents = append(contents, msg.Content)
		}
	}

	return contents, nil
}

// GetLeadMessages returns a page of a lead's ledger for the dashboard,
// newest first, with the total count.
func GetLeadMessages(ctx context.Context, tenantID, phone string, page, limit int) ([]models.Message, int64, error) {
	collection := database.Collection("messages")

	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	skip := (page - 1) * limit

	filter := bson.M{"tenant_id": tenantID, "phone": phone}

	totalCount, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		slog.Error("Failed to count messages", "error", err)
		totalCount = 0
	}

	findOptions := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, 0, err
	}

	return messages, totalCount, nil
}
