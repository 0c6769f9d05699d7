package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"whatsapp-bot/models"
)

// SaveOrUpdateLead upserts the lead for an inbound message and bumps its
// counters. New leads start active, attended by the AI, qualified cold.
func SaveOrUpdateLead(ctx context.Context, tenantID, phone, name, messageText string) (*models.Lead, error) {
	collection := database.Collection("leads")
	now := time.Now()

	filter := bson.M{"tenant_id": tenantID, "phone": phone}
	update := bson.M{
		"$set": bson.M{
			"last_message":    messageText,
			"last_message_at": now,
			"updated_at":      now,
		},
		"$inc": bson.M{"message_count": 1},
		"$setOnInsert": bson.M{
			"tenant_id":                tenantID,
			"phone":                    phone,
			"status":                   models.LeadStatusActive,
			"attended_by":              models.AttendedByAI,
			"qualification":            models.QualificationCold,
			"qualification_confidence": 0.0,
			"first_message_at":         now,
			"created_at":               now,
		},
	}

	// Only set the name when we actually have one
	if name != "" {
		update["$set"].(bson.M)["name"] = name
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var lead models.Lead
	if err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&lead); err != nil {
		return nil, fmt.Errorf("failed to upsert lead: %w", err)
	}

	return &lead, nil
}

// GetLead fetches a lead by tenant and phone. Returns nil when not found.
func GetLead(ctx context.Context, tenantID, phone string) (*models.Lead, error) {
	collection := database.Collection("leads")

	var lead models.Lead
	err := collection.FindOne(ctx, bson.M{"tenant_id": tenantID, "phone": phone}).Decode(&lead)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &lead, nil
}

// IncrementAITurn bumps the automated-turn counter for the episode.
func IncrementAITurn(ctx context.Context, tenantID, phone string) error {
	collection := database.Collection("leads")

	_, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "phone": phone},
		bson.M{
			"$inc": bson.M{"ai_turn_count": 1},
			"$set": bson.M{"updated_at": time.Now()},
		})
	return err
}

// IncrementValidatorFailures records one discarded unsafe reply and returns
// the updated count, so the caller can decide whether to hand off.
func IncrementValidatorFailures(ctx context.Context, tenantID, phone string) (int, error) {
	collection := database.Collection("leads")

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var lead models.Lead
	err := collection.FindOneAndUpdate(ctx,
		bson.M{"tenant_id": tenantID, "phone": phone},
		bson.M{
			"$inc": bson.M{"validator_failures": 1},
			"$set": bson.M{"updated_at": time.Now()},
		}, opts).Decode(&lead)
	if err != nil {
		return 0, err
	}

	return lead.ValidatorFailures, nil
}

// RecordInsistence counts a disallowed-topic recurrence. The counter resets
// when the topic changes, so only consecutive insistence on the same subject
// accumulates toward the tolerance. Both paths are single conditional
// updates, so concurrent messages never lose an increment or clobber each
// other's topic.
func RecordInsistence(ctx context.Context, tenantID, phone, topic string) (int, error) {
	collection := database.Collection("leads")
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 0; attempt < 2; attempt++ {
		var lead models.Lead

		// Same topic as last time: bump the counter in place.
		err := collection.FindOneAndUpdate(ctx,
			bson.M{"tenant_id": tenantID, "phone": phone, "last_blocked_topic": topic},
			bson.M{
				"$inc": bson.M{"insistence_count": 1},
				"$set": bson.M{"updated_at": time.Now()},
			}, opts).Decode(&lead)
		if err == nil {
			return lead.InsistenceCount, nil
		}
		if err != mongo.ErrNoDocuments {
			return 0, err
		}

		// Topic changed or first offense: restart the counter. The filter
		// matches only while the stored topic still differs, so it cannot
		// overwrite a concurrent bump on the same topic.
		err = collection.FindOneAndUpdate(ctx,
			bson.M{"tenant_id": tenantID, "phone": phone, "last_blocked_topic": bson.M{"$ne": topic}},
			bson.M{"$set": bson.M{
				"insistence_count":   1,
				"last_blocked_topic": topic,
				"updated_at":         time.Now(),
			}}, opts).Decode(&lead)
		if err == nil {
			return 1, nil
		}
		if err != mongo.ErrNoDocuments {
			return 0, err
		}

		// Both filters missed: another writer set the topic between the two
		// updates. Retry against the fresh state.
	}

	return 0, fmt.Errorf("lead not found: %s/%s", tenantID, phone)
}

// UpdateQualification raises the lead's purchase-readiness tier. The update
// filter admits only lower tiers, so the tier moves monotonically up no
// matter how concurrent writers interleave; a hot lead never silently cools
// down. Cold is the floor and never needs a write.
func UpdateQualification(ctx context.Context, tenantID, phone, tier string, confidence float64) error {
	lower := tiersBelow(tier)
	if len(lower) == 0 {
		return nil
	}

	collection := database.Collection("leads")

	result, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "phone": phone, "qualification": bson.M{"$in": lower}},
		bson.M{"$set": bson.M{
			"qualification":            tier,
			"qualification_confidence": confidence,
			"updated_at":               time.Now(),
		}})
	if err != nil {
		return err
	}

	if result.MatchedCount > 0 {
		slog.Info("Lead qualification updated",
			"tenantID", tenantID,
			"phone", phone,
			"tier", tier,
			"confidence", confidence)
	}

	return nil
}

// tiersBelow returns the tiers an upgrade to tier may overwrite.
func tiersBelow(tier string) []string {
	switch tier {
	case models.QualificationHot:
		return []string{models.QualificationCold, models.QualificationWarm}
	case models.QualificationWarm:
		return []string{models.QualificationCold}
	default:
		return nil
	}
}

// GetLeads returns a page of a tenant's leads for the dashboard, most
// recently active first. status and attendedBy filter when non-empty.
func GetLeads(ctx context.Context, tenantID, status, attendedBy string, page, limit int) ([]models.Lead, int64, error) {
	collection := database.Collection("leads")

	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	skip := (page - 1) * limit

	filter := bson.M{"tenant_id": tenantID}
	if status != "" {
		filter["status"] = status
	}
	if attendedBy != "" {
		filter["attended_by"] = attendedBy
	}

	totalCount, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		slog.Error("Failed to count leads", "error", err)
		totalCount = 0
	}

	findOptions := options.Find().
		SetSort(bson.M{"last_message_at": -1}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var leads []models.Lead
	if err := cursor.All(ctx, &leads); err != nil {
		return nil, 0, err
	}

	return leads, totalCount, nil
}

// ArchiveLead soft-deletes a lead. Messages keep referencing it; nothing is
// hard-deleted.
func ArchiveLead(ctx context.Context, tenantID, phone string) error {
	collection := database.Collection("leads")
	now := time.Now()

	result, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "phone": phone, "status": models.LeadStatusActive},
		bson.M{"$set": bson.M{
			"status":      models.LeadStatusArchived,
			"archived_at": now,
			"updated_at":  now,
		}})
	if err != nil {
		return fmt.Errorf("failed to archive lead: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("lead not found or already archived: %s/%s", tenantID, phone)
	}

	return nil
}
