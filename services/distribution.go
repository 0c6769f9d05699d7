package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"whatsapp-bot/models"
)

// Distribution errors.
var (
	ErrNoActiveSeller   = errors.New("no active seller for tenant")
	ErrAlreadyHandedOff = errors.New("lead already handed off")
)

// HandoffResult describes where a handed-off lead ended up.
type HandoffResult struct {
	Seller       *models.Seller // nil when queued for the manager
	ManagerQueue bool
	Reason       string
}

// PickSeller selects the fairest seller from a candidate slice: lowest open
// lead count, ties broken by longest time since last assignment. Exposed for
// the in-memory selection path and tests; the persistent path expresses the
// same policy as a sorted atomic update.
func PickSeller(sellers []models.Seller) *models.Seller {
	var best *models.Seller
	for i := range sellers {
		s := &sellers[i]
		if !s.IsActive {
			continue
		}
		if best == nil ||
			s.CurrentLeadsCount < best.CurrentLeadsCount ||
			(s.CurrentLeadsCount == best.CurrentLeadsCount && s.LastAssignedAt.Before(best.LastAssignedAt)) {
			best = s
		}
	}
	return best
}

// claimSeller atomically picks the least-loaded active seller and bumps its
// counter in one step, so two concurrent handoffs cannot both land on the
// same "least loaded" seller.
func claimSeller(ctx context.Context, tenantID string) (*models.Seller, error) {
	collection := database.Collection("sellers")
	now := time.Now()

	filter := bson.M{"tenant_id": tenantID, "is_active": true}
	update := bson.M{
		"$inc": bson.M{"current_leads_count": 1},
		"$set": bson.M{"last_assigned_at": now, "updated_at": now},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "current_leads_count", Value: 1}, {Key: "last_assigned_at", Value: 1}}).
		SetReturnDocument(options.After)

	var seller models.Seller
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&seller)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNoActiveSeller
		}
		return nil, fmt.Errorf("seller claim failed: %w", err)
	}

	return &seller, nil
}

// releaseSellerClaim undoes a claim that could not be committed to the lead.
// The count never goes negative.
func releaseSellerClaim(ctx context.Context, tenantID, sellerID string) {
	collection := database.Collection("sellers")

	_, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "seller_id": sellerID, "current_leads_count": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"current_leads_count": -1},
			"$set": bson.M{"updated_at": time.Now()},
		})
	if err != nil {
		slog.Error("Failed to release seller claim", "sellerID", sellerID, "error", err)
	}
}

// HandoffToSeller transfers an AI-attended lead to a human seller. The lead
// update is conditional on attended_by=ai, which serializes concurrent
// handoffs for the same lead: the loser rolls its seller claim back and
// retries once against fresh counts before degrading to the manager queue.
func HandoffToSeller(ctx context.Context, tenantID, phone, reason string) (*HandoffResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		seller, err := claimSeller(ctx, tenantID)
		if err != nil {
			if errors.Is(err, ErrNoActiveSeller) {
				return queueForManager(ctx, tenantID, phone, reason)
			}
			return nil, err
		}

		committed, err := commitLeadHandoff(ctx, tenantID, phone, models.AttendedBySeller, seller.SellerID)
		if err != nil {
			releaseSellerClaim(ctx, tenantID, seller.SellerID)
			return nil, err
		}
		if committed {
			slog.Info("Lead handed off to seller",
				"tenantID", tenantID,
				"phone", phone,
				"sellerID", seller.SellerID,
				"sellerLeads", seller.CurrentLeadsCount,
				"reason", reason)
			return &HandoffResult{Seller: seller, Reason: reason}, nil
		}

		// Lost the race: another handoff already owns this lead
		releaseSellerClaim(ctx, tenantID, seller.SellerID)

		lead, err := GetLead(ctx, tenantID, phone)
		if err != nil {
			return nil, err
		}
		if lead != nil && lead.AttendedBy != models.AttendedByAI {
			return nil, ErrAlreadyHandedOff
		}
		// Lead flipped back between checks; retry once with fresh counts
	}

	return queueForManager(ctx, tenantID, phone, reason)
}

// commitLeadHandoff flips attended_by away from ai. Returns false when the
// lead was not in the ai state, which means a concurrent handoff won.
func commitLeadHandoff(ctx context.Context, tenantID, phone, attendedBy, sellerID string) (bool, error) {
	collection := database.Collection("leads")
	now := time.Now()

	set := bson.M{
		"attended_by":         attendedBy,
		"seller_took_over_at": now,
		"updated_at":          now,
	}
	if sellerID != "" {
		set["seller_id"] = sellerID
	}

	result, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "phone": phone, "attended_by": models.AttendedByAI},
		bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to commit handoff: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// queueForManager degrades a handoff with no available seller into a
// manager-attended state instead of failing silently.
func queueForManager(ctx context.Context, tenantID, phone, reason string) (*HandoffResult, error) {
	committed, err := commitLeadHandoff(ctx, tenantID, phone, models.AttendedByManager, "")
	if err != nil {
		return nil, err
	}
	if !committed {
		return nil, ErrAlreadyHandedOff
	}

	slog.Warn("No active seller available, lead queued for manager",
		"tenantID", tenantID,
		"phone", phone,
		"reason", reason)

	return &HandoffResult{ManagerQueue: true, Reason: reason}, nil
}

// ResetLeadToAI is the explicit administrative action that returns a lead to
// automated attendance and starts a new episode. This is the only path back
// from seller or manager attendance.
func ResetLeadToAI(ctx context.Context, tenantID, phone string) error {
	lead, err := GetLead(ctx, tenantID, phone)
	if err != nil {
		return err
	}
	if lead == nil {
		return fmt.Errorf("lead not found: %s/%s", tenantID, phone)
	}
	if lead.AttendedBy == models.AttendedByAI {
		return nil
	}

	collection := database.Collection("leads")
	now := time.Now()

	result, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "phone": phone, "attended_by": lead.AttendedBy},
		bson.M{
			"$set": bson.M{
				"attended_by":        models.AttendedByAI,
				"ai_turn_count":      0,
				"validator_failures": 0,
				"insistence_count":   0,
				"last_blocked_topic": "",
				"updated_at":         now,
			},
			"$unset": bson.M{
				"seller_id":           "",
				"seller_took_over_at": "",
			},
		})
	if err != nil {
		return fmt.Errorf("failed to reset lead: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("lead state changed concurrently: %s/%s", tenantID, phone)
	}

	if lead.AttendedBy == models.AttendedBySeller && lead.SellerID != "" {
		releaseSellerClaim(ctx, tenantID, lead.SellerID)
	}

	slog.Info("Lead reset to AI attendance",
		"tenantID", tenantID,
		"phone", phone,
		"previousAttendedBy", lead.AttendedBy)

	return nil
}

// GetSellers lists a tenant's sellers for the dashboard.
func GetSellers(ctx context.Context, tenantID string) ([]models.Seller, error) {
	collection := database.Collection("sellers")

	cursor, err := collection.Find(ctx, bson.M{"tenant_id": tenantID},
		options.Find().SetSort(bson.D{{Key: "current_leads_count", Value: 1}, {Key: "last_assigned_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sellers []models.Seller
	if err := cursor.All(ctx, &sellers); err != nil {
		return nil, err
	}

	return sellers, nil
}

// CreateSeller registers a new assignable seller for a tenant.
func CreateSeller(ctx context.Context, seller *models.Seller) error {
	collection := database.Collection("sellers")
	now := time.Now()

	seller.CurrentLeadsCount = 0
	seller.LastAssignedAt = time.Time{}
	seller.CreatedAt = now
	seller.UpdatedAt = now

	if _, err := collection.InsertOne(ctx, seller); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("seller %s already exists for tenant %s", seller.SellerID, seller.TenantID)
		}
		return fmt.Errorf("failed to create seller: %w", err)
	}

	return nil
}

// SetSellerActive flips a seller's availability for distribution. An
// inactive seller keeps its open leads but receives no new ones.
func SetSellerActive(ctx context.Context, tenantID, sellerID string, active bool) error {
	collection := database.Collection("sellers")

	result, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "seller_id": sellerID},
		bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now()}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("seller not found: %s/%s", tenantID, sellerID)
	}

	return nil
}
