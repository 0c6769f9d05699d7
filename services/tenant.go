package services

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"whatsapp-bot/models"
)

// GetTenantByPhoneID resolves the tenant that owns a WhatsApp phone-number id.
// Every inbound event is attributed through this lookup.
func GetTenantByPhoneID(ctx context.Context, phoneID string) (*models.Tenant, error) {
	collection := database.Collection("tenants")

	var tenant models.Tenant
	err := collection.FindOne(ctx, bson.M{"whatsapp_phone_id": phoneID}).Decode(&tenant)
	if err != nil {
		return nil, fmt.Errorf("tenant not found for phone id %s: %w", phoneID, err)
	}

	if !tenant.IsActive {
		return nil, fmt.Errorf("tenant %s is inactive", tenant.TenantID)
	}

	return &tenant, nil
}

// GetTenantByID retrieves a tenant by its tenant id.
func GetTenantByID(ctx context.Context, tenantID string) (*models.Tenant, error) {
	collection := database.Collection("tenants")

	var tenant models.Tenant
	err := collection.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&tenant)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("tenant %s not found", tenantID)
		}
		return nil, err
	}

	return &tenant, nil
}

// MatchFAQ returns the answer of the first FAQ entry whose keywords all occur
// in the message, or "" when none match.
func MatchFAQ(tenant *models.Tenant, message string) string {
	lower := strings.ToLower(message)

	for _, faq := range tenant.FAQs {
		if len(faq.Keywords) == 0 {
			continue
		}
		matched := true
		for _, kw := range faq.Keywords {
			if !strings.Contains(lower, strings.ToLower(kw)) {
				matched = false
				break
			}
		}
		if matched {
			return faq.Answer
		}
	}

	return ""
}

// MatchProduct returns the first catalog product mentioned by the message, or
// nil when none match.
func MatchProduct(tenant *models.Tenant, message string) *models.Product {
	lower := strings.ToLower(message)

	for i := range tenant.Products {
		p := &tenant.Products[i]
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return p
			}
		}
	}

	return nil
}
