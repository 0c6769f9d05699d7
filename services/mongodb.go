package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	mongoClient *mongo.Client
	database    *mongo.Database
)

// GetDatabase returns the MongoDB database instance
func GetDatabase() *mongo.Database {
	return database
}

// InitMongoDB initializes MongoDB connection
func InitMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	slog.Info("Connected to MongoDB")
	mongoClient = client

	return client, nil
}

// InitServices initializes all services
func InitServices(client *mongo.Client, databaseName string) {
	database = client.Database(databaseName)

	// Create indexes
	createIndexes()
}

// createIndexes creates necessary database indexes
func createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Leads: one lead per (tenant, phone)
	leadsCollection := database.Collection("leads")
	leadsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.M{"attended_by": 1}},
		{Keys: bson.M{"last_message_at": -1}},
	})

	// Messages: ledger queries per lead, dedup by provider id
	messagesCollection := database.Collection("messages")
	messagesCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "phone", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.M{"provider_message_id": 1}},
	})

	// Sellers: distribution query sorts on count + last assignment
	sellersCollection := database.Collection("sellers")
	sellersCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "seller_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "is_active", Value: 1}, {Key: "current_leads_count", Value: 1}, {Key: "last_assigned_at", Value: 1}}},
	})

	// Tenants: webhook lookup by provider phone id
	tenantsCollection := database.Collection("tenants")
	tenantsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"tenant_id": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"whatsapp_phone_id": 1}},
	})

	// Processed events: unique dedup key, expired automatically
	processedCollection := database.Collection("processed_events")
	processedCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.M{"provider_message_id": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.M{"ttl": 1},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})

	// Rate limit windows: expired automatically at window end
	rateLimitCollection := database.Collection("rate_limit_windows")
	rateLimitCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"key": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"expires_at": 1}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
}
