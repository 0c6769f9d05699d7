package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// MongoDB configuration
	MongoURI     string
	DatabaseName string

	// Webhook configuration
	VerifyToken string

	// RabbitMQ notification configuration (optional)
	AMQPURL      string
	AMQPExchange string

	// Rate limiting
	PhoneRateLimit  int
	TenantRateLimit int
	RateWindow      time.Duration

	// Pipeline tuning
	MaxMessageLength   int
	ModelAttempts      int
	ModelTimeout       time.Duration
	PromptBudget       int
	HandoffCooldown    time.Duration
	ValidatorTolerance int

	// Server configuration
	Port string
}

func LoadConfig() *Config {
	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName: getEnv("MONGO_DB_NAME", "whatsapp_bot"),
		VerifyToken:  getEnv("WEBHOOK_VERIFY_TOKEN", "webhook_verify_token"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "whatsapp-bot.notifications"),

		PhoneRateLimit:  getEnvInt("PHONE_RATE_LIMIT", 20),
		TenantRateLimit: getEnvInt("TENANT_RATE_LIMIT", 300),
		RateWindow:      getEnvDuration("RATE_WINDOW", time.Minute),

		MaxMessageLength:   getEnvInt("MAX_MESSAGE_LENGTH", 4000),
		ModelAttempts:      getEnvInt("MODEL_ATTEMPTS", 3),
		ModelTimeout:       getEnvDuration("MODEL_TIMEOUT", 30*time.Second),
		PromptBudget:       getEnvInt("PROMPT_BUDGET", 12000),
		HandoffCooldown:    getEnvDuration("HANDOFF_COOLDOWN", 24*time.Hour),
		ValidatorTolerance: getEnvInt("VALIDATOR_TOLERANCE", 2),

		Port: getEnv("PORT", "8080"),
	}

	// Validate required configuration
	if cfg.MongoURI == "" {
		slog.Error("MONGO_URI not set")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}
