package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed    bool
	Subject    string
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// WindowStore is an atomic increment-and-expire counter over fixed time
// windows. The Mongo-backed store and the in-memory fallback implement the
// same interface so single-instance and multi-instance deployments behave
// identically.
type WindowStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, expiresAt time.Time, err error)
}

// MongoWindowStore counts in a shared collection so limits hold across
// instances. Windows expire via a TTL index on expires_at.
type MongoWindowStore struct{}

type rateLimitWindow struct {
	Key       string    `bson:"key"`
	Count     int       `bson:"count"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Incr atomically bumps the counter for key, creating the window on first
// use. The expiry is fixed at window creation, giving fixed-window semantics.
func (s *MongoWindowStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	collection := database.Collection("rate_limit_windows")
	now := time.Now()

	filter := bson.M{"key": key, "expires_at": bson.M{"$gt": now}}
	update := bson.M{
		"$inc":         bson.M{"count": 1},
		"$setOnInsert": bson.M{"key": key, "expires_at": now.Add(window)},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc rateLimitWindow
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		// A duplicate key here means an expired window document the TTL
		// monitor has not removed yet; replace it with a fresh window.
		collection.DeleteOne(ctx, bson.M{"key": key, "expires_at": bson.M{"$lte": now}})
		err = collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("rate limit increment failed: %w", err)
		}
	}

	return doc.Count, doc.ExpiresAt, nil
}

// MemoryWindowStore is the single-instance fallback used when the shared
// store is unreachable.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	count     int
	expiresAt time.Time
}

// NewMemoryWindowStore creates an empty in-process window store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]*memoryWindow)}
}

// Incr implements WindowStore.
func (s *MemoryWindowStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, ok := s.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &memoryWindow{expiresAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++

	// Opportunistic cleanup of expired windows
	if len(s.windows) > 1024 {
		for k, win := range s.windows {
			if now.After(win.expiresAt) {
				delete(s.windows, k)
			}
		}
	}

	return w.count, w.expiresAt, nil
}

// SubjectLimit is one composed subject key with its limit.
type SubjectLimit struct {
	Subject string // e.g. "phone:+5511999999999", "tenant:acme"
	Limit   int
}

// RateLimiter checks admission against a fixed window per subject key. When
// the shared store fails the in-memory store answers instead, trading
// cross-instance consistency for availability.
type RateLimiter struct {
	store    WindowStore
	fallback WindowStore
	window   time.Duration
}

// NewRateLimiter creates a limiter over the given store with an in-memory
// fallback.
func NewRateLimiter(store WindowStore, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		store:    store,
		fallback: NewMemoryWindowStore(),
		window:   window,
	}
}

// Check counts one request against a single subject key.
func (r *RateLimiter) Check(ctx context.Context, subject string, limit int) RateDecision {
	count, expiresAt, err := r.store.Incr(ctx, subject, r.window)
	if err != nil {
		slog.Warn("Shared rate limit store unavailable, using in-memory fallback",
			"subject", subject,
			"error", err)
		count, expiresAt, err = r.fallback.Incr(ctx, subject, r.window)
		if err != nil {
			// Fail open: admission control should not take the pipeline down
			return RateDecision{Allowed: true, Subject: subject, ResetAt: time.Now().Add(r.window)}
		}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	decision := RateDecision{
		Allowed:   count <= limit,
		Subject:   subject,
		Remaining: remaining,
		ResetAt:   expiresAt,
	}
	if !decision.Allowed {
		decision.RetryAfter = time.Until(expiresAt)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
	}

	return decision
}

// CheckAll evaluates every configured subject key independently and returns
// the first blocking decision, or the last allowing one. A request is blocked
// if any subject is over limit.
func (r *RateLimiter) CheckAll(ctx context.Context, subjects []SubjectLimit) RateDecision {
	decision := RateDecision{Allowed: true}

	for _, s := range subjects {
		d := r.Check(ctx, s.Subject, s.Limit)
		if !d.Allowed {
			slog.Info("Rate limit exceeded",
				"subject", s.Subject,
				"limit", s.Limit,
				"retryAfter", d.RetryAfter.Seconds())
			return d
		}
		decision = d
	}

	return decision
}
