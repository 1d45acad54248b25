package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/pkg/logger"
)

const (
	userSubscriptionsKeyPrefix = "user_subscriptions:"
	usageKeyPrefix             = "usage:"

	subscriptionCacheTTL = 15 * time.Minute
	usageCacheTTL        = 1 * time.Minute
)

// RedisCacheRepository is the read-through cache in front of the
// account authority. The authority owns the records; everything here
// is disposable and expires on its own.
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository connects to Redis and verifies the connection
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close closes the Redis connection
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CacheUserSubscriptions stores the authority's subscription list for a user
func (r *RedisCacheRepository) CacheUserSubscriptions(ctx context.Context, userID string, subs []domain.Subscription) error {
	key := userSubscriptionsKeyPrefix + userID

	data, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriptions: %w", err)
	}

	if err := r.client.Set(ctx, key, data, subscriptionCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache subscriptions in Redis", "error", err, "userID", userID)
		return fmt.Errorf("failed to cache subscriptions: %w", err)
	}

	r.log.Debugw("Subscriptions cached", "userID", userID, "count", len(subs))
	return nil
}

// GetCachedUserSubscriptions returns the cached subscription list, or
// nil on a cache miss.
func (r *RedisCacheRepository) GetCachedUserSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	key := userSubscriptionsKeyPrefix + userID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.log.Errorw("Error getting subscriptions from Redis", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get subscriptions from cache: %w", err)
	}

	var subs []domain.Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscriptions: %w", err)
	}
	return subs, nil
}

// InvalidateUserSubscriptions drops the cached list after any
// subscription mutation.
func (r *RedisCacheRepository) InvalidateUserSubscriptions(ctx context.Context, userID string) error {
	key := userSubscriptionsKeyPrefix + userID
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to invalidate subscription cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}
	return nil
}

func usageKey(userID string, productID domain.ProductID) string {
	return fmt.Sprintf("%s%s:%s", usageKeyPrefix, userID, productID)
}

// CacheUsage stores one usage counter. The short TTL bounds staleness
// for reads that race a consume on another device.
func (r *RedisCacheRepository) CacheUsage(ctx context.Context, userID string, counter domain.UsageCounter) error {
	data, err := json.Marshal(counter)
	if err != nil {
		return fmt.Errorf("failed to marshal usage counter: %w", err)
	}

	if err := r.client.Set(ctx, usageKey(userID, counter.ProductID), data, usageCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache usage counter", "error", err, "userID", userID, "productID", counter.ProductID)
		return fmt.Errorf("failed to cache usage counter: %w", err)
	}
	return nil
}

// GetCachedUsage returns the cached counter, or nil on a cache miss
func (r *RedisCacheRepository) GetCachedUsage(ctx context.Context, userID string, productID domain.ProductID) (*domain.UsageCounter, error) {
	data, err := r.client.Get(ctx, usageKey(userID, productID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.log.Errorw("Error getting usage counter from Redis", "error", err, "userID", userID, "productID", productID)
		return nil, fmt.Errorf("failed to get usage counter from cache: %w", err)
	}

	var counter domain.UsageCounter
	if err := json.Unmarshal(data, &counter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached usage counter: %w", err)
	}
	return &counter, nil
}

// InvalidateUsage drops one cached counter
func (r *RedisCacheRepository) InvalidateUsage(ctx context.Context, userID string, productID domain.ProductID) error {
	if err := r.client.Del(ctx, usageKey(userID, productID)).Err(); err != nil {
		r.log.Errorw("Failed to invalidate usage cache", "error", err, "userID", userID, "productID", productID)
		return fmt.Errorf("failed to invalidate usage cache: %w", err)
	}
	return nil
}

// InvalidateAllUsage drops every cached counter for a user, used when a
// subscription event changes entitlements.
func (r *RedisCacheRepository) InvalidateAllUsage(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("%s%s:*", usageKeyPrefix, userID)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan usage keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate usage keys: %w", err)
	}

	r.log.Debugw("Usage cache invalidated", "userID", userID, "keys", len(keys))
	return nil
}
