package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/events"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// Authority is the slice of the account authority the meter needs
type Authority interface {
	ConsumeUsage(ctx context.Context, productID domain.ProductID) (domain.UsageCounter, error)
	GetUsage(ctx context.Context) ([]domain.UsageCounter, error)
}

// Cache is the usage-counter cache the meter reads through
type Cache interface {
	CacheUsage(ctx context.Context, userID string, counter domain.UsageCounter) error
	GetCachedUsage(ctx context.Context, userID string, productID domain.ProductID) (*domain.UsageCounter, error)
	InvalidateAllUsage(ctx context.Context, userID string) error
}

// Meter enforces the daily per-product usage quota. The authority does
// the atomic increment-and-check; the meter serializes a user's
// attempts per product and keeps a short-lived read cache so the usage
// bar does not hit the authority on every render.
type Meter struct {
	authority Authority
	cache     Cache
	stores    *store.Manager
	catalog   *catalog.Catalog
	tz        *time.Location
	log       *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // userID:productID
}

// NewMeter creates a usage meter. tz is the timezone used to compute
// the next daily reset; pass nil to fall back to UTC.
func NewMeter(authority Authority, cache Cache, stores *store.Manager, cat *catalog.Catalog, tz *time.Location, log *logger.Logger) *Meter {
	if tz == nil {
		tz = time.UTC
	}
	return &Meter{
		authority: authority,
		cache:     cache,
		stores:    stores,
		catalog:   cat,
		tz:        tz,
		log:       log,
		locks:     make(map[string]*sync.Mutex),
	}
}

// WatchSubscriptionEvents invalidates cached counters when a
// subscription event changes entitlements. Returns the unsubscribe
// function.
func (m *Meter) WatchSubscriptionEvents(bus *events.Bus) func() {
	invalidate := func(e events.Event) {
		if e.Subscription == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.cache.InvalidateAllUsage(ctx, e.Subscription.UserID); err != nil {
			m.log.Warnw("Failed to invalidate usage cache on subscription event", "error", err, "type", e.Type)
		}
	}
	unsubUpdated := bus.Subscribe(events.SubscriptionUpdated, invalidate)
	unsubDeleted := bus.Subscribe(events.SubscriptionDeleted, invalidate)
	return func() {
		unsubUpdated()
		unsubDeleted()
	}
}

// Consume spends one unit of the daily quota for a product. Order
// matters: entitlement first, then the authority's atomic
// increment-and-check. Two rapid calls serialize on the per-key lock so
// the last unit is granted exactly once.
func (m *Meter) Consume(ctx context.Context, userID string, productID domain.ProductID) (domain.UsageCounter, error) {
	if _, ok := m.catalog.Product(productID); !ok {
		return domain.UsageCounter{}, domain.ErrValidationFailed
	}
	if !m.stores.ForUser(userID).HasActiveSubscription(productID) {
		return domain.UsageCounter{}, domain.ErrNotFound
	}

	lock := m.keyLock(userID, productID)
	lock.Lock()
	defer lock.Unlock()

	counter, err := m.authority.ConsumeUsage(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			m.log.Infow("Daily quota exhausted", "userID", userID, "productID", productID)
		}
		return domain.UsageCounter{}, err
	}

	if cacheErr := m.cache.CacheUsage(ctx, userID, counter); cacheErr != nil {
		m.log.Warnw("Failed to refresh usage cache after consume", "error", cacheErr)
	}

	return counter, nil
}

// GetUsage returns the counter for one product, read through the cache.
// A counter whose reset time has passed rolls over to a fresh bucket
// locally; the authority performs the same rollover on its next write.
func (m *Meter) GetUsage(ctx context.Context, userID string, productID domain.ProductID) (domain.UsageCounter, error) {
	product, ok := m.catalog.Product(productID)
	if !ok {
		return domain.UsageCounter{}, domain.ErrValidationFailed
	}

	now := time.Now()

	cached, err := m.cache.GetCachedUsage(ctx, userID, productID)
	if err == nil && cached != nil {
		return m.rollover(*cached, now), nil
	}

	counters, err := m.authority.GetUsage(ctx)
	if err != nil {
		return domain.UsageCounter{}, err
	}
	for _, counter := range counters {
		if counter.ProductID != productID {
			continue
		}
		if cacheErr := m.cache.CacheUsage(ctx, userID, counter); cacheErr != nil {
			m.log.Warnw("Failed to cache usage counter", "error", cacheErr)
		}
		return m.rollover(counter, now), nil
	}

	// No counter yet today: a full, untouched bucket.
	return domain.UsageCounter{
		UserID:    userID,
		ProductID: productID,
		Used:      0,
		Limit:     product.DailyLimit,
		ResetAt:   m.NextReset(now),
	}, nil
}

// GetAllUsage returns counters for every product the user is entitled
// to, filling in untouched buckets for products with no counter yet.
func (m *Meter) GetAllUsage(ctx context.Context, userID string) ([]domain.UsageCounter, error) {
	counters, err := m.authority.GetUsage(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	byProduct := make(map[domain.ProductID]domain.UsageCounter, len(counters))
	for _, counter := range counters {
		byProduct[counter.ProductID] = m.rollover(counter, now)
	}

	var out []domain.UsageCounter
	userStore := m.stores.ForUser(userID)
	for _, product := range m.catalog.Products() {
		if !userStore.HasActiveSubscription(product.ID) {
			continue
		}
		if counter, ok := byProduct[product.ID]; ok {
			out = append(out, counter)
			continue
		}
		out = append(out, domain.UsageCounter{
			UserID:    userID,
			ProductID: product.ID,
			Used:      0,
			Limit:     product.DailyLimit,
			ResetAt:   m.NextReset(now),
		})
	}
	return out, nil
}

// NextReset returns the start of the next calendar day in the meter's
// timezone.
func (m *Meter) NextReset(now time.Time) time.Time {
	local := now.In(m.tz)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.tz).AddDate(0, 0, 1)
	return next
}

// rollover replaces a stale bucket with a fresh one. The old bucket is
// never mutated; a new value is built in its place.
func (m *Meter) rollover(counter domain.UsageCounter, now time.Time) domain.UsageCounter {
	if counter.ResetAt.IsZero() || now.Before(counter.ResetAt) {
		return counter
	}
	return domain.UsageCounter{
		UserID:    counter.UserID,
		ProductID: counter.ProductID,
		Used:      0,
		Limit:     counter.Limit,
		ResetAt:   m.NextReset(now),
	}
}

func (m *Meter) keyLock(userID string, productID domain.ProductID) *sync.Mutex {
	key := userID + ":" + string(productID)
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}
