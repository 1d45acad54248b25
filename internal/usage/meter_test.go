package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/events"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// fakeAuthority mimics the authority's atomic increment-and-check
type fakeAuthority struct {
	mu       sync.Mutex
	counters map[domain.ProductID]*domain.UsageCounter
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{counters: make(map[domain.ProductID]*domain.UsageCounter)}
}

func (f *fakeAuthority) seed(c domain.UsageCounter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := c
	f.counters[c.ProductID] = &copy
}

func (f *fakeAuthority) ConsumeUsage(_ context.Context, productID domain.ProductID) (domain.UsageCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	counter, ok := f.counters[productID]
	if !ok {
		return domain.UsageCounter{}, domain.ErrNotFound
	}
	if counter.Used >= counter.Limit {
		return domain.UsageCounter{}, domain.ErrQuotaExceeded
	}
	counter.Used++
	return *counter, nil
}

func (f *fakeAuthority) GetUsage(_ context.Context) ([]domain.UsageCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.UsageCounter, 0, len(f.counters))
	for _, c := range f.counters {
		out = append(out, *c)
	}
	return out, nil
}

type fakeCache struct {
	mu             sync.Mutex
	data           map[string]domain.UsageCounter
	invalidatedAll int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]domain.UsageCounter)}
}

func (f *fakeCache) key(userID string, productID domain.ProductID) string {
	return userID + ":" + string(productID)
}

func (f *fakeCache) CacheUsage(_ context.Context, userID string, counter domain.UsageCounter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[f.key(userID, counter.ProductID)] = counter
	return nil
}

func (f *fakeCache) GetCachedUsage(_ context.Context, userID string, productID domain.ProductID) (*domain.UsageCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.data[f.key(userID, productID)]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeCache) InvalidateAllUsage(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = make(map[string]domain.UsageCounter)
	f.invalidatedAll++
	return nil
}

func entitledStores(t *testing.T, products ...domain.ProductID) *store.Manager {
	t.Helper()
	stores := store.NewManager(logger.New(logger.ERROR))
	now := time.Now()
	stores.ForUser("user-1").UpsertSubscription(domain.Subscription{
		ID:               "sub-1",
		UserID:           "user-1",
		ProductIDs:       products,
		Status:           domain.SubscriptionStatusActive,
		BillingCycle:     domain.BillingCycleMonthly,
		CurrentPeriodEnd: now.AddDate(0, 1, 0),
	})
	return stores
}

func newTestMeter(authority *fakeAuthority, cache *fakeCache, stores *store.Manager) *Meter {
	return NewMeter(authority, cache, stores, catalog.Default(), time.UTC, logger.New(logger.ERROR))
}

func TestConsume(t *testing.T) {
	authority := newFakeAuthority()
	authority.seed(domain.UsageCounter{
		UserID: "user-1", ProductID: domain.ProductTalk,
		Used: 58, Limit: 60, ResetAt: time.Now().Add(time.Hour),
	})
	meter := newTestMeter(authority, newFakeCache(), entitledStores(t, domain.ProductTalk))

	counter, err := meter.Consume(context.Background(), "user-1", domain.ProductTalk)
	require.NoError(t, err)
	assert.Equal(t, 59, counter.Used)
	assert.Equal(t, 1, counter.Remaining())
}

func TestConsumeExactlyToLimit(t *testing.T) {
	authority := newFakeAuthority()
	authority.seed(domain.UsageCounter{
		UserID: "user-1", ProductID: domain.ProductTalk,
		Used: 0, Limit: 60, ResetAt: time.Now().Add(time.Hour),
	})
	meter := newTestMeter(authority, newFakeCache(), entitledStores(t, domain.ProductTalk))

	// 61 concurrent attempts against a 60-unit quota: exactly 60 may
	// win, and the last unit is granted exactly once.
	var wg sync.WaitGroup
	results := make(chan error, 61)
	for i := 0; i < 61; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := meter.Consume(context.Background(), "user-1", domain.ProductTalk)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, rejected int
	for err := range results {
		if err == nil {
			granted++
		} else {
			assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
			rejected++
		}
	}
	assert.Equal(t, 60, granted)
	assert.Equal(t, 1, rejected)
}

func TestConsumeWithoutEntitlement(t *testing.T) {
	stores := store.NewManager(logger.New(logger.ERROR))
	meter := newTestMeter(newFakeAuthority(), newFakeCache(), stores)

	_, err := meter.Consume(context.Background(), "user-1", domain.ProductTalk)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConsumeEntitlementIsPerUser(t *testing.T) {
	authority := newFakeAuthority()
	authority.seed(domain.UsageCounter{
		UserID: "user-1", ProductID: domain.ProductTalk,
		Used: 0, Limit: 60, ResetAt: time.Now().Add(time.Hour),
	})

	// Only user-1 holds an active subscription. Another user must not
	// inherit that entitlement.
	meter := newTestMeter(authority, newFakeCache(), entitledStores(t, domain.ProductTalk))

	_, err := meter.Consume(context.Background(), "user-2", domain.ProductTalk)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	counter, err := meter.Consume(context.Background(), "user-1", domain.ProductTalk)
	require.NoError(t, err)
	assert.Equal(t, 1, counter.Used)
}

func TestConsumeUnknownProduct(t *testing.T) {
	meter := newTestMeter(newFakeAuthority(), newFakeCache(), entitledStores(t, domain.ProductTalk))

	_, err := meter.Consume(context.Background(), "user-1", domain.ProductID("nope"))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestGetUsageReadsThroughCache(t *testing.T) {
	authority := newFakeAuthority()
	cache := newFakeCache()
	cache.CacheUsage(context.Background(), "user-1", domain.UsageCounter{
		UserID: "user-1", ProductID: domain.ProductTalk,
		Used: 10, Limit: 60, ResetAt: time.Now().Add(time.Hour),
	})
	meter := newTestMeter(authority, cache, entitledStores(t, domain.ProductTalk))

	counter, err := meter.GetUsage(context.Background(), "user-1", domain.ProductTalk)
	require.NoError(t, err)
	assert.Equal(t, 10, counter.Used)
}

func TestGetUsageRollsOverStaleBucket(t *testing.T) {
	authority := newFakeAuthority()
	cache := newFakeCache()
	cache.CacheUsage(context.Background(), "user-1", domain.UsageCounter{
		UserID: "user-1", ProductID: domain.ProductTalk,
		Used: 60, Limit: 60, ResetAt: time.Now().Add(-time.Minute),
	})
	meter := newTestMeter(authority, cache, entitledStores(t, domain.ProductTalk))

	counter, err := meter.GetUsage(context.Background(), "user-1", domain.ProductTalk)
	require.NoError(t, err)
	assert.Equal(t, 0, counter.Used)
	assert.False(t, counter.Exhausted())
	assert.True(t, counter.ResetAt.After(time.Now()))
}

func TestGetUsageNoCounterYet(t *testing.T) {
	meter := newTestMeter(newFakeAuthority(), newFakeCache(), entitledStores(t, domain.ProductDrama))

	counter, err := meter.GetUsage(context.Background(), "user-1", domain.ProductDrama)
	require.NoError(t, err)
	assert.Equal(t, 0, counter.Used)
	assert.Equal(t, 20, counter.Limit)
}

func TestNextReset(t *testing.T) {
	meter := newTestMeter(newFakeAuthority(), newFakeCache(), store.NewManager(logger.New(logger.ERROR)))

	now := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	reset := meter.NextReset(now)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), reset)
}

func TestSubscriptionEventInvalidatesCache(t *testing.T) {
	cache := newFakeCache()
	meter := newTestMeter(newFakeAuthority(), cache, entitledStores(t, domain.ProductTalk))

	bus := events.NewBus(logger.New(logger.ERROR))
	unsubscribe := meter.WatchSubscriptionEvents(bus)
	defer unsubscribe()

	sub := domain.Subscription{ID: "sub-1", UserID: "user-1"}
	bus.Publish(events.Event{Type: events.SubscriptionUpdated, Subscription: &sub})

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, 1, cache.invalidatedAll)
}
