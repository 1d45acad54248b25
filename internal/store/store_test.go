package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/pkg/logger"
)

func newTestStore() *Store {
	return New(logger.New(logger.ERROR))
}

func activeSub(id string) domain.Subscription {
	now := time.Now()
	return domain.Subscription{
		ID:                 id,
		UserID:             "user-1",
		ProductIDs:         []domain.ProductID{domain.ProductTalk},
		Status:             domain.SubscriptionStatusActive,
		BillingCycle:       domain.BillingCycleMonthly,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.SubscriptionStatus
		want     bool
	}{
		{domain.SubscriptionStatusTrial, domain.SubscriptionStatusActive, true},
		{domain.SubscriptionStatusTrial, domain.SubscriptionStatusCancelled, true},
		{domain.SubscriptionStatusActive, domain.SubscriptionStatusPaused, true},
		{domain.SubscriptionStatusActive, domain.SubscriptionStatusCancelled, true},
		{domain.SubscriptionStatusPaused, domain.SubscriptionStatusActive, true},
		{domain.SubscriptionStatusCancelled, domain.SubscriptionStatusActive, false},
		{domain.SubscriptionStatusExpired, domain.SubscriptionStatusActive, false},
		{domain.SubscriptionStatusActive, domain.SubscriptionStatusTrial, false},
		{domain.SubscriptionStatusCancelled, domain.SubscriptionStatusPaused, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestToggleProductMaxFour(t *testing.T) {
	st := newTestStore()

	require.NoError(t, st.ToggleProduct(domain.ProductTalk))
	require.NoError(t, st.ToggleProduct(domain.ProductDrama))
	require.NoError(t, st.ToggleProduct(domain.ProductTest))
	require.NoError(t, st.ToggleProduct(domain.ProductJourney))

	err := st.ToggleProduct(domain.ProductID("fifth"))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	// Toggling an already selected product removes it.
	require.NoError(t, st.ToggleProduct(domain.ProductDrama))
	sel := st.Selection()
	assert.Len(t, sel.SelectedProducts, 3)
	assert.False(t, sel.Contains(domain.ProductDrama))
}

func TestBeginTransitionRaceGuard(t *testing.T) {
	st := newTestStore()
	st.UpsertSubscription(activeSub("sub-1"))

	// Two concurrent transitions on the same subscription: exactly one
	// must win the marker.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- st.BeginTransition("sub-1")
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrOperationInProgress)
			rejections++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejections)
}

func TestBeginTransitionUnknownSubscription(t *testing.T) {
	st := newTestStore()
	assert.ErrorIs(t, st.BeginTransition("missing"), domain.ErrNotFound)
}

func TestReconcileConfirmedServerWins(t *testing.T) {
	st := newTestStore()
	st.UpsertSubscription(activeSub("sub-1"))
	require.NoError(t, st.BeginTransition("sub-1"))

	optimistic := activeSub("sub-1")
	optimistic.Status = domain.SubscriptionStatusCancelled
	st.ApplyOptimistic("sub-1", optimistic)

	// The authority answers with different timestamps than the
	// optimistic guess; its object must replace ours wholesale.
	server := activeSub("sub-1")
	server.Status = domain.SubscriptionStatusCancelled
	server.CancelAtPeriodEnd = true
	st.ReconcileConfirmed("sub-1", server)

	got, ok := st.Subscription("sub-1")
	require.True(t, ok)
	assert.True(t, got.CancelAtPeriodEnd)

	// The marker is released: a new transition may start.
	assert.NoError(t, st.BeginTransition("sub-1"))
}

func TestReconcileRejectedRollsBack(t *testing.T) {
	st := newTestStore()
	st.UpsertSubscription(activeSub("sub-1"))
	require.NoError(t, st.BeginTransition("sub-1"))

	optimistic := activeSub("sub-1")
	optimistic.Status = domain.SubscriptionStatusCancelled
	st.ApplyOptimistic("sub-1", optimistic)

	st.ReconcileRejected("sub-1", domain.ErrInvalidTransition)

	got, ok := st.Subscription("sub-1")
	require.True(t, ok)
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)
	assert.Equal(t, domain.ErrInvalidTransition.Error(), st.Snapshot().LastError)
}

func TestApplyOptimisticWithoutMarkerIsNoop(t *testing.T) {
	st := newTestStore()
	st.UpsertSubscription(activeSub("sub-1"))

	rogue := activeSub("sub-1")
	rogue.Status = domain.SubscriptionStatusCancelled
	st.ApplyOptimistic("sub-1", rogue)

	got, _ := st.Subscription("sub-1")
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)
}

func TestListenersNotifiedWithSnapshot(t *testing.T) {
	st := newTestStore()

	var mu sync.Mutex
	var seen []int
	unsubscribe := st.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, len(s.Subscriptions))
		mu.Unlock()
	})

	st.UpsertSubscription(activeSub("sub-1"))
	st.UpsertSubscription(activeSub("sub-2"))
	unsubscribe()
	st.UpsertSubscription(activeSub("sub-3"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, seen)
}

func TestMarkElapsed(t *testing.T) {
	st := newTestStore()

	expired := activeSub("ends")
	expired.CurrentPeriodEnd = time.Now().Add(-time.Hour)
	st.UpsertSubscription(expired)

	cancelled := activeSub("cancel-at-end")
	cancelled.CurrentPeriodEnd = time.Now().Add(-time.Hour)
	cancelled.CancelAtPeriodEnd = true
	st.UpsertSubscription(cancelled)

	current := activeSub("current")
	st.UpsertSubscription(current)

	st.MarkElapsed(time.Now())

	got, _ := st.Subscription("ends")
	assert.Equal(t, domain.SubscriptionStatusExpired, got.Status)

	got, _ = st.Subscription("cancel-at-end")
	assert.Equal(t, domain.SubscriptionStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	got, _ = st.Subscription("current")
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)
}

func TestMarkElapsedSkipsPending(t *testing.T) {
	st := newTestStore()

	sub := activeSub("in-flight")
	sub.CurrentPeriodEnd = time.Now().Add(-time.Hour)
	st.UpsertSubscription(sub)
	require.NoError(t, st.BeginTransition("in-flight"))

	st.MarkElapsed(time.Now())

	got, _ := st.Subscription("in-flight")
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)
}

func TestTotalMonthlyCost(t *testing.T) {
	st := newTestStore()
	cat := catalog.Default()

	assert.True(t, st.TotalMonthlyCost(cat).IsZero())

	st.UpsertSubscription(activeSub("sub-talk"))

	drama := activeSub("sub-drama")
	drama.ProductIDs = []domain.ProductID{domain.ProductDrama}
	st.UpsertSubscription(drama)

	// talk $30 + drama $20; cancelled subscriptions do not count.
	assert.Equal(t, "50.00", st.TotalMonthlyCost(cat).StringFixed(2))

	cancelled := activeSub("sub-drama")
	cancelled.ProductIDs = []domain.ProductID{domain.ProductDrama}
	cancelled.Status = domain.SubscriptionStatusCancelled
	st.UpsertSubscription(cancelled)
	assert.Equal(t, "30.00", st.TotalMonthlyCost(cat).StringFixed(2))
}

func TestHasActiveSubscription(t *testing.T) {
	st := newTestStore()
	assert.False(t, st.HasActiveSubscription(domain.ProductTalk))

	st.UpsertSubscription(activeSub("sub-1"))
	assert.True(t, st.HasActiveSubscription(domain.ProductTalk))
	assert.False(t, st.HasActiveSubscription(domain.ProductDrama))

	cancelled := activeSub("sub-1")
	cancelled.Status = domain.SubscriptionStatusCancelled
	st.UpsertSubscription(cancelled)
	assert.False(t, st.HasActiveSubscription(domain.ProductTalk))
}
