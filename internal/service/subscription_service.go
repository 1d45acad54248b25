package service

import (
	"context"
	"time"

	"github.com/spitkorean/billing-service/internal/account"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/events"
	"github.com/spitkorean/billing-service/internal/gateway"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// SubscriptionService drives subscription lifecycle transitions. Each
// transition is applied optimistically in the store, sent to the
// authority, then reconciled with whatever the authority answers.
type SubscriptionService interface {
	Refresh(ctx context.Context, userID string) ([]domain.Subscription, error)
	Cancel(ctx context.Context, userID, id string, opts domain.CancelOptions) (domain.Subscription, error)
	Keep(ctx context.Context, userID, id string) (domain.Subscription, error)
	Pause(ctx context.Context, userID, id string) (domain.Subscription, error)
	Resume(ctx context.Context, userID, id string) (domain.Subscription, error)
}

type subscriptionService struct {
	authority Authority
	gateway   gateway.Gateway
	stores    *store.Manager
	cache     SubscriptionCache
	bus       *events.Bus
	log       *logger.Logger
}

// NewSubscriptionService creates the subscription lifecycle service
func NewSubscriptionService(
	authority Authority,
	gw gateway.Gateway,
	stores *store.Manager,
	cache SubscriptionCache,
	bus *events.Bus,
	log *logger.Logger,
) SubscriptionService {
	return &subscriptionService{
		authority: authority,
		gateway:   gw,
		stores:    stores,
		cache:     cache,
		bus:       bus,
		log:       log,
	}
}

// Refresh loads the authority's subscription set into the store, going
// through the cache when it is warm. Elapsed periods are settled after
// the load so a subscription past its period end never shows as active.
func (s *subscriptionService) Refresh(ctx context.Context, userID string) ([]domain.Subscription, error) {
	subs, err := s.cache.GetCachedUserSubscriptions(ctx, userID)
	if err != nil || subs == nil {
		subs, err = s.authority.ListSubscriptions(ctx)
		if err != nil {
			return nil, err
		}
		if cacheErr := s.cache.CacheUserSubscriptions(ctx, userID, subs); cacheErr != nil {
			s.log.Warnw("Failed to cache subscriptions", "error", cacheErr, "userID", userID)
		}
	}

	userStore := s.stores.ForUser(userID)
	userStore.SetSubscriptions(subs)
	userStore.MarkElapsed(time.Now())

	snapshot := userStore.Snapshot()
	out := make([]domain.Subscription, 0, len(snapshot.Subscriptions))
	for _, sub := range snapshot.Subscriptions {
		out = append(out, sub)
	}
	return out, nil
}

// Cancel cancels a subscription. Immediate cancellation also tears the
// subscription down at the gateway; otherwise access runs to the period
// end and the store flags cancelAtPeriodEnd.
func (s *subscriptionService) Cancel(ctx context.Context, userID, id string, opts domain.CancelOptions) (domain.Subscription, error) {
	userStore := s.stores.ForUser(userID)
	prev, optimistic, err := s.begin(userStore, id, domain.SubscriptionStatusCancelled)
	if err != nil {
		return domain.Subscription{}, err
	}

	now := time.Now()
	if opts.Immediate {
		optimistic.Status = domain.SubscriptionStatusCancelled
		optimistic.CancelledAt = &now
	} else {
		optimistic.CancelAtPeriodEnd = true
	}
	optimistic.UpdatedAt = now
	userStore.ApplyOptimistic(id, optimistic)

	// A cancellation already submitted must settle even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)

	server, err := s.authority.CancelSubscription(ctx, id, opts)
	if err != nil {
		userStore.ReconcileRejected(id, err)
		s.log.Warnw("Cancel rejected by authority", "subscriptionID", id, "error", err)
		return domain.Subscription{}, err
	}

	if opts.Immediate && prev.ExternalID != "" {
		if gwErr := s.gateway.CancelSubscription(ctx, prev.ExternalID); gwErr != nil {
			// The authority's record is already cancelled; a gateway
			// failure here means a renewal charge could still fire, so
			// it is an error, not a warning.
			s.log.Errorw("Gateway cancellation failed after authority cancel", "subscriptionID", id, "externalID", prev.ExternalID, "error", gwErr)
		}
	}

	return s.settle(ctx, userStore, id, server), nil
}

// Keep reverts a scheduled period-end cancellation. The status never
// changes, so this bypasses the transition table but still claims the
// in-flight marker to serialize against other operations on the id.
func (s *subscriptionService) Keep(ctx context.Context, userID, id string) (domain.Subscription, error) {
	userStore := s.stores.ForUser(userID)
	sub, ok := userStore.Subscription(id)
	if !ok {
		return domain.Subscription{}, domain.ErrNotFound
	}
	if sub.Status != domain.SubscriptionStatusActive || !sub.CancelAtPeriodEnd {
		return domain.Subscription{}, domain.ErrValidationFailed
	}
	if err := userStore.BeginTransition(id); err != nil {
		return domain.Subscription{}, err
	}

	optimistic := sub
	optimistic.CancelAtPeriodEnd = false
	optimistic.UpdatedAt = time.Now()
	userStore.ApplyOptimistic(id, optimistic)

	ctx = context.WithoutCancel(ctx)

	keep := false
	server, err := s.authority.UpdateSubscription(ctx, id, account.UpdateSubscriptionRequest{
		CancelAtPeriodEnd: &keep,
	})
	if err != nil {
		userStore.ReconcileRejected(id, err)
		s.log.Warnw("Keep rejected by authority", "subscriptionID", id, "error", err)
		return domain.Subscription{}, err
	}

	return s.settle(ctx, userStore, id, server), nil
}

// Pause pauses an active subscription
func (s *subscriptionService) Pause(ctx context.Context, userID, id string) (domain.Subscription, error) {
	userStore := s.stores.ForUser(userID)
	_, optimistic, err := s.begin(userStore, id, domain.SubscriptionStatusPaused)
	if err != nil {
		return domain.Subscription{}, err
	}

	optimistic.Status = domain.SubscriptionStatusPaused
	optimistic.UpdatedAt = time.Now()
	userStore.ApplyOptimistic(id, optimistic)

	ctx = context.WithoutCancel(ctx)

	server, err := s.authority.PauseSubscription(ctx, id)
	if err != nil {
		userStore.ReconcileRejected(id, err)
		s.log.Warnw("Pause rejected by authority", "subscriptionID", id, "error", err)
		return domain.Subscription{}, err
	}

	return s.settle(ctx, userStore, id, server), nil
}

// Resume resumes a paused subscription
func (s *subscriptionService) Resume(ctx context.Context, userID, id string) (domain.Subscription, error) {
	userStore := s.stores.ForUser(userID)
	_, optimistic, err := s.begin(userStore, id, domain.SubscriptionStatusActive)
	if err != nil {
		return domain.Subscription{}, err
	}

	optimistic.Status = domain.SubscriptionStatusActive
	optimistic.UpdatedAt = time.Now()
	userStore.ApplyOptimistic(id, optimistic)

	ctx = context.WithoutCancel(ctx)

	server, err := s.authority.ResumeSubscription(ctx, id)
	if err != nil {
		userStore.ReconcileRejected(id, err)
		s.log.Warnw("Resume rejected by authority", "subscriptionID", id, "error", err)
		return domain.Subscription{}, err
	}

	return s.settle(ctx, userStore, id, server), nil
}

// begin checks transition legality and claims the in-flight marker.
// The legality check runs before the marker is set so an illegal
// request never blocks a legal one.
func (s *subscriptionService) begin(userStore *store.Store, id string, to domain.SubscriptionStatus) (prev, optimistic domain.Subscription, err error) {
	sub, ok := userStore.Subscription(id)
	if !ok {
		return domain.Subscription{}, domain.Subscription{}, domain.ErrNotFound
	}
	if !store.CanTransition(sub.Status, to) {
		return domain.Subscription{}, domain.Subscription{}, domain.NewTransitionError(id, sub.Status, to)
	}
	if err := userStore.BeginTransition(id); err != nil {
		return domain.Subscription{}, domain.Subscription{}, err
	}
	return sub, sub, nil
}

// settle commits the authority's answer, invalidates the cache and
// publishes the lifecycle event.
func (s *subscriptionService) settle(ctx context.Context, userStore *store.Store, id string, server domain.Subscription) domain.Subscription {
	userStore.ReconcileConfirmed(id, server)

	if err := s.cache.InvalidateUserSubscriptions(ctx, server.UserID); err != nil {
		s.log.Warnw("Failed to invalidate subscription cache", "error", err, "userID", server.UserID)
	}

	eventType := events.SubscriptionUpdated
	if server.Status == domain.SubscriptionStatusCancelled || server.Status == domain.SubscriptionStatusExpired {
		eventType = events.SubscriptionDeleted
	}
	s.bus.Publish(events.Event{
		Type:         eventType,
		Subscription: &server,
		ProductIDs:   server.ProductIDs,
	})

	s.log.Infow("Subscription transition settled", "subscriptionID", id, "status", server.Status)
	return server
}
