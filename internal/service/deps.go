package service

import (
	"context"

	"github.com/spitkorean/billing-service/internal/account"
	"github.com/spitkorean/billing-service/internal/domain"
)

// Authority is the slice of the account authority the billing services
// depend on. *account.Client satisfies it.
type Authority interface {
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	CreateSubscription(ctx context.Context, req account.CreateSubscriptionRequest) (domain.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, req account.UpdateSubscriptionRequest) (domain.Subscription, error)
	CancelSubscription(ctx context.Context, id string, opts domain.CancelOptions) (domain.Subscription, error)
	PauseSubscription(ctx context.Context, id string) (domain.Subscription, error)
	ResumeSubscription(ctx context.Context, id string) (domain.Subscription, error)
	CreatePaymentIntent(ctx context.Context, req account.IntentRequest) (account.IntentRef, error)
	ValidateDiscount(ctx context.Context, code string, productIDs []domain.ProductID) (domain.DiscountCode, error)
}

// SubscriptionCache caches the authority's subscription lists.
// *repository.RedisCacheRepository satisfies it.
type SubscriptionCache interface {
	CacheUserSubscriptions(ctx context.Context, userID string, subs []domain.Subscription) error
	GetCachedUserSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error)
	InvalidateUserSubscriptions(ctx context.Context, userID string) error
}
