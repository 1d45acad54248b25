package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/spitkorean/billing-service/internal/account"
	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/discount"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/events"
	"github.com/spitkorean/billing-service/internal/gateway"
	"github.com/spitkorean/billing-service/internal/pricing"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/pkg/logger"
)

const confirmAttempts = 3

// CheckoutRequest carries what the payment step collected
type CheckoutRequest struct {
	UserID          string `json:"user_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Trial           bool   `json:"trial"`
}

// CheckoutResult is the outcome of a successful checkout
type CheckoutResult struct {
	Subscription domain.Subscription `json:"subscription"`
	Quote        domain.Quote        `json:"quote"`
}

// CheckoutService runs the subscribe flow: price the selection, open a
// payment intent, confirm it with the gateway and materialize the
// subscription at the authority.
type CheckoutService interface {
	Subscribe(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
	QuoteSelection(ctx context.Context, userID string) (domain.Quote, error)
}

type checkoutService struct {
	authority Authority
	gateway   gateway.Gateway
	stores    *store.Manager
	catalog   *catalog.Catalog
	cache     SubscriptionCache
	bus       *events.Bus
	log       *logger.Logger
}

// NewCheckoutService creates the checkout service
func NewCheckoutService(
	authority Authority,
	gw gateway.Gateway,
	stores *store.Manager,
	cat *catalog.Catalog,
	cache SubscriptionCache,
	bus *events.Bus,
	log *logger.Logger,
) CheckoutService {
	return &checkoutService{
		authority: authority,
		gateway:   gw,
		stores:    stores,
		catalog:   cat,
		cache:     cache,
		bus:       bus,
		log:       log,
	}
}

// QuoteSelection prices the user's current selection
func (s *checkoutService) QuoteSelection(ctx context.Context, userID string) (domain.Quote, error) {
	return pricing.Quote(s.stores.ForUser(userID).Selection(), s.catalog, time.Now())
}

// Subscribe executes the full checkout. Nothing is committed until the
// authority materializes the subscription: a decline or a crash leaves
// no partial state behind, only an unconfirmed intent that expires on
// its own.
func (s *checkoutService) Subscribe(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	userStore := s.stores.ForUser(req.UserID)
	sel := userStore.Selection()
	if len(sel.SelectedProducts) == 0 {
		return CheckoutResult{}, domain.ErrValidationFailed
	}
	if err := sel.Validate(); err != nil {
		return CheckoutResult{}, err
	}

	// The cached discount terms may have gone stale while the user sat
	// on the payment step: the code could be consumed on another device
	// or revoked. Re-fetch from the authority before any money moves;
	// the local check then catches expiry and scope against the final
	// selection.
	if sel.DiscountCode != nil {
		terms, err := s.authority.ValidateDiscount(ctx, sel.DiscountCode.Code, sel.SelectedProducts)
		if err != nil {
			userStore.ClearDiscountCode()
			return CheckoutResult{}, err
		}
		if err := discount.Check(terms, sel.SelectedProducts, time.Now()); err != nil {
			userStore.ClearDiscountCode()
			return CheckoutResult{}, err
		}
		sel.DiscountCode = &terms
		userStore.SetDiscountCode(terms)
	}

	quote, err := pricing.Quote(sel, s.catalog, time.Now())
	if err != nil {
		return CheckoutResult{}, err
	}

	if req.Trial {
		return s.subscribeTrial(ctx, req, sel, quote)
	}

	discountCode := ""
	if sel.DiscountCode != nil {
		discountCode = sel.DiscountCode.Code
	}

	// One idempotency token per checkout attempt: retries of this
	// attempt reuse it, a fresh attempt gets a fresh token.
	token := uuid.New().String()

	intent, err := s.authority.CreatePaymentIntent(ctx, account.IntentRequest{
		ProductIDs:       sel.SelectedProducts,
		BillingCycle:     sel.BillingCycle,
		DiscountCode:     discountCode,
		Amount:           quote.DisplayFinalPrice().String(),
		IdempotencyToken: token,
	})
	if err != nil {
		s.publishFailure(sel, err)
		return CheckoutResult{}, err
	}

	// Past this point the charge may land even if the caller walks
	// away, so the flow must run to a definitive answer.
	ctx = context.WithoutCancel(ctx)

	confirmed, err := s.confirmWithRetry(ctx, intent.ID, req.PaymentMethodID)
	if err != nil {
		s.log.Warnw("Payment confirmation failed", "intentID", intent.ID, "error", err)
		s.publishFailure(sel, err)
		return CheckoutResult{}, err
	}

	sub, err := s.authority.CreateSubscription(ctx, account.CreateSubscriptionRequest{
		ProductIDs:   sel.SelectedProducts,
		BillingCycle: sel.BillingCycle,
		DiscountCode: discountCode,
		IntentID:     confirmed.ID,
	})
	if err != nil {
		// The charge went through but materialization failed. The
		// authority reconciles charged-but-unmaterialized intents; do
		// not fabricate a subscription locally.
		s.log.Errorw("Subscription materialization failed after confirmed payment", "intentID", confirmed.ID, "error", err)
		s.publishFailure(sel, err)
		return CheckoutResult{}, err
	}

	s.commit(ctx, userStore, sub, sel)

	s.log.Infow("Checkout completed",
		"subscriptionID", sub.ID,
		"products", len(sel.SelectedProducts),
		"cycle", sel.BillingCycle,
		"total", quote.DisplayFinalPrice().String(),
	)

	return CheckoutResult{Subscription: sub, Quote: quote}, nil
}

// subscribeTrial starts a trial without charging. The authority sets
// the trial window and converts or expires it later.
func (s *checkoutService) subscribeTrial(ctx context.Context, req CheckoutRequest, sel domain.Selection, quote domain.Quote) (CheckoutResult, error) {
	sub, err := s.authority.CreateSubscription(ctx, account.CreateSubscriptionRequest{
		ProductIDs:   sel.SelectedProducts,
		BillingCycle: sel.BillingCycle,
		Trial:        true,
	})
	if err != nil {
		s.publishFailure(sel, err)
		return CheckoutResult{}, err
	}

	s.commit(ctx, s.stores.ForUser(req.UserID), sub, sel)

	s.log.Infow("Trial started", "subscriptionID", sub.ID, "userID", req.UserID)
	return CheckoutResult{Subscription: sub, Quote: quote}, nil
}

// confirmWithRetry retries only failures the gateway marks retryable.
// A decline is final on the first answer.
func (s *checkoutService) confirmWithRetry(ctx context.Context, intentID, paymentMethodID string) (gateway.Intent, error) {
	var confirmed gateway.Intent

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), confirmAttempts-1), ctx)
	err := backoff.Retry(func() error {
		intent, err := s.gateway.ConfirmIntent(ctx, intentID, paymentMethodID)
		if err != nil {
			var pe *domain.PaymentError
			if errors.As(err, &pe) && pe.Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		confirmed = intent
		return nil
	}, policy)
	if err != nil {
		return gateway.Intent{}, err
	}

	if confirmed.Status != gateway.IntentSucceeded && confirmed.Status != gateway.IntentProcessing {
		return gateway.Intent{}, domain.NewPaymentError(domain.ErrGatewayDeclined, "payment not completed", confirmed.ID, nil)
	}
	return confirmed, nil
}

// commit applies the materialized subscription atomically on the client
// side: cache invalidation, store upsert, session reset, events.
func (s *checkoutService) commit(ctx context.Context, userStore *store.Store, sub domain.Subscription, sel domain.Selection) {
	if err := s.cache.InvalidateUserSubscriptions(ctx, sub.UserID); err != nil {
		s.log.Warnw("Failed to invalidate subscription cache after checkout", "error", err)
	}

	userStore.UpsertSubscription(sub)
	userStore.ClearSelection()

	s.bus.Publish(events.Event{
		Type:         events.PaymentSucceeded,
		Subscription: &sub,
		ProductIDs:   sel.SelectedProducts,
	})
	s.bus.Publish(events.Event{
		Type:         events.SubscriptionUpdated,
		Subscription: &sub,
		ProductIDs:   sub.ProductIDs,
	})
}

func (s *checkoutService) publishFailure(sel domain.Selection, err error) {
	s.bus.Publish(events.Event{
		Type:       events.PaymentFailed,
		ProductIDs: sel.SelectedProducts,
		Err:        err.Error(),
	})
}
