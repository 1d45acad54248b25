package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/gateway"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// stripeGateway implements gateway.Gateway on top of the Stripe SDK.
type stripeGateway struct {
	client *client.API
	log    *logger.Logger
}

// New creates a Stripe-backed payment gateway
func New(apiKey string, log *logger.Logger) gateway.Gateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeGateway{
		client: sc,
		log:    log,
	}
}

// ConfirmIntent confirms an open payment intent with the given payment
// method. The error taxonomy matters here: callers retry network
// failures and expired intents, and surface declines to the user.
func (g *stripeGateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (gateway.Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
		Params: stripe.Params{
			Context: ctx,
		},
	}

	intent, err := g.client.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		logStripeError(g.log, "ConfirmIntent", err)
		return gateway.Intent{}, mapIntentError(intentID, err)
	}

	g.log.Infow("Payment intent confirmed", "intentID", intent.ID, "status", string(intent.Status))

	return gateway.Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       mapIntentStatus(intent.Status),
	}, nil
}

// CancelSubscription cancels the gateway-side subscription immediately.
func (g *stripeGateway) CancelSubscription(ctx context.Context, externalID string) error {
	params := &stripe.SubscriptionCancelParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}

	_, err := g.client.Subscriptions.Cancel(externalID, params)
	if err != nil {
		// Already gone at the gateway means the goal state is reached.
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			g.log.Warnw("Attempted to cancel already canceled/missing gateway subscription", "externalID", externalID)
			return nil
		}
		logStripeError(g.log, "CancelSubscription", err)
		return fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}

	g.log.Infow("Gateway subscription canceled", "externalID", externalID)
	return nil
}

func mapIntentStatus(s stripe.PaymentIntentStatus) gateway.IntentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return gateway.IntentSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return gateway.IntentProcessing
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return gateway.IntentRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		return gateway.IntentCanceled
	default:
		return gateway.IntentStatus(s)
	}
}

// mapIntentError classifies a Stripe error into the domain payment
// error taxonomy.
func mapIntentError(intentID string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return domain.NewPaymentError(domain.ErrNetwork, "stripe request failed", intentID, err)
	}

	switch stripeErr.Type {
	case stripe.ErrorTypeCard:
		pe := domain.NewPaymentError(domain.ErrGatewayDeclined, stripeErr.Msg, intentID, err)
		pe.DeclineCode = string(stripeErr.DeclineCode)
		return pe
	case stripe.ErrorTypeAPI:
		return domain.NewPaymentError(domain.ErrNetwork, stripeErr.Msg, intentID, err)
	case stripe.ErrorTypeInvalidRequest:
		if stripeErr.Code == stripe.ErrorCodePaymentIntentPaymentAttemptExpired ||
			stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return domain.NewPaymentError(domain.ErrIntentExpired, stripeErr.Msg, intentID, err)
		}
		return domain.NewPaymentError(domain.ErrValidationFailed, stripeErr.Msg, intentID, err)
	default:
		return domain.NewPaymentError(domain.ErrNetwork, stripeErr.Msg, intentID, err)
	}
}

// logStripeError logs the details of a Stripe API failure.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
