package gateway

import (
	"context"
)

// IntentStatus is the gateway-side state of a payment intent
type IntentStatus string

const (
	IntentSucceeded      IntentStatus = "succeeded"
	IntentProcessing     IntentStatus = "processing"
	IntentRequiresAction IntentStatus = "requires_action"
	IntentCanceled       IntentStatus = "canceled"
)

// Intent is a payment intent as the gateway reports it
type Intent struct {
	ID           string       `json:"id"`
	ClientSecret string       `json:"client_secret"`
	Status       IntentStatus `json:"status"`
}

// Gateway confirms payment intents and tears down gateway-side
// subscriptions. Implementations translate provider errors into the
// domain payment error taxonomy.
type Gateway interface {
	// ConfirmIntent confirms an open payment intent with the given
	// payment method. Declines, expired intents and network failures
	// come back as *domain.PaymentError.
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (Intent, error)

	// CancelSubscription cancels the gateway-side subscription so no
	// further renewal charges occur.
	CancelSubscription(ctx context.Context, externalID string) error
}
