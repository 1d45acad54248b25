package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound record not found
	ErrNotFound = errors.New("record not found")

	// ErrValidationFailed bad input or selection
	ErrValidationFailed = errors.New("validation failed")

	// ErrGatewayDeclined the card or bank rejected the charge
	ErrGatewayDeclined = errors.New("payment declined by gateway")

	// ErrIntentExpired the payment intent is no longer confirmable
	ErrIntentExpired = errors.New("payment intent expired")

	// ErrNetwork a remote call failed before a definitive answer
	ErrNetwork = errors.New("network error")

	// ErrOperationInProgress another transition for the same entity is in flight
	ErrOperationInProgress = errors.New("operation already in progress")

	// ErrInvalidTransition the requested status change is not legal
	ErrInvalidTransition = errors.New("invalid subscription transition")

	// ErrQuotaExceeded the daily usage limit is reached
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrDiscountInvalid the discount code was rejected by the authority
	ErrDiscountInvalid = errors.New("discount code invalid")

	// ErrInvalidConfig catalog or tier configuration is unusable
	ErrInvalidConfig = errors.New("invalid billing configuration")

	// ErrUnauthenticated user is not authenticated
	ErrUnauthenticated = errors.New("unauthenticated")
)

// DiscountReason is the programmatic reason a discount code was rejected
type DiscountReason string

const (
	DiscountNotFound      DiscountReason = "not_found"
	DiscountExpired       DiscountReason = "expired"
	DiscountAlreadyUsed   DiscountReason = "already_used"
	DiscountNotApplicable DiscountReason = "not_applicable"
)

// DiscountError carries the rejection reason for a discount code
type DiscountError struct {
	Code   string
	Reason DiscountReason
}

// Error implements the error interface
func (e *DiscountError) Error() string {
	return fmt.Sprintf("discount code %q rejected: %s", e.Code, e.Reason)
}

// Is lets callers match against ErrDiscountInvalid
func (e *DiscountError) Is(target error) bool {
	return target == ErrDiscountInvalid
}

// NewDiscountError creates a new discount rejection error
func NewDiscountError(code string, reason DiscountReason) *DiscountError {
	return &DiscountError{Code: code, Reason: reason}
}

// PaymentError represents a failed charge attempt
type PaymentError struct {
	Kind        error // one of ErrGatewayDeclined, ErrIntentExpired, ErrValidationFailed, ErrNetwork
	Message     string
	IntentID    string
	DeclineCode string
	OriginalErr error
}

// Error implements the error interface
func (e *PaymentError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("payment error: %s: %v (intent: %s)", e.Message, e.OriginalErr, e.IntentID)
	}
	return fmt.Sprintf("payment error: %s (intent: %s)", e.Message, e.IntentID)
}

// Unwrap returns the original error
func (e *PaymentError) Unwrap() error {
	return e.OriginalErr
}

// Is matches the payment failure kind
func (e *PaymentError) Is(target error) bool {
	return target == e.Kind
}

// Retryable reports whether re-invoking the operation can succeed
func (e *PaymentError) Retryable() bool {
	return e.Kind == ErrNetwork || e.Kind == ErrIntentExpired
}

// NewPaymentError creates a new payment error
func NewPaymentError(kind error, message, intentID string, err error) *PaymentError {
	return &PaymentError{
		Kind:        kind,
		Message:     message,
		IntentID:    intentID,
		OriginalErr: err,
	}
}

// TransitionError reports an illegal subscription status change
type TransitionError struct {
	SubscriptionID string
	From           SubscriptionStatus
	To             SubscriptionStatus
}

// Error implements the error interface
func (e *TransitionError) Error() string {
	return fmt.Sprintf("subscription %s: cannot transition from %s to %s", e.SubscriptionID, e.From, e.To)
}

// Is lets callers match against ErrInvalidTransition
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewTransitionError creates a new illegal-transition error
func NewTransitionError(id string, from, to SubscriptionStatus) *TransitionError {
	return &TransitionError{SubscriptionID: id, From: from, To: to}
}

// ConfigError reports a catalog or tier misconfiguration detected at startup
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("billing configuration error: %s - %s", e.Field, e.Message)
}

// Is lets callers match against ErrInvalidConfig
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}
