package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// envelope is the wire format every authority endpoint answers with
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to the context so every
// authority call made on the caller's behalf is authenticated.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client talks to the account authority, the system of record for
// subscriptions, usage counters and discount codes.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates an authority client
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// CreateSubscriptionRequest is the materialization request sent after a
// confirmed payment.
type CreateSubscriptionRequest struct {
	ProductIDs   []domain.ProductID  `json:"product_ids"`
	BillingCycle domain.BillingCycle `json:"billing_cycle"`
	DiscountCode string              `json:"discount_code,omitempty"`
	IntentID     string              `json:"intent_id,omitempty"`
	Trial        bool                `json:"trial,omitempty"`
}

// IntentRequest asks the authority to open a payment intent with the
// gateway on the user's behalf.
type IntentRequest struct {
	ProductIDs       []domain.ProductID  `json:"product_ids"`
	BillingCycle     domain.BillingCycle `json:"billing_cycle"`
	DiscountCode     string              `json:"discount_code,omitempty"`
	Amount           string              `json:"amount"`
	IdempotencyToken string              `json:"idempotency_token"`
}

// IntentRef identifies an open payment intent
type IntentRef struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// ListSubscriptions fetches the authority's copy of the user's
// subscriptions, historical records included.
func (c *Client) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	if err := c.doRetry(ctx, http.MethodGet, "/subscriptions/mine", nil, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// CreateSubscription materializes a subscription after payment
func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (domain.Subscription, error) {
	var sub domain.Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", req, &sub); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// UpdateSubscriptionRequest carries the mutable subscription fields.
// Nil pointers leave a field untouched at the authority.
type UpdateSubscriptionRequest struct {
	CancelAtPeriodEnd *bool `json:"cancel_at_period_end,omitempty"`
}

// UpdateSubscription patches a subscription in place, currently used to
// revert a scheduled period-end cancellation.
func (c *Client) UpdateSubscription(ctx context.Context, id string, req UpdateSubscriptionRequest) (domain.Subscription, error) {
	var sub domain.Subscription
	path := fmt.Sprintf("/subscriptions/%s", id)
	if err := c.do(ctx, http.MethodPut, path, req, &sub); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// CancelSubscription cancels at the authority. With Immediate unset the
// subscription runs to the period end before cancelling.
func (c *Client) CancelSubscription(ctx context.Context, id string, opts domain.CancelOptions) (domain.Subscription, error) {
	var sub domain.Subscription
	path := fmt.Sprintf("/subscriptions/%s/cancel", id)
	if err := c.do(ctx, http.MethodPost, path, opts, &sub); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// PauseSubscription pauses an active subscription
func (c *Client) PauseSubscription(ctx context.Context, id string) (domain.Subscription, error) {
	var sub domain.Subscription
	path := fmt.Sprintf("/subscriptions/%s/pause", id)
	if err := c.do(ctx, http.MethodPost, path, nil, &sub); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// ResumeSubscription resumes a paused subscription
func (c *Client) ResumeSubscription(ctx context.Context, id string) (domain.Subscription, error) {
	var sub domain.Subscription
	path := fmt.Sprintf("/subscriptions/%s/resume", id)
	if err := c.do(ctx, http.MethodPost, path, nil, &sub); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// GetUsage fetches the user's usage counters for the current day
func (c *Client) GetUsage(ctx context.Context) ([]domain.UsageCounter, error) {
	var counters []domain.UsageCounter
	if err := c.doRetry(ctx, http.MethodGet, "/usage", nil, &counters); err != nil {
		return nil, err
	}
	return counters, nil
}

type consumeRequest struct {
	ProductID domain.ProductID `json:"product_id"`
}

// ConsumeUsage atomically increments and checks the daily counter at
// the authority. A counter at its limit comes back as QuotaExceeded.
func (c *Client) ConsumeUsage(ctx context.Context, productID domain.ProductID) (domain.UsageCounter, error) {
	var counter domain.UsageCounter
	if err := c.do(ctx, http.MethodPost, "/usage/consume", consumeRequest{ProductID: productID}, &counter); err != nil {
		return domain.UsageCounter{}, err
	}
	return counter, nil
}

type validateDiscountRequest struct {
	Code       string             `json:"code"`
	ProductIDs []domain.ProductID `json:"product_ids"`
}

// ValidateDiscount checks a code against the authority and returns its
// terms. Rejections carry the authority's reason.
func (c *Client) ValidateDiscount(ctx context.Context, code string, productIDs []domain.ProductID) (domain.DiscountCode, error) {
	var dc domain.DiscountCode
	req := validateDiscountRequest{Code: code, ProductIDs: productIDs}
	if err := c.do(ctx, http.MethodPost, "/discount/validate", req, &dc); err != nil {
		return domain.DiscountCode{}, err
	}
	return dc, nil
}

// CreatePaymentIntent opens a payment intent for the quoted amount. The
// idempotency token makes the call safe to retry after a network error.
func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (IntentRef, error) {
	var ref IntentRef
	if err := c.doRetry(ctx, http.MethodPost, "/payments/intents", req, &ref); err != nil {
		return IntentRef{}, err
	}
	return ref, nil
}

// doRetry wraps do with exponential backoff for transient network
// failures. Only used on calls that are safe to repeat.
func (c *Client) doRetry(ctx context.Context, method, path string, body, out interface{}) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		err := c.do(ctx, method, path, body, out)
		if err != nil && !errors.Is(err, domain.ErrNetwork) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnw("Authority request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: authority returned %d for %s %s", domain.ErrNetwork, resp.StatusCode, method, path)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decoding authority response: %v", domain.ErrNetwork, err)
	}

	if env.Status != "success" {
		return c.mapError(env, resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding authority payload: %w", err)
		}
	}
	return nil
}

// mapError translates authority error codes into domain errors so
// callers can branch with errors.Is.
func (c *Client) mapError(env envelope, httpStatus int) error {
	switch env.Code {
	case "not_found":
		return fmt.Errorf("%w: %s", domain.ErrNotFound, env.Message)
	case "unauthenticated":
		return fmt.Errorf("%w: %s", domain.ErrUnauthenticated, env.Message)
	case "quota_exceeded":
		return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, env.Message)
	case "invalid_transition":
		return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, env.Message)
	case "operation_in_progress":
		return fmt.Errorf("%w: %s", domain.ErrOperationInProgress, env.Message)
	case "validation_failed":
		return fmt.Errorf("%w: %s", domain.ErrValidationFailed, env.Message)
	case "discount_not_found":
		return domain.NewDiscountError(env.Message, domain.DiscountNotFound)
	case "discount_expired":
		return domain.NewDiscountError(env.Message, domain.DiscountExpired)
	case "discount_already_used":
		return domain.NewDiscountError(env.Message, domain.DiscountAlreadyUsed)
	case "discount_not_applicable":
		return domain.NewDiscountError(env.Message, domain.DiscountNotApplicable)
	case "payment_declined":
		return domain.NewPaymentError(domain.ErrGatewayDeclined, env.Message, "", nil)
	case "intent_expired":
		return domain.NewPaymentError(domain.ErrIntentExpired, env.Message, "", nil)
	default:
		return fmt.Errorf("authority error (%d, %s): %s", httpStatus, env.Code, env.Message)
	}
}
