package domain

import (
	"time"
)

// SubscriptionStatus is the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// BillingCycle is the renewal period of a subscription
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleAnnual  BillingCycle = "annual"
)

// Valid reports whether the cycle is one the checkout accepts
func (c BillingCycle) Valid() bool {
	return c == BillingCycleMonthly || c == BillingCycleAnnual
}

// Subscription is a persistent record per purchased product or bundle.
// The account authority owns the record; the client holds a read-through
// copy. Cancelled and expired subscriptions are retained for history.
type Subscription struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	ProductIDs         []ProductID        `json:"product_ids"`
	Status             SubscriptionStatus `json:"status"`
	BillingCycle       BillingCycle       `json:"billing_cycle"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	TrialEnd           *time.Time         `json:"trial_end,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	ExternalID         string             `json:"external_id,omitempty"` // gateway-side id
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Covers reports whether the subscription includes the given product
func (s Subscription) Covers(productID ProductID) bool {
	for _, id := range s.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Entitled reports whether the subscription currently grants access
func (s Subscription) Entitled() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrial
}

// CancelOptions controls how a cancellation is executed
type CancelOptions struct {
	Immediate bool   `json:"immediate"`
	Reason    string `json:"reason,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
}
