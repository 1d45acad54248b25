package store

import (
	"github.com/spitkorean/billing-service/internal/domain"
)

// transition is one edge of the lifecycle state machine
type transition struct {
	From domain.SubscriptionStatus
	To   domain.SubscriptionStatus
}

// validTransitions defines all allowed status changes. Anything absent
// is an InvalidTransition. Cancelled and expired are terminal.
var validTransitions = map[transition]bool{
	{domain.SubscriptionStatusTrial, domain.SubscriptionStatusActive}:     true, // payment succeeds / trial converts
	{domain.SubscriptionStatusTrial, domain.SubscriptionStatusCancelled}:  true, // cancelled during trial
	{domain.SubscriptionStatusTrial, domain.SubscriptionStatusExpired}:    true, // trial lapses without conversion
	{domain.SubscriptionStatusActive, domain.SubscriptionStatusCancelled}: true, // immediate cancel, or period elapses with cancelAtPeriodEnd
	{domain.SubscriptionStatusActive, domain.SubscriptionStatusPaused}:    true, // user pauses
	{domain.SubscriptionStatusActive, domain.SubscriptionStatusExpired}:   true, // period elapses without renewal payment
	{domain.SubscriptionStatusPaused, domain.SubscriptionStatusActive}:    true, // user resumes
	{domain.SubscriptionStatusPaused, domain.SubscriptionStatusCancelled}: true, // cancel while paused
	{domain.SubscriptionStatusPaused, domain.SubscriptionStatusExpired}:   true, // period elapses while paused
}

// CanTransition reports whether a status change is legal
func CanTransition(from, to domain.SubscriptionStatus) bool {
	return validTransitions[transition{from, to}]
}
