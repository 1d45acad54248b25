package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSelectionValidate(t *testing.T) {
	sel := NewSelection()
	assert.NoError(t, sel.Validate())

	sel.SelectedProducts = []ProductID{ProductTalk, ProductDrama, ProductTest, ProductJourney}
	assert.NoError(t, sel.Validate())

	sel.SelectedProducts = append(sel.SelectedProducts, ProductID("fifth"))
	assert.ErrorIs(t, sel.Validate(), ErrValidationFailed)

	sel.SelectedProducts = []ProductID{ProductTalk, ProductTalk}
	assert.ErrorIs(t, sel.Validate(), ErrValidationFailed)

	sel.SelectedProducts = []ProductID{ProductTalk}
	sel.BillingCycle = BillingCycle("weekly")
	assert.ErrorIs(t, sel.Validate(), ErrValidationFailed)
}

func TestDiscountCodeAppliesTo(t *testing.T) {
	unscoped := DiscountCode{Code: "ALL"}
	assert.True(t, unscoped.AppliesTo([]ProductID{ProductTalk, ProductJourney}))

	scoped := DiscountCode{Code: "SOME", ApplicableProducts: []ProductID{ProductTalk, ProductDrama}}
	assert.True(t, scoped.AppliesTo([]ProductID{ProductTalk}))
	assert.True(t, scoped.AppliesTo([]ProductID{ProductTalk, ProductDrama}))
	// One uncovered product disqualifies the whole selection.
	assert.False(t, scoped.AppliesTo([]ProductID{ProductTalk, ProductTest}))
}

func TestUsageCounterDerivedValues(t *testing.T) {
	c := UsageCounter{Used: 45, Limit: 60}
	assert.Equal(t, 15, c.Remaining())
	assert.InDelta(t, 75.0, c.Percentage(), 0.001)
	assert.False(t, c.Exhausted())

	c.Used = 60
	assert.Equal(t, 0, c.Remaining())
	assert.True(t, c.Exhausted())

	// Over-limit counters cap at 100% and zero remaining.
	c.Used = 70
	assert.Equal(t, 0, c.Remaining())
	assert.InDelta(t, 100.0, c.Percentage(), 0.001)
}

func TestPaymentErrorTaxonomy(t *testing.T) {
	declined := NewPaymentError(ErrGatewayDeclined, "card declined", "pi_1", nil)
	assert.ErrorIs(t, declined, ErrGatewayDeclined)
	assert.False(t, declined.Retryable())

	network := NewPaymentError(ErrNetwork, "timeout", "pi_1", errors.New("dial tcp"))
	assert.ErrorIs(t, network, ErrNetwork)
	assert.True(t, network.Retryable())

	expired := NewPaymentError(ErrIntentExpired, "intent gone", "pi_1", nil)
	assert.True(t, expired.Retryable())
}

func TestTransitionErrorMatches(t *testing.T) {
	err := NewTransitionError("sub-1", SubscriptionStatusCancelled, SubscriptionStatusActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestSubscriptionEntitlement(t *testing.T) {
	sub := Subscription{
		ProductIDs: []ProductID{ProductTalk, ProductDrama},
		Status:     SubscriptionStatusTrial,
	}
	assert.True(t, sub.Entitled())
	assert.True(t, sub.Covers(ProductTalk))
	assert.False(t, sub.Covers(ProductJourney))

	for _, status := range []SubscriptionStatus{
		SubscriptionStatusPaused, SubscriptionStatusCancelled, SubscriptionStatusExpired,
	} {
		sub.Status = status
		assert.False(t, sub.Entitled(), string(status))
	}
}

func TestQuoteDisplayRounding(t *testing.T) {
	q := Quote{
		FinalPrice:   decimal.NewFromFloat(45.6789),
		Savings:      decimal.NewFromFloat(5.111),
		BillingCycle: BillingCycleMonthly,
	}
	assert.Equal(t, "45.68", q.DisplayFinalPrice().StringFixed(2))
	assert.Equal(t, "5.11", q.DisplaySavings().StringFixed(2))

	annual := Quote{FinalPrice: decimal.NewFromInt(720), BillingCycle: BillingCycleAnnual}
	assert.Equal(t, "60.00", annual.MonthlyEquivalent().StringFixed(2))
}

func TestDiscountCodeExpired(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.False(t, DiscountCode{}.Expired(now))
	assert.False(t, DiscountCode{ValidUntil: &future}.Expired(now))
	assert.True(t, DiscountCode{ValidUntil: &past}.Expired(now))
}
