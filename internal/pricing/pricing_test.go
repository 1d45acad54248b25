package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/domain"
)

func selection(cycle domain.BillingCycle, ids ...domain.ProductID) domain.Selection {
	return domain.Selection{
		SelectedProducts: ids,
		BillingCycle:     cycle,
	}
}

func TestQuoteZeroProducts(t *testing.T) {
	cat := catalog.Default()

	q, err := Quote(selection(domain.BillingCycleMonthly), cat, time.Now())
	require.NoError(t, err)

	assert.True(t, q.FinalPrice.IsZero())
	assert.True(t, q.OriginalTotal.IsZero())
	assert.True(t, q.Savings.IsZero())
}

func TestQuoteSingleProduct(t *testing.T) {
	cat := catalog.Default()

	q, err := Quote(selection(domain.BillingCycleMonthly, domain.ProductTalk), cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "30", q.FinalPrice.String())
	assert.True(t, q.BundleDiscountRate.IsZero())
	assert.True(t, q.Savings.IsZero())
}

func TestQuoteTwoProductBundle(t *testing.T) {
	cat := catalog.Default()

	// talk 30 + drama 20 = 50, minus 10% = 45
	q, err := Quote(selection(domain.BillingCycleMonthly, domain.ProductTalk, domain.ProductDrama), cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "45.00", q.DisplayFinalPrice().StringFixed(2))
	assert.Equal(t, "50", q.OriginalTotal.String())
	assert.Equal(t, "5.00", q.DisplaySavings().StringFixed(2))
}

func TestQuoteThreeProductBundle(t *testing.T) {
	cat := catalog.Default()

	// 30 + 20 + 20 = 70, minus 20% = 56
	q, err := Quote(selection(domain.BillingCycleMonthly, domain.ProductTalk, domain.ProductDrama, domain.ProductTest), cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "56.00", q.DisplayFinalPrice().StringFixed(2))
}

func TestQuoteAllInclusiveFlatPrice(t *testing.T) {
	cat := catalog.Default()

	// The four-product tier overrides the sum with a flat 75.
	q, err := Quote(selection(domain.BillingCycleMonthly,
		domain.ProductTalk, domain.ProductDrama, domain.ProductTest, domain.ProductJourney), cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "75.00", q.DisplayFinalPrice().StringFixed(2))
	assert.Equal(t, "100", q.OriginalTotal.String())
	assert.Equal(t, "25.00", q.DisplaySavings().StringFixed(2))
}

func TestQuoteAnnualStacksOnBundle(t *testing.T) {
	cat := catalog.Default()

	// Flat 75 x 12 x 0.8 = 720; savings vs 100 x 12 = 480.
	q, err := Quote(selection(domain.BillingCycleAnnual,
		domain.ProductTalk, domain.ProductDrama, domain.ProductTest, domain.ProductJourney), cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "720.00", q.DisplayFinalPrice().StringFixed(2))
	assert.Equal(t, "480.00", q.DisplaySavings().StringFixed(2))
	assert.True(t, q.AnnualDiscountApplied)
	assert.Equal(t, "60.00", q.MonthlyEquivalent().StringFixed(2))
}

func TestQuoteAnnualTwoProducts(t *testing.T) {
	cat := catalog.Default()

	// 45 x 12 x 0.8 = 432
	q, err := Quote(selection(domain.BillingCycleAnnual, domain.ProductTalk, domain.ProductDrama), cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "432.00", q.DisplayFinalPrice().StringFixed(2))
}

func TestQuoteDiscountCodeAppliesLast(t *testing.T) {
	cat := catalog.Default()

	sel := selection(domain.BillingCycleAnnual,
		domain.ProductTalk, domain.ProductDrama, domain.ProductTest, domain.ProductJourney)
	sel.DiscountCode = &domain.DiscountCode{
		Code:         "WELCOME10",
		DiscountRate: decimal.NewFromFloat(0.10),
	}

	// 720 x 0.9 = 648
	q, err := Quote(sel, cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "648.00", q.DisplayFinalPrice().StringFixed(2))
}

func TestQuoteExpiredCodeSkipped(t *testing.T) {
	cat := catalog.Default()
	past := time.Now().Add(-time.Hour)

	sel := selection(domain.BillingCycleMonthly, domain.ProductTalk, domain.ProductDrama)
	sel.DiscountCode = &domain.DiscountCode{
		Code:         "OLD",
		DiscountRate: decimal.NewFromFloat(0.50),
		ValidUntil:   &past,
	}

	q, err := Quote(sel, cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "45.00", q.DisplayFinalPrice().StringFixed(2))
}

func TestQuoteOutOfScopeCodeSkipped(t *testing.T) {
	cat := catalog.Default()

	sel := selection(domain.BillingCycleMonthly, domain.ProductTalk, domain.ProductDrama)
	sel.DiscountCode = &domain.DiscountCode{
		Code:               "TALKONLY",
		DiscountRate:       decimal.NewFromFloat(0.50),
		ApplicableProducts: []domain.ProductID{domain.ProductTalk},
	}

	// The code does not cover drama, so the whole selection is priced
	// without it.
	q, err := Quote(sel, cat, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "45.00", q.DisplayFinalPrice().StringFixed(2))
}

func TestQuoteIsDeterministic(t *testing.T) {
	cat := catalog.Default()
	now := time.Now()
	sel := selection(domain.BillingCycleAnnual, domain.ProductTalk, domain.ProductDrama, domain.ProductTest)

	first, err := Quote(sel, cat, now)
	require.NoError(t, err)
	second, err := Quote(sel, cat, now)
	require.NoError(t, err)

	assert.True(t, first.FinalPrice.Equal(second.FinalPrice))
	assert.True(t, first.Savings.Equal(second.Savings))
}

func TestQuoteUnknownProduct(t *testing.T) {
	cat := catalog.Default()

	_, err := Quote(selection(domain.BillingCycleMonthly, domain.ProductID("vr-immersion")), cat, time.Now())
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestQuoteRejectsOversizedSelection(t *testing.T) {
	cat := catalog.Default()

	sel := selection(domain.BillingCycleMonthly,
		domain.ProductTalk, domain.ProductDrama, domain.ProductTest, domain.ProductJourney, domain.ProductID("extra"))

	_, err := Quote(sel, cat, time.Now())
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestBundleInfo(t *testing.T) {
	cat := catalog.Default()

	info, ok := Bundle(selection(domain.BillingCycleMonthly, domain.ProductTalk, domain.ProductDrama), cat)
	require.True(t, ok)

	assert.Equal(t, 10, info.DiscountPercentage)
	assert.Equal(t, "50", info.OriginalPrice.String())
	assert.Equal(t, "45.00", info.BundlePrice.StringFixed(2))
	assert.Equal(t, "5.00", info.Savings.StringFixed(2))
}

func TestBundleInfoSingleProduct(t *testing.T) {
	cat := catalog.Default()

	_, ok := Bundle(selection(domain.BillingCycleMonthly, domain.ProductTalk), cat)
	assert.False(t, ok)
}
