package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/domain"
)

// annualMonths and annualDiscount define annual billing: twelve months
// billed up front with a flat 20% discount, applied after the bundle
// discount, before the discount code.
var (
	annualMonths   = decimal.NewFromInt(12)
	annualDiscount = decimal.NewFromFloat(0.8)
	one            = decimal.NewFromInt(1)
)

// Quote prices a selection against the catalog. It is a pure function:
// identical inputs yield identical output. Monetary arithmetic stays
// unrounded; callers round only at the display boundary.
func Quote(sel domain.Selection, cat *catalog.Catalog, now time.Time) (domain.Quote, error) {
	if err := sel.Validate(); err != nil {
		return domain.Quote{}, err
	}

	q := domain.Quote{
		OriginalTotal:      decimal.Zero,
		FinalPrice:         decimal.Zero,
		BundleDiscountRate: decimal.Zero,
		Savings:            decimal.Zero,
		BillingCycle:       sel.BillingCycle,
	}

	// Zero products: every output stays zero, no error.
	if len(sel.SelectedProducts) == 0 {
		return q, nil
	}

	for _, id := range sel.SelectedProducts {
		p, ok := cat.Product(id)
		if !ok {
			return domain.Quote{}, domain.ErrValidationFailed
		}
		q.OriginalTotal = q.OriginalTotal.Add(p.Price)
	}

	// Bundle tier by count. 2 and 3 products discount the sum; the
	// all-inclusive tier replaces the sum with a flat price outright.
	monthly := q.OriginalTotal
	if tier, ok := cat.TierForCount(len(sel.SelectedProducts)); ok {
		q.BundleDiscountRate = tier.DiscountRate
		if tier.HasFixedPrice() {
			monthly = *tier.FixedPrice
		} else {
			monthly = monthly.Mul(one.Sub(tier.DiscountRate))
		}
	}

	// Annual billing: bundle price first, then x12, then x0.8.
	price := monthly
	billedOriginal := q.OriginalTotal
	if sel.BillingCycle == domain.BillingCycleAnnual {
		price = price.Mul(annualMonths).Mul(annualDiscount)
		billedOriginal = billedOriginal.Mul(annualMonths)
		q.AnnualDiscountApplied = true
	}

	// Discount code last. An expired or out-of-scope code is skipped
	// silently; surfacing the rejection is the validator's job.
	if code := sel.DiscountCode; code != nil {
		if !code.Expired(now) && code.AppliesTo(sel.SelectedProducts) {
			price = price.Mul(one.Sub(code.DiscountRate))
		}
	}

	q.FinalPrice = price
	q.Savings = billedOriginal.Sub(price)
	return q, nil
}

// BundleInfo describes the tier applying to a selection, for display
type BundleInfo struct {
	Tier               domain.BundleTier `json:"tier"`
	DiscountPercentage int               `json:"discount_percentage"`
	OriginalPrice      decimal.Decimal   `json:"original_price"`
	BundlePrice        decimal.Decimal   `json:"bundle_price"`
	Savings            decimal.Decimal   `json:"savings"`
}

// Bundle returns tier details for the selection, or false when fewer
// than two products are selected.
func Bundle(sel domain.Selection, cat *catalog.Catalog) (BundleInfo, bool) {
	tier, ok := cat.TierForCount(len(sel.SelectedProducts))
	if !ok {
		return BundleInfo{}, false
	}

	original := decimal.Zero
	for _, id := range sel.SelectedProducts {
		if p, found := cat.Product(id); found {
			original = original.Add(p.Price)
		}
	}

	bundled := original.Mul(one.Sub(tier.DiscountRate))
	if tier.HasFixedPrice() {
		bundled = *tier.FixedPrice
	}

	return BundleInfo{
		Tier:               tier,
		DiscountPercentage: int(tier.DiscountRate.Mul(decimal.NewFromInt(100)).IntPart()),
		OriginalPrice:      original,
		BundlePrice:        bundled,
		Savings:            original.Sub(bundled),
	}, true
}
