package catalog

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/spitkorean/billing-service/internal/domain"
)

// Catalog is the static, versioned product and bundle-tier definition
// loaded at process start. It is never mutated at runtime.
type Catalog struct {
	products map[domain.ProductID]domain.Product
	order    []domain.ProductID
	tiers    []domain.BundleTier
}

// New builds a catalog from the given products and tiers and validates
// it. An invalid configuration is fatal for quoting; callers must treat
// the error as a startup failure.
func New(products []domain.Product, tiers []domain.BundleTier) (*Catalog, error) {
	c := &Catalog{
		products: make(map[domain.ProductID]domain.Product, len(products)),
		order:    make([]domain.ProductID, 0, len(products)),
		tiers:    tiers,
	}

	for _, p := range products {
		if _, exists := c.products[p.ID]; exists {
			return nil, domain.NewConfigError(string(p.ID), "duplicate product id")
		}
		c.products[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the production catalog: the four learning products
// and the 2/3/4-product bundle tiers.
func Default() *Catalog {
	fixedAll := decimal.NewFromInt(75)

	products := []domain.Product{
		{
			ID:         domain.ProductTalk,
			Name:       "Talk Like You Mean It",
			Price:      decimal.NewFromInt(30),
			DailyLimit: 60,
			Category:   domain.CategoryConversation,
			Features:   []string{"realtime tutor chat", "emotion feedback", "native-language hints", "level-matched dialogue"},
		},
		{
			ID:         domain.ProductDrama,
			Name:       "Drama Builder",
			Price:      decimal.NewFromInt(20),
			DailyLimit: 20,
			Category:   domain.CategoryGrammar,
			Features:   []string{"drama sentence practice", "grammar feedback", "similar sentences", "pronunciation scoring"},
		},
		{
			ID:         domain.ProductTest,
			Name:       "Test & Study",
			Price:      decimal.NewFromInt(20),
			DailyLimit: 20,
			Category:   domain.CategoryTest,
			Features:   []string{"TOPIK mock exams", "generated questions", "weakness analysis", "exam simulation"},
		},
		{
			ID:         domain.ProductJourney,
			Name:       "Korean Journey",
			Price:      decimal.NewFromInt(30),
			DailyLimit: 20,
			Category:   domain.CategoryReading,
			Features:   []string{"hangul to advanced reading", "pronunciation accuracy", "speed control", "staged reading content"},
		},
	}

	tiers := []domain.BundleTier{
		{Name: "two-pick", MinProducts: 2, MaxProducts: 2, DiscountRate: decimal.NewFromFloat(0.10)},
		{Name: "three-pick", MinProducts: 3, MaxProducts: 3, DiscountRate: decimal.NewFromFloat(0.20)},
		{Name: "all-inclusive", MinProducts: 4, MaxProducts: 4, DiscountRate: decimal.NewFromFloat(0.25), FixedPrice: &fixedAll},
	}

	c, err := New(products, tiers)
	if err != nil {
		// The built-in catalog is constant; failing here is a programming error.
		panic(fmt.Sprintf("default catalog invalid: %v", err))
	}
	return c
}

// Product looks up a catalog entry by id
func (c *Catalog) Product(id domain.ProductID) (domain.Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Products returns all entries in definition order
func (c *Catalog) Products() []domain.Product {
	out := make([]domain.Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}

// TierForCount returns the bundle tier applying to the given
// selected-product count. Counts below the first tier have no bundle.
func (c *Catalog) TierForCount(count int) (domain.BundleTier, bool) {
	for _, t := range c.tiers {
		if count >= t.MinProducts && count <= t.MaxProducts {
			return t, true
		}
	}
	return domain.BundleTier{}, false
}

// Tiers returns the configured bundle tiers sorted by MinProducts
func (c *Catalog) Tiers() []domain.BundleTier {
	out := make([]domain.BundleTier, len(c.tiers))
	copy(out, c.tiers)
	sort.Slice(out, func(i, j int) bool { return out[i].MinProducts < out[j].MinProducts })
	return out
}

// validate fails fast on malformed configuration: negative prices or
// limits, overlapping tiers, out-of-range rates, or a fixed price on
// anything but the top tier.
func (c *Catalog) validate() error {
	if len(c.products) == 0 {
		return domain.NewConfigError("products", "catalog is empty")
	}

	for id, p := range c.products {
		if p.Price.Sign() <= 0 {
			return domain.NewConfigError(string(id), "product price must be positive")
		}
		if p.DailyLimit < 0 {
			return domain.NewConfigError(string(id), "daily limit must not be negative")
		}
	}

	one := decimal.NewFromInt(1)
	maxCount := 0
	covered := make(map[int]string)
	for _, t := range c.tiers {
		if t.MinProducts < 2 || t.MaxProducts < t.MinProducts {
			return domain.NewConfigError(t.Name, "tier bounds are malformed")
		}
		if t.DiscountRate.Sign() < 0 || t.DiscountRate.GreaterThan(one) {
			return domain.NewConfigError(t.Name, "discount rate must be within [0,1]")
		}
		if t.HasFixedPrice() && t.FixedPrice.Sign() <= 0 {
			return domain.NewConfigError(t.Name, "fixed price must be positive")
		}
		for n := t.MinProducts; n <= t.MaxProducts; n++ {
			if other, ok := covered[n]; ok {
				return domain.NewConfigError(t.Name, fmt.Sprintf("overlaps tier %q at count %d", other, n))
			}
			covered[n] = t.Name
		}
		if t.MaxProducts > maxCount {
			maxCount = t.MaxProducts
		}
	}

	// Only the all-inclusive (top) tier may carry a flat override price.
	for _, t := range c.tiers {
		if t.HasFixedPrice() && t.MaxProducts != maxCount {
			return domain.NewConfigError(t.Name, "fixed price is only allowed on the top tier")
		}
	}

	return nil
}
