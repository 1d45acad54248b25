package domain

import (
	"github.com/shopspring/decimal"
)

// ProductID identifies one of the four learning products
type ProductID string

const (
	ProductTalk    ProductID = "talk"
	ProductDrama   ProductID = "drama"
	ProductTest    ProductID = "test"
	ProductJourney ProductID = "journey"
)

// BillingCategory groups products for reporting
type BillingCategory string

const (
	CategoryConversation BillingCategory = "conversation"
	CategoryGrammar      BillingCategory = "grammar"
	CategoryTest         BillingCategory = "test"
	CategoryReading      BillingCategory = "reading"
)

// Product is an immutable catalog entry
type Product struct {
	ID         ProductID       `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"` // monthly unit price
	DailyLimit int             `json:"daily_limit"`
	Category   BillingCategory `json:"category"`
	Features   []string        `json:"features,omitempty"`
}

// BundleTier is a discount tier keyed by selected-product count.
// Either DiscountRate applies, or FixedPrice overrides the computed
// total outright (the all-inclusive tier).
type BundleTier struct {
	Name         string           `json:"name"`
	MinProducts  int              `json:"min_products"`
	MaxProducts  int              `json:"max_products"`
	DiscountRate decimal.Decimal  `json:"discount_rate"`
	FixedPrice   *decimal.Decimal `json:"fixed_price,omitempty"`
}

// HasFixedPrice reports whether the tier is a flat-price override
func (t BundleTier) HasFixedPrice() bool {
	return t.FixedPrice != nil
}
