package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountCode holds validated discount terms fetched from the authority.
// An empty ApplicableProducts set means the code applies to every product.
type DiscountCode struct {
	Code               string          `json:"code"`
	DiscountRate       decimal.Decimal `json:"discount_rate"` // 0..1
	ValidUntil         *time.Time      `json:"valid_until,omitempty"`
	ApplicableProducts []ProductID     `json:"applicable_products,omitempty"`
}

// Expired reports whether the code is past its expiry at the given time
func (d DiscountCode) Expired(now time.Time) bool {
	return d.ValidUntil != nil && now.After(*d.ValidUntil)
}

// AppliesTo reports whether the code covers every product in the selection
func (d DiscountCode) AppliesTo(productIDs []ProductID) bool {
	if len(d.ApplicableProducts) == 0 {
		return true
	}

	scope := make(map[ProductID]bool, len(d.ApplicableProducts))
	for _, id := range d.ApplicableProducts {
		scope[id] = true
	}
	for _, id := range productIDs {
		if !scope[id] {
			return false
		}
	}
	return true
}
