package domain

import (
	"github.com/shopspring/decimal"
)

// Quote is the priced outcome of a selection
type Quote struct {
	OriginalTotal         decimal.Decimal `json:"original_total"` // monthly sum of list prices
	FinalPrice            decimal.Decimal `json:"final_price"`    // billed amount for the chosen cycle
	BundleDiscountRate    decimal.Decimal `json:"bundle_discount_rate"`
	AnnualDiscountApplied bool            `json:"annual_discount_applied"`
	Savings               decimal.Decimal `json:"savings"` // vs the undiscounted billed-cycle total
	BillingCycle          BillingCycle    `json:"billing_cycle"`
}

// DisplayFinalPrice rounds the billed amount to two decimal places.
// Rounding happens only here, never mid-calculation.
func (q Quote) DisplayFinalPrice() decimal.Decimal {
	return q.FinalPrice.Round(2)
}

// DisplaySavings rounds the savings figure to two decimal places
func (q Quote) DisplaySavings() decimal.Decimal {
	return q.Savings.Round(2)
}

// MonthlyEquivalent returns the per-month cost of an annual quote
func (q Quote) MonthlyEquivalent() decimal.Decimal {
	if q.BillingCycle != BillingCycleAnnual {
		return q.FinalPrice.Round(2)
	}
	return q.FinalPrice.Div(decimal.NewFromInt(12)).Round(2)
}
