package domain

// MaxSelectedProducts is the bundle ceiling for one checkout
const MaxSelectedProducts = 4

// CheckoutStep is the stage of the checkout session
type CheckoutStep string

const (
	CheckoutStepPlans        CheckoutStep = "plans"
	CheckoutStepPayment      CheckoutStep = "payment"
	CheckoutStepConfirmation CheckoutStep = "confirmation"
)

// Selection is the ephemeral checkout state for one session. It is
// discarded after checkout completes or is abandoned.
type Selection struct {
	SelectedProducts []ProductID   `json:"selected_products"` // ordered, unique, max 4
	BillingCycle     BillingCycle  `json:"billing_cycle"`
	DiscountCode     *DiscountCode `json:"discount_code,omitempty"`
	CheckoutStep     CheckoutStep  `json:"checkout_step"`
}

// NewSelection returns an empty monthly selection at the plans step
func NewSelection() Selection {
	return Selection{
		BillingCycle: BillingCycleMonthly,
		CheckoutStep: CheckoutStepPlans,
	}
}

// Contains reports whether the product is already selected
func (s Selection) Contains(productID ProductID) bool {
	for _, id := range s.SelectedProducts {
		if id == productID {
			return true
		}
	}
	return false
}

// Validate checks the selection invariants (size and uniqueness)
func (s Selection) Validate() error {
	if len(s.SelectedProducts) > MaxSelectedProducts {
		return ErrValidationFailed
	}

	seen := make(map[ProductID]bool, len(s.SelectedProducts))
	for _, id := range s.SelectedProducts {
		if seen[id] {
			return ErrValidationFailed
		}
		seen[id] = true
	}
	if !s.BillingCycle.Valid() {
		return ErrValidationFailed
	}
	return nil
}
