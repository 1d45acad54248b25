package discount

import (
	"context"
	"strings"
	"time"

	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// Authority validates discount codes server-side. *account.Client
// satisfies it.
type Authority interface {
	ValidateDiscount(ctx context.Context, code string, productIDs []domain.ProductID) (domain.DiscountCode, error)
}

// Validator checks discount codes against the account authority and
// caches accepted terms on the checkout session.
type Validator struct {
	authority Authority
	stores    *store.Manager
	log       *logger.Logger
}

// NewValidator creates a discount validator
func NewValidator(authority Authority, stores *store.Manager, log *logger.Logger) *Validator {
	return &Validator{
		authority: authority,
		stores:    stores,
		log:       log,
	}
}

// Apply validates a code for the user's current selection and, if
// accepted, caches its terms on the session. The authority is the
// source of truth; its rejection reason is passed through unchanged.
func (v *Validator) Apply(ctx context.Context, userID, code string) (domain.DiscountCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.DiscountCode{}, domain.ErrValidationFailed
	}

	userStore := v.stores.ForUser(userID)
	sel := userStore.Selection()
	terms, err := v.authority.ValidateDiscount(ctx, code, sel.SelectedProducts)
	if err != nil {
		v.log.Infow("Discount code rejected", "code", code, "error", err)
		return domain.DiscountCode{}, err
	}

	if err := Check(terms, sel.SelectedProducts, time.Now()); err != nil {
		return domain.DiscountCode{}, err
	}

	userStore.SetDiscountCode(terms)
	v.log.Infow("Discount code applied", "code", code, "rate", terms.DiscountRate.String())
	return terms, nil
}

// Remove drops the cached code from the user's session
func (v *Validator) Remove(userID string) {
	v.stores.ForUser(userID).ClearDiscountCode()
}

// Check re-validates cached terms locally. Used right before checkout
// so a code that expired while the user lingered on the payment step,
// or stopped covering the selection after an edit, fails fast instead
// of reaching the authority.
func Check(terms domain.DiscountCode, productIDs []domain.ProductID, now time.Time) error {
	if terms.Expired(now) {
		return domain.NewDiscountError(terms.Code, domain.DiscountExpired)
	}
	if !terms.AppliesTo(productIDs) {
		return domain.NewDiscountError(terms.Code, domain.DiscountNotApplicable)
	}
	return nil
}
