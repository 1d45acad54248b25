package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spitkorean/billing-service/internal/metrics"
	"github.com/spitkorean/billing-service/internal/service"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// CheckoutHandler runs the subscribe flow
type CheckoutHandler struct {
	checkout service.CheckoutService
	stores   *store.Manager
	metrics  metrics.BillingMetrics
	log      *logger.Logger
}

// NewCheckoutHandler creates a checkout handler
func NewCheckoutHandler(checkout service.CheckoutService, stores *store.Manager, m metrics.BillingMetrics, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, stores: stores, metrics: m, log: log}
}

type checkoutRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	Trial           bool   `json:"trial"`
}

// Subscribe prices the selection, charges it and materializes the
// subscription. Trials skip the charge.
func (h *CheckoutHandler) Subscribe(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Trial && req.PaymentMethodID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_method_id is required"})
		return
	}

	uid := userID(c)

	// Record the start with the selection's actual cycle before the
	// service runs; a failed checkout has no quote to read it from.
	cycle := string(h.stores.ForUser(uid).Selection().BillingCycle)
	h.metrics.IncCheckoutStarted(cycle)

	result, err := h.checkout.Subscribe(requestContext(c), service.CheckoutRequest{
		UserID:          uid,
		PaymentMethodID: req.PaymentMethodID,
		Trial:           req.Trial,
	})
	if err != nil {
		h.metrics.IncCheckoutFailed(cycle, failureReason(err))
		respondError(c, h.log, err)
		return
	}

	h.metrics.IncCheckoutCompleted(cycle)
	amount, _ := result.Quote.DisplayFinalPrice().Float64()
	h.metrics.ObserveCheckoutAmount(amount, cycle)

	c.JSON(http.StatusCreated, gin.H{
		"subscription": result.Subscription,
		"quote":        result.Quote,
		"final_price":  result.Quote.DisplayFinalPrice(),
	})
}
