package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spitkorean/billing-service/internal/discount"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/metrics"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// DiscountHandler applies and removes discount codes
type DiscountHandler struct {
	validator *discount.Validator
	metrics   metrics.BillingMetrics
	log       *logger.Logger
}

// NewDiscountHandler creates a discount handler
func NewDiscountHandler(validator *discount.Validator, m metrics.BillingMetrics, log *logger.Logger) *DiscountHandler {
	return &DiscountHandler{validator: validator, metrics: m, log: log}
}

type applyDiscountRequest struct {
	Code string `json:"code" binding:"required"`
}

// ApplyDiscount validates a code for the current selection and caches
// its terms on the session.
func (h *DiscountHandler) ApplyDiscount(c *gin.Context) {
	var req applyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	terms, err := h.validator.Apply(requestContext(c), userID(c), req.Code)
	if err != nil {
		var de *domain.DiscountError
		if errors.As(err, &de) {
			h.metrics.IncDiscountRejected(string(de.Reason))
		}
		respondError(c, h.log, err)
		return
	}

	h.metrics.IncDiscountApplied()
	c.JSON(http.StatusOK, gin.H{"discount": terms})
}

// RemoveDiscount drops the cached code
func (h *DiscountHandler) RemoveDiscount(c *gin.Context) {
	h.validator.Remove(userID(c))
	c.Status(http.StatusNoContent)
}
