package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/metrics"
	"github.com/spitkorean/billing-service/internal/usage"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// UsageHandler serves daily usage counters and the consume operation
type UsageHandler struct {
	meter   *usage.Meter
	metrics metrics.BillingMetrics
	log     *logger.Logger
}

// NewUsageHandler creates a usage handler
func NewUsageHandler(meter *usage.Meter, m metrics.BillingMetrics, log *logger.Logger) *UsageHandler {
	return &UsageHandler{meter: meter, metrics: m, log: log}
}

// GetAllUsage returns counters for every entitled product
func (h *UsageHandler) GetAllUsage(c *gin.Context) {
	counters, err := h.meter.GetAllUsage(requestContext(c), userID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": counters})
}

// GetUsage returns the counter for one product with display fields
func (h *UsageHandler) GetUsage(c *gin.Context) {
	productID := domain.ProductID(c.Param("product"))
	counter, err := h.meter.GetUsage(requestContext(c), userID(c), productID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"usage":      counter,
		"remaining":  counter.Remaining(),
		"percentage": counter.Percentage(),
		"exhausted":  counter.Exhausted(),
	})
}

type consumeUsageRequest struct {
	ProductID domain.ProductID `json:"product_id" binding:"required"`
}

// ConsumeUsage spends one unit of the daily quota
func (h *UsageHandler) ConsumeUsage(c *gin.Context) {
	var req consumeUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	counter, err := h.meter.Consume(requestContext(c), userID(c), req.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			h.metrics.IncQuotaExceeded(string(req.ProductID))
		}
		respondError(c, h.log, err)
		return
	}

	h.metrics.IncUsageConsumed(string(req.ProductID))
	c.JSON(http.StatusOK, gin.H{
		"usage":     counter,
		"remaining": counter.Remaining(),
	})
}
