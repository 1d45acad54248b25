package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/pricing"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// SelectionHandler manages the checkout selection and its live quote.
// Selection state is per user; every request resolves the caller's own
// store.
type SelectionHandler struct {
	stores  *store.Manager
	catalog *catalog.Catalog
	log     *logger.Logger
}

// NewSelectionHandler creates a selection handler
func NewSelectionHandler(stores *store.Manager, cat *catalog.Catalog, log *logger.Logger) *SelectionHandler {
	return &SelectionHandler{stores: stores, catalog: cat, log: log}
}

// GetSelection returns the current selection with its quote
func (h *SelectionHandler) GetSelection(c *gin.Context) {
	h.respondWithQuote(c)
}

type toggleRequest struct {
	ProductID domain.ProductID `json:"product_id" binding:"required"`
}

// ToggleProduct adds or removes one product
func (h *SelectionHandler) ToggleProduct(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.catalog.Product(req.ProductID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown product"})
		return
	}
	if err := h.stores.ForUser(userID(c)).ToggleProduct(req.ProductID); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.respondWithQuote(c)
}

type setProductsRequest struct {
	ProductIDs []domain.ProductID `json:"product_ids" binding:"required"`
}

// SetProducts replaces the selection
func (h *SelectionHandler) SetProducts(c *gin.Context) {
	var req setProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, id := range req.ProductIDs {
		if _, ok := h.catalog.Product(id); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown product"})
			return
		}
	}
	if err := h.stores.ForUser(userID(c)).SetProducts(req.ProductIDs); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.respondWithQuote(c)
}

type setCycleRequest struct {
	BillingCycle domain.BillingCycle `json:"billing_cycle" binding:"required"`
}

// SetBillingCycle switches between monthly and annual billing
func (h *SelectionHandler) SetBillingCycle(c *gin.Context) {
	var req setCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.stores.ForUser(userID(c)).SetBillingCycle(req.BillingCycle); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.respondWithQuote(c)
}

type setStepRequest struct {
	Step domain.CheckoutStep `json:"step" binding:"required"`
}

// SetStep advances the checkout flow
func (h *SelectionHandler) SetStep(c *gin.Context) {
	var req setStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.stores.ForUser(userID(c)).SetCheckoutStep(req.Step)
	c.JSON(http.StatusOK, gin.H{"step": req.Step})
}

// ClearSelection resets the checkout session
func (h *SelectionHandler) ClearSelection(c *gin.Context) {
	h.stores.ForUser(userID(c)).ClearSelection()
	c.Status(http.StatusNoContent)
}

// GetQuote prices the current selection
func (h *SelectionHandler) GetQuote(c *gin.Context) {
	h.respondWithQuote(c)
}

func (h *SelectionHandler) respondWithQuote(c *gin.Context) {
	sel := h.stores.ForUser(userID(c)).Selection()
	quote, err := pricing.Quote(sel, h.catalog, time.Now())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	body := gin.H{
		"selection":          sel,
		"quote":              quote,
		"final_price":        quote.DisplayFinalPrice(),
		"savings":            quote.DisplaySavings(),
		"monthly_equivalent": quote.MonthlyEquivalent(),
	}
	if bundle, ok := pricing.Bundle(sel, h.catalog); ok {
		body["bundle"] = bundle
	}
	c.JSON(http.StatusOK, body)
}
