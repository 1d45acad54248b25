package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/internal/metrics"
	"github.com/spitkorean/billing-service/internal/service"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// SubscriptionHandler exposes subscription lifecycle operations
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	stores        *store.Manager
	catalog       *catalog.Catalog
	metrics       metrics.BillingMetrics
	log           *logger.Logger
}

// NewSubscriptionHandler creates a subscription handler
func NewSubscriptionHandler(subscriptions service.SubscriptionService, stores *store.Manager, cat *catalog.Catalog, m metrics.BillingMetrics, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, stores: stores, catalog: cat, metrics: m, log: log}
}

// ListSubscriptions refreshes from the authority and returns the user's
// subscriptions, historical ones included.
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	uid := userID(c)
	subs, err := h.subscriptions.Refresh(requestContext(c), uid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscriptions":      subs,
		"total_monthly_cost": h.stores.ForUser(uid).TotalMonthlyCost(h.catalog).StringFixed(2),
	})
}

// CancelSubscription cancels a subscription, at the period end by
// default or immediately when requested.
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	// The body is optional; an empty body means cancel at period end.
	var opts domain.CancelOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sub, err := h.subscriptions.Cancel(requestContext(c), userID(c), c.Param("id"), opts)
	if err != nil {
		h.recordRejection(err)
		respondError(c, h.log, err)
		return
	}

	h.metrics.IncTransition("active", string(sub.Status))
	c.JSON(http.StatusOK, sub)
}

// KeepSubscription reverts a scheduled period-end cancellation
func (h *SubscriptionHandler) KeepSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Keep(requestContext(c), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// PauseSubscription pauses an active subscription
func (h *SubscriptionHandler) PauseSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Pause(requestContext(c), userID(c), c.Param("id"))
	if err != nil {
		h.recordRejection(err)
		respondError(c, h.log, err)
		return
	}
	h.metrics.IncTransition("active", string(sub.Status))
	c.JSON(http.StatusOK, sub)
}

// ResumeSubscription resumes a paused subscription
func (h *SubscriptionHandler) ResumeSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Resume(requestContext(c), userID(c), c.Param("id"))
	if err != nil {
		h.recordRejection(err)
		respondError(c, h.log, err)
		return
	}
	h.metrics.IncTransition("paused", string(sub.Status))
	c.JSON(http.StatusOK, sub)
}

func (h *SubscriptionHandler) recordRejection(err error) {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		h.metrics.IncTransitionRejected(string(te.From), string(te.To))
	}
}
