package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spitkorean/billing-service/internal/api/rest/handlers"
	"github.com/spitkorean/billing-service/internal/middleware"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Catalog      *handlers.CatalogHandler
	Selection    *handlers.SelectionHandler
	Discount     *handlers.DiscountHandler
	Checkout     *handlers.CheckoutHandler
	Subscription *handlers.SubscriptionHandler
	Usage        *handlers.UsageHandler
}

// NewRouter builds the Gin engine with all routes mounted
func NewRouter(h Handlers, auth *middleware.JWTMiddleware, registry *prometheus.Registry, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")

	// The catalog is public; everything else acts on the caller's data.
	v1.GET("/catalog", h.Catalog.GetCatalog)

	authed := v1.Group("")
	authed.Use(auth.RequireAuth())
	{
		authed.GET("/selection", h.Selection.GetSelection)
		authed.PUT("/selection/products", h.Selection.SetProducts)
		authed.POST("/selection/toggle", h.Selection.ToggleProduct)
		authed.PUT("/selection/cycle", h.Selection.SetBillingCycle)
		authed.PUT("/selection/step", h.Selection.SetStep)
		authed.DELETE("/selection", h.Selection.ClearSelection)
		authed.GET("/quote", h.Selection.GetQuote)

		authed.POST("/discount", h.Discount.ApplyDiscount)
		authed.DELETE("/discount", h.Discount.RemoveDiscount)

		authed.POST("/checkout", h.Checkout.Subscribe)

		authed.GET("/subscriptions", h.Subscription.ListSubscriptions)
		authed.POST("/subscriptions/:id/cancel", h.Subscription.CancelSubscription)
		authed.POST("/subscriptions/:id/keep", h.Subscription.KeepSubscription)
		authed.POST("/subscriptions/:id/pause", h.Subscription.PauseSubscription)
		authed.POST("/subscriptions/:id/resume", h.Subscription.ResumeSubscription)

		authed.GET("/usage", h.Usage.GetAllUsage)
		authed.GET("/usage/:product", h.Usage.GetUsage)
		authed.POST("/usage/consume", h.Usage.ConsumeUsage)
	}

	return router
}
