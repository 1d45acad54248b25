package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spitkorean/billing-service/internal/account"
	"github.com/spitkorean/billing-service/internal/api/rest"
	"github.com/spitkorean/billing-service/internal/api/rest/handlers"
	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/internal/config"
	"github.com/spitkorean/billing-service/internal/discount"
	"github.com/spitkorean/billing-service/internal/events"
	"github.com/spitkorean/billing-service/internal/gateway"
	stripegw "github.com/spitkorean/billing-service/internal/gateway/stripe"
	"github.com/spitkorean/billing-service/internal/kafka"
	"github.com/spitkorean/billing-service/internal/metrics"
	"github.com/spitkorean/billing-service/internal/middleware"
	"github.com/spitkorean/billing-service/internal/repository"
	"github.com/spitkorean/billing-service/internal/service"
	"github.com/spitkorean/billing-service/internal/store"
	"github.com/spitkorean/billing-service/internal/usage"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// App wires every component of the billing service together
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Router  *gin.Engine
	Server  *rest.Server
	Stores  *store.Manager
	Bus     *events.Bus
	Cache   *repository.RedisCacheRepository
	Catalog *catalog.Catalog

	Checkout      service.CheckoutService
	Subscriptions service.SubscriptionService
	Meter         *usage.Meter
	Gateway       gateway.Gateway

	SystemMetrics metrics.SystemMetrics

	kafkaProducer kafka.Producer
	unsubscribers []func()
}

// New builds the application container
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	cat := catalog.Default()

	cache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		return nil, err
	}

	authority := account.NewClient(
		cfg.Account.BaseURL,
		time.Duration(cfg.Account.TimeoutSeconds)*time.Second,
		log,
	)

	stores := store.NewManager(log)
	bus := events.NewBus(log)
	gw := stripegw.New(cfg.Stripe.APIKey, log)

	tz, err := time.LoadLocation(cfg.Usage.DefaultTimezone)
	if err != nil {
		log.Warnw("Unknown timezone in config, falling back to UTC", "tz", cfg.Usage.DefaultTimezone)
		tz = time.UTC
	}

	meter := usage.NewMeter(authority, cache, stores, cat, tz, log)

	checkoutSvc := service.NewCheckoutService(authority, gw, stores, cat, cache, bus, log)
	subscriptionSvc := service.NewSubscriptionService(authority, gw, stores, cache, bus, log)
	validator := discount.NewValidator(authority, stores, log)

	registry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(registry, log)
	systemMetrics := metrics.NewSystemMetrics(registry, log)

	a := &App{
		Config:        cfg,
		Logger:        log,
		Stores:        stores,
		Bus:           bus,
		Cache:         cache,
		Catalog:       cat,
		Checkout:      checkoutSvc,
		Subscriptions: subscriptionSvc,
		Meter:         meter,
		Gateway:       gw,
		SystemMetrics: systemMetrics,
	}

	a.unsubscribers = append(a.unsubscribers, meter.WatchSubscriptionEvents(bus))

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopics(cfg.Kafka.Brokers, log); err != nil {
			log.Errorw("Failed to ensure Kafka topics", "error", err)
			return nil, err
		}
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			return nil, err
		}
		a.kafkaProducer = producer
		a.unsubscribers = append(a.unsubscribers, kafka.Relay(bus, producer, log))
	}

	auth := middleware.NewJWTMiddleware(log, &middleware.DefaultTokenValidator{
		Secret: []byte(cfg.Auth.JWTSecret),
	})

	h := rest.Handlers{
		Catalog:      handlers.NewCatalogHandler(cat, log),
		Selection:    handlers.NewSelectionHandler(stores, cat, log),
		Discount:     handlers.NewDiscountHandler(validator, billingMetrics, log),
		Checkout:     handlers.NewCheckoutHandler(checkoutSvc, stores, billingMetrics, log),
		Subscription: handlers.NewSubscriptionHandler(subscriptionSvc, stores, cat, billingMetrics, log),
		Usage:        handlers.NewUsageHandler(meter, billingMetrics, log),
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.Router = rest.NewRouter(h, auth, registry, log)
	a.Server = rest.NewServer(a.Router, cfg, log)

	systemMetrics.StartRecording(15 * time.Second)

	return a, nil
}

// Close releases every resource the container owns
func (a *App) Close() {
	for _, unsubscribe := range a.unsubscribers {
		unsubscribe()
	}
	a.SystemMetrics.Stop()
	if a.kafkaProducer != nil {
		if err := a.kafkaProducer.Close(); err != nil {
			a.Logger.Warnw("Failed to close Kafka producer", "error", err)
		}
	}
	if err := a.Cache.Close(); err != nil {
		a.Logger.Warnw("Failed to close Redis connection", "error", err)
	}
}
