package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spitkorean/billing-service/pkg/logger"
)

// BillingMetrics records checkout, lifecycle and usage activity
type BillingMetrics interface {
	IncCheckoutStarted(cycle string)
	IncCheckoutCompleted(cycle string)
	IncCheckoutFailed(cycle string, reason string)
	ObserveCheckoutAmount(amount float64, cycle string)
	IncTransition(from, to string)
	IncTransitionRejected(from, to string)
	IncUsageConsumed(product string)
	IncQuotaExceeded(product string)
	IncDiscountApplied()
	IncDiscountRejected(reason string)
}

type billingMetrics struct {
	log                 *logger.Logger
	checkoutsStarted    *prometheus.CounterVec
	checkoutsStatus     *prometheus.CounterVec
	checkoutAmount      *prometheus.HistogramVec
	transitions         *prometheus.CounterVec
	transitionsRejected *prometheus.CounterVec
	usageConsumed       *prometheus.CounterVec
	quotaExceeded       *prometheus.CounterVec
	discountsApplied    prometheus.Counter
	discountsRejected   *prometheus.CounterVec
}

// NewBillingMetrics registers the billing metric set
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	checkoutsStarted := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkouts_started_total",
			Help: "The total number of started checkouts",
		},
		[]string{"cycle"},
	)

	checkoutsStatus := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkouts_status_total",
			Help: "The total number of finished checkouts by outcome",
		},
		[]string{"status", "cycle", "reason"},
	)

	checkoutAmount := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_checkout_amount",
			Help:    "Checkout amounts distribution in dollars",
			Buckets: prometheus.ExponentialBuckets(10, 2, 7), // 10 .. 640
		},
		[]string{"cycle"},
	)

	transitions := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscription_transitions_total",
			Help: "The total number of settled subscription transitions",
		},
		[]string{"from", "to"},
	)

	transitionsRejected := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscription_transitions_rejected_total",
			Help: "The total number of rejected subscription transitions",
		},
		[]string{"from", "to"},
	)

	usageConsumed := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_usage_consumed_total",
			Help: "The total number of consumed usage units",
		},
		[]string{"product"},
	)

	quotaExceeded := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_quota_exceeded_total",
			Help: "The total number of consume attempts past the daily quota",
		},
		[]string{"product"},
	)

	discountsApplied := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "billing_discounts_applied_total",
			Help: "The total number of accepted discount codes",
		},
	)

	discountsRejected := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_discounts_rejected_total",
			Help: "The total number of rejected discount codes by reason",
		},
		[]string{"reason"},
	)

	return &billingMetrics{
		log:                 log,
		checkoutsStarted:    checkoutsStarted,
		checkoutsStatus:     checkoutsStatus,
		checkoutAmount:      checkoutAmount,
		transitions:         transitions,
		transitionsRejected: transitionsRejected,
		usageConsumed:       usageConsumed,
		quotaExceeded:       quotaExceeded,
		discountsApplied:    discountsApplied,
		discountsRejected:   discountsRejected,
	}
}

func (m *billingMetrics) IncCheckoutStarted(cycle string) {
	m.checkoutsStarted.WithLabelValues(cycle).Inc()
}

func (m *billingMetrics) IncCheckoutCompleted(cycle string) {
	m.checkoutsStatus.WithLabelValues("completed", cycle, "").Inc()
}

func (m *billingMetrics) IncCheckoutFailed(cycle string, reason string) {
	m.checkoutsStatus.WithLabelValues("failed", cycle, reason).Inc()
}

func (m *billingMetrics) ObserveCheckoutAmount(amount float64, cycle string) {
	m.checkoutAmount.WithLabelValues(cycle).Observe(amount)
}

func (m *billingMetrics) IncTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *billingMetrics) IncTransitionRejected(from, to string) {
	m.transitionsRejected.WithLabelValues(from, to).Inc()
}

func (m *billingMetrics) IncUsageConsumed(product string) {
	m.usageConsumed.WithLabelValues(product).Inc()
}

func (m *billingMetrics) IncQuotaExceeded(product string) {
	m.quotaExceeded.WithLabelValues(product).Inc()
}

func (m *billingMetrics) IncDiscountApplied() {
	m.discountsApplied.Inc()
}

func (m *billingMetrics) IncDiscountRejected(reason string) {
	m.discountsRejected.WithLabelValues(reason).Inc()
}
