package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart mutations by operation.
	CartMutationsTotal *prometheus.CounterVec
	// CartPersistFailuresTotal counts cart snapshots that could not be written to the store.
	CartPersistFailuresTotal prometheus.Counter
	// CheckoutSubmissionsTotal counts place-order outcomes.
	CheckoutSubmissionsTotal *prometheus.CounterVec
	// CatalogCacheTotal counts catalog cache lookups by result.
	CatalogCacheTotal *prometheus.CounterVec
	// OrderAPILatency records order API call latency in milliseconds.
	OrderAPILatency *prometheus.HistogramVec
	// NotificationsTotal counts order notification outcomes.
	NotificationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation.",
		}, []string{"op"}))
		CartPersistFailuresTotal = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_persist_failures_total",
			Help:      "Cart snapshots that failed to persist.",
		}))
		CheckoutSubmissionsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_submissions_total",
			Help:      "Order submissions by outcome.",
		}, []string{"result"}))
		CatalogCacheTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Catalog cache lookups by result.",
		}, []string{"result"}))
		OrderAPILatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_api_duration_ms",
			Help:      "Order API call latency in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"op", "result"}))
		NotificationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_notifications_total",
			Help:      "Order notification outcomes by channel.",
		}, []string{"channel", "result"}))
	})
}

// CountCartMutation records a cart mutation. It is a no-op until metrics are registered.
func CountCartMutation(op string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(op).Inc()
	}
}

// CountCartPersistFailure records a failed cart snapshot write.
func CountCartPersistFailure() {
	if CartPersistFailuresTotal != nil {
		CartPersistFailuresTotal.Inc()
	}
}

// CountCheckoutSubmission records a place-order outcome.
func CountCheckoutSubmission(result string) {
	if CheckoutSubmissionsTotal != nil {
		CheckoutSubmissionsTotal.WithLabelValues(result).Inc()
	}
}

// CountCatalogCache records a catalog cache hit or miss.
func CountCatalogCache(result string) {
	if CatalogCacheTotal != nil {
		CatalogCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveOrderAPI records the latency of an order API call.
func ObserveOrderAPI(op, result string, ms float64) {
	if OrderAPILatency != nil {
		OrderAPILatency.WithLabelValues(op, result).Observe(ms)
	}
}

// CountNotification records a notification delivery outcome.
func CountNotification(channel, result string) {
	if NotificationsTotal != nil {
		NotificationsTotal.WithLabelValues(channel, result).Inc()
	}
}
