package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "breaker"

var (
	// BreakerState is 0 closed, 1 open, 2 half-open.
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: metricsSubsystem,
		Name:      "state",
		Help:      "Current breaker state per downstream target (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "transitions_total",
		Help:      "Breaker state transitions.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "opened_total",
		Help:      "Times a breaker tripped open.",
	}, []string{"target"})

	BreakerRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "rejected_total",
		Help:      "Calls refused while the breaker was open or probing.",
	}, []string{"target"})
)

// RegisterMetrics adds the breaker collectors to reg, tolerating repeat registration.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal, BreakerRejected} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
}
