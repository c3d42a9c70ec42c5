package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Flow-related Prometheus metrics. These live in a standalone package to avoid
// import cycles between the flow engine and HTTP packages.

var (
	CallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signon_callbacks_total",
		Help: "Callbacks procesados por provider y resultado",
	}, []string{"provider", "outcome"})

	CallbackLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signon_callback_latency_ms",
		Help:    "Latencia del pipeline de callback en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"provider"})

	DiscoveryRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signon_discovery_refreshes_total",
		Help: "Descargas del documento well-known (cache misses)",
	})

	ChecksRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signon_checks_rejected_total",
		Help: "Checks anti-forgery rechazados por tipo",
	}, []string{"check"})
)

// RegisterFlow registers the flow metrics on the given registry (or default if nil).
func RegisterFlow(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{CallbacksTotal, CallbackLatency, DiscoveryRefreshes, ChecksRejected} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
