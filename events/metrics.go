package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type busMetrics struct {
	eventsTotal    *prometheus.CounterVec
	deliveryErrors *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
}

func newBusMetrics(registry prometheus.Registerer) *busMetrics {
	factory := promauto.With(registry)
	return &busMetrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fractal_events_published_total",
			Help: "Total number of domain events published",
		}, []string{"type"}),
		deliveryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fractal_event_delivery_errors_total",
			Help: "Total number of failed or dropped event deliveries",
		}, []string{"type", "subscriber"}),
		subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fractal_event_subscribers",
			Help: "Current number of event subscribers",
		}, []string{"type", "subscriber"}),
	}
}
