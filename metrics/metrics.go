package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the engine's Prometheus instruments. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	fractalsStarted   prometheus.Counter
	fractalsClosed    prometheus.Counter
	roundsClosed      *prometheus.CounterVec
	votesCast         *prometheus.CounterVec
	closeRoundSeconds prometheus.Histogram
	treeCache         *prometheus.CounterVec
}

func NewCollectors(registry prometheus.Registerer) *Collectors {
	factory := promauto.With(registry)
	return &Collectors{
		fractalsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "fractal_fractals_started_total",
			Help: "Total number of fractals started",
		}),
		fractalsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fractal_fractals_closed_total",
			Help: "Total number of fractals that reached their final round",
		}),
		roundsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fractal_rounds_closed_total",
			Help: "Total number of rounds closed, by outcome",
		}, []string{"outcome"}),
		votesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fractal_votes_cast_total",
			Help: "Total number of accepted votes, by kind",
		}, []string{"kind"}),
		closeRoundSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fractal_close_round_duration_seconds",
			Help:    "Time spent closing a round including promotion",
			Buckets: prometheus.DefBuckets,
		}),
		treeCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fractal_tree_cache_requests_total",
			Help: "Closed round tree lookups, by result",
		}, []string{"result"}),
	}
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (c *Collectors) FractalStarted() {
	if c == nil {
		return
	}
	c.fractalsStarted.Inc()
}

func (c *Collectors) FractalClosed() {
	if c == nil {
		return
	}
	c.fractalsClosed.Inc()
}

// RoundClosed records a close; outcome is "promoted" or "terminated".
func (c *Collectors) RoundClosed(outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.roundsClosed.WithLabelValues(outcome).Inc()
	c.closeRoundSeconds.Observe(took.Seconds())
}

// VoteCast kind is "proposal", "comment" or "representative".
func (c *Collectors) VoteCast(kind string) {
	if c == nil {
		return
	}
	c.votesCast.WithLabelValues(kind).Inc()
}

func (c *Collectors) TreeCacheHit() {
	if c == nil {
		return
	}
	c.treeCache.WithLabelValues("hit").Inc()
}

func (c *Collectors) TreeCacheMiss() {
	if c == nil {
		return
	}
	c.treeCache.WithLabelValues("miss").Inc()
}
