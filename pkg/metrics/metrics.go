package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Spawn lifecycle metrics
	SpawnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfleet_spawns_total",
			Help: "Total number of ensure-running attempts by outcome",
		},
		[]string{"outcome"},
	)

	SpawnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hubfleet_spawn_duration_seconds",
			Help:    "Time from ensure-running start to a resolved endpoint",
			Buckets: prometheus.DefBuckets,
		},
	)

	StopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfleet_stops_total",
			Help: "Total number of stop requests by outcome",
		},
		[]string{"outcome"},
	)

	ServicesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hubfleet_services_active",
			Help: "Number of sessions with a retained service id",
		},
	)

	// Engine client metrics
	EngineCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfleet_engine_calls_total",
			Help: "Total number of engine API calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	EngineCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hubfleet_engine_call_duration_seconds",
			Help:    "Engine API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Liveness poller metrics
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfleet_polls_total",
			Help: "Total number of liveness polls by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(SpawnsTotal)
	prometheus.MustRegister(SpawnDuration)
	prometheus.MustRegister(StopsTotal)
	prometheus.MustRegister(ServicesActive)
	prometheus.MustRegister(EngineCallsTotal)
	prometheus.MustRegister(EngineCallDuration)
	prometheus.MustRegister(PollsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
