package metric

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_transitions_total",
			Help: "Total number of successful task state transitions",
		},
		[]string{"op"},
	)

	settlementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskflow_settlement_duration_seconds",
			Help:    "Duration of settlement transfers",
			Buckets: prometheus.DefBuckets,
		},
	)

	settlementFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_settlement_failures_total",
			Help: "Total number of failed settlement transfers",
		},
		[]string{"reason"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_events_published_total",
			Help: "Total number of notifications published",
		},
		[]string{"event"},
	)

	anomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_monitor_anomalies_total",
			Help: "Total number of anomalies flagged by the monitor sweep",
		},
		[]string{"kind"},
	)
)

type Server struct {
	conf *Config
}

type Config struct {
	Port int `default:"4014"`
}

func New(conf *Config) *Server {
	if conf == nil {
		conf = &Config{}
		envconfig.MustProcess("metric", conf)
	}
	return &Server{conf: conf}
}

func (s *Server) Start() error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", s.conf.Port), nil)
}

// RecordTransition records a successful state transition.
func RecordTransition(op string) {
	transitionsTotal.WithLabelValues(op).Inc()
}

// RecordSettlement records the duration of a settlement transfer.
func RecordSettlement(duration time.Duration) {
	settlementDuration.Observe(duration.Seconds())
}

// RecordSettlementFailure records a failed settlement transfer.
func RecordSettlementFailure(reason string) {
	settlementFailures.WithLabelValues(reason).Inc()
}

// RecordEvent records a published notification.
func RecordEvent(event string) {
	eventsPublished.WithLabelValues(event).Inc()
}

// RecordAnomaly records an anomaly flagged by the monitor sweep.
func RecordAnomaly(kind string) {
	anomaliesTotal.WithLabelValues(kind).Inc()
}
