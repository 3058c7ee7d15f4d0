package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	volatility   *prometheus.GaugeVec
	outcomes     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered with the given registerer, or the
// default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volguard_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "instrument"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volguard_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		volatility: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volguard_predicted_volatility",
				Help: "Last predicted annualized volatility per instrument",
			},
			[]string{"instrument"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volguard_outcomes_total",
				Help: "Pipeline outcomes by stage",
			},
			[]string{"stage", "outcome"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volguard_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, instrument string) {
	r.messagesSent.WithLabelValues(backend, instrument).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordVolatility records the latest estimate for an instrument.
func (r *Recorder) RecordVolatility(instrument string, vol float64) {
	r.volatility.WithLabelValues(instrument).Set(vol)
}

func (r *Recorder) RecordOutcome(stage, outcome string) {
	r.outcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
