// Package metrics exposes the Prometheus instruments of the ingestion
// consumers and the association manager. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evidence"

// Outcomes recorded for events and associations.
const (
	OutcomeOK         = "ok"
	OutcomeRetry      = "retry"
	OutcomeDeadLetter = "dead_letter"
	OutcomeError      = "error"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	events       *prometheus.CounterVec
	bytesFolded  prometheus.Counter
	associations *prometheus.CounterVec
	partFold     prometheus.Histogram
}

// New registers the instruments on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Ingestion events handled, by kind and outcome",
		}, []string{"kind", "outcome"}),
		bytesFolded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checksum",
			Name:      "bytes_folded_total",
			Help:      "Bytes folded into rolling checksums",
		}),
		associations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "associations_total",
			Help:      "Association requests, by operation and outcome",
		}, []string{"op", "outcome"}),
		partFold: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checksum",
			Name:      "part_fold_seconds",
			Help:      "Time spent reading and hashing one part",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
}

func (m *Metrics) Event(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) BytesFolded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesFolded.Add(float64(n))
}

func (m *Metrics) Association(op, outcome string) {
	if m == nil {
		return
	}
	m.associations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) PartFolded(d time.Duration) {
	if m == nil {
		return
	}
	m.partFold.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
