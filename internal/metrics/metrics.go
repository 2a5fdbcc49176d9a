package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fittrack"

// Sync holds client-side collectors for the offline queue. A nil *Sync is
// valid and records nothing.
type Sync struct {
	GaugePending       prometheus.Gauge
	CounterEnqueued    *prometheus.CounterVec
	CounterApplied     prometheus.Counter
	CounterSyncFailed  prometheus.Counter
	CounterCompletions *prometheus.CounterVec
}

// NewSync registers the sync collectors on reg.
func NewSync(reg prometheus.Registerer) *Sync {
	factory := promauto.With(reg)
	return &Sync{
		GaugePending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pending_items",
			Help:      "Number of mutations waiting in the sync queue",
		}),
		CounterEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "enqueued_total",
			Help:      "Mutations queued while offline",
		}, []string{"action"}),
		CounterApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "applied_total",
			Help:      "Queued mutations replayed against the remote",
		}),
		CounterSyncFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "failed_total",
			Help:      "Drains aborted by a replay failure",
		}),
		CounterCompletions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workout",
			Name:      "completions_total",
			Help:      "Completion records written, by connectivity at the time",
		}, []string{"mode"}),
	}
}

func (s *Sync) SetPending(n int) {
	if s == nil {
		return
	}
	s.GaugePending.Set(float64(n))
}

func (s *Sync) Enqueued(action string) {
	if s == nil {
		return
	}
	s.CounterEnqueued.WithLabelValues(action).Inc()
}

func (s *Sync) Applied() {
	if s == nil {
		return
	}
	s.CounterApplied.Inc()
}

func (s *Sync) Failed() {
	if s == nil {
		return
	}
	s.CounterSyncFailed.Inc()
}

func (s *Sync) Completion(online bool) {
	if s == nil {
		return
	}
	mode := "offline"
	if online {
		mode = "online"
	}
	s.CounterCompletions.WithLabelValues(mode).Inc()
}

// HTTP holds the record API request collectors.
type HTTP struct {
	CounterRequests     *prometheus.CounterVec
	HistRequestDuration prometheus.Histogram
}

// NewHTTP registers the request collectors on reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	factory := promauto.With(reg)
	return &HTTP{
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "record_api",
			Name:      "requests_total",
			Help:      "The total number of record API requests",
		}, []string{"method", "status"}),
		HistRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "record_api",
			Name:      "request_duration_seconds",
			Help:      "Record API request latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
