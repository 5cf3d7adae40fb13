package spacebee

import "github.com/prometheus/client_golang/prometheus"
import "github.com/prometheus/client_golang/prometheus/promauto"

// Metrics are the prometheus collectors a DB reports to.
type Metrics struct {
	CacheHit        prometheus.Counter
	CacheMiss       prometheus.Counter
	RecordsAppended prometheus.Counter
	BatchFlushes    prometheus.Counter
	OpenSessions    prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHit: f.NewCounter(prometheus.CounterOpts{
			Name: "spacebee_node_cache_hits_total",
			Help: "node records served from a session cache",
		}),
		CacheMiss: f.NewCounter(prometheus.CounterOpts{
			Name: "spacebee_node_cache_misses_total",
			Help: "node records read from the log",
		}),
		RecordsAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "spacebee_records_appended_total",
			Help: "records appended by batch flushes, header included",
		}),
		BatchFlushes: f.NewCounter(prometheus.CounterOpts{
			Name: "spacebee_batch_flushes_total",
			Help: "batches flushed to the log",
		}),
		OpenSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "spacebee_open_sessions",
			Help: "log sessions held by open views",
		}),
	}
}

// used when Options.Metrics is nil
var defaultMetrics = NewMetrics(nil)
