// Package prometheus exports database metrics to Prometheus.
//
//	obs := prometheus.NewObserver(prom.DefaultRegisterer)
//	db, err := linkdb.Open(dir, linkdb.WithMetricsObserver(obs))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/linkdb"
)

var _ linkdb.MetricsObserver = (*Observer)(nil)

// Observer implements linkdb.MetricsObserver with Prometheus collectors.
type Observer struct {
	opLatency    *prometheus.HistogramVec
	loadedBytes  prometheus.Counter
	evictions    *prometheus.CounterVec
	evictedBytes prometheus.Counter
	savedPages   prometheus.Counter
	backupBytes  prometheus.Counter
	memory       prometheus.Gauge
	budget       prometheus.Gauge
	overBudget   prometheus.Counter
}

// NewObserver creates an Observer and registers its collectors with reg.
// A nil reg leaves the collectors unregistered.
func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkdb_operation_latency_seconds",
			Help:    "Latency of load, save and backup operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		loadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdb_loaded_bytes_total",
			Help: "Bytes decoded by link loads",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkdb_evictions_total",
			Help: "Links unloaded by the eviction sweep",
		}, []string{"status"}),
		evictedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdb_evicted_bytes_total",
			Help: "Bytes released by the eviction sweep",
		}),
		savedPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdb_saved_pages_total",
			Help: "Pages written by save passes",
		}),
		backupBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdb_backup_bytes_total",
			Help: "Archive bytes written by backups",
		}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkdb_memory_bytes",
			Help: "Bytes held by loaded links",
		}),
		budget: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkdb_memory_budget_bytes",
			Help: "Configured memory budget",
		}),
		overBudget: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkdb_over_budget_total",
			Help: "Sweeps that ended above the memory budget",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			o.opLatency,
			o.loadedBytes,
			o.evictions,
			o.evictedBytes,
			o.savedPages,
			o.backupBytes,
			o.memory,
			o.budget,
			o.overBudget,
		)
	}
	return o
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (o *Observer) OnLoad(d time.Duration, bytes int64, err error) {
	o.opLatency.WithLabelValues("load", status(err)).Observe(d.Seconds())
	if err == nil {
		o.loadedBytes.Add(float64(bytes))
	}
}

func (o *Observer) OnEvict(bytes int64, err error) {
	o.evictions.WithLabelValues(status(err)).Inc()
	if err == nil {
		o.evictedBytes.Add(float64(bytes))
	}
}

func (o *Observer) OnSave(d time.Duration, pages int, err error) {
	o.opLatency.WithLabelValues("save", status(err)).Observe(d.Seconds())
	if err == nil {
		o.savedPages.Add(float64(pages))
	}
}

func (o *Observer) OnBackup(d time.Duration, bytes int64, err error) {
	o.opLatency.WithLabelValues("backup", status(err)).Observe(d.Seconds())
	o.backupBytes.Add(float64(bytes))
}

// OnMemory is only reported when a sweep could not get under budget.
func (o *Observer) OnMemory(current, budget int64) {
	o.memory.Set(float64(current))
	o.budget.Set(float64(budget))
	if current > budget {
		o.overBudget.Inc()
	}
}
