// Package metrics adapts the server's observable counters and gauges onto
// Prometheus, exactly as the teacher's metrics/prom/prom.go adapts
// cache.Metrics — same constructor shape (registry + namespace/subsystem +
// const labels, falling back to the default registerer), same "plain
// methods the rest of the program calls into" design. Widened beyond the
// teacher's Hit/Miss/Evict/Size to the gauges this domain's background
// tasks need: AOF queue depth and script-worker queue depth, neither of
// which the teacher's generic cache had a call site for.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Adapter exports every counter/gauge the server's background subsystems
// report into. Safe for concurrent use; every Prometheus metric type is
// goroutine-safe.
type Adapter struct {
	hits   prometheus.Gauge
	misses prometheus.Gauge
	evicts *prometheus.CounterVec

	sizeEntries prometheus.Gauge
	sizeBytes   prometheus.Gauge

	aofQueueDepth    prometheus.Gauge
	scriptQueueDepth prometheus.Gauge
}

// New constructs a Prometheus adapter and registers every metric with reg
// (nil selects prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "hits_total",
			Help: "Cumulative key lookups that found a live value", ConstLabels: constLabels,
		}),
		misses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "misses_total",
			Help: "Cumulative key lookups that found nothing live", ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "evictions_total",
			Help: "Keys removed by a background reclaim pass, by reason", ConstLabels: constLabels,
		}, []string{"reason"}),
		sizeEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "size_entries",
			Help: "Resident key count across every database", ConstLabels: constLabels,
		}),
		sizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "size_bytes",
			Help: "Resident memory accounting total across every database", ConstLabels: constLabels,
		}),
		aofQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "aof_queue_depth",
			Help: "Pending records in the AOF writer's queue", ConstLabels: constLabels,
		}),
		scriptQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "script_queue_depth",
			Help: "Pending EVAL invocations across every scripting worker", ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEntries, a.sizeBytes,
		a.aofQueueDepth, a.scriptQueueDepth)
	return a
}

// SetHitsMisses reports the cumulative hit/miss totals polled from every
// shard's padded atomic counters (spec.md §4.1's "hit/miss counters are a
// pair of padded atomics per shard, read without a lock").
func (a *Adapter) SetHitsMisses(hits, misses int64) {
	a.hits.Set(float64(hits))
	a.misses.Set(float64(misses))
}

// AddEvictTTL records n keys removed by the TTL sweeper in one tick.
func (a *Adapter) AddEvictTTL(n int) { a.evicts.WithLabelValues("ttl").Add(float64(n)) }

// AddEvictMemory records n keys removed by the memory evictor in one tick.
func (a *Adapter) AddEvictMemory(n int) { a.evicts.WithLabelValues("memory").Add(float64(n)) }

// SetSize updates the resident-entry and resident-byte gauges. Called
// periodically (not on every write) since it scans every shard.
func (a *Adapter) SetSize(entries int, bytes int64) {
	a.sizeEntries.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

// AOFQueueGauge returns a func(int) suitable for internal/aof.NewWriter's
// queueGauge parameter.
func (a *Adapter) AOFQueueGauge() func(int) {
	return func(depth int) { a.aofQueueDepth.Set(float64(depth)) }
}

// SetScriptQueueDepth reports the sum of pending jobs across every
// scripting worker's queue.
func (a *Adapter) SetScriptQueueDepth(depth int) { a.scriptQueueDepth.Set(float64(depth)) }
