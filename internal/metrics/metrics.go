// Package metrics defines the Prometheus instrumentation surfaced at
// /metrics: proxy-facing request counters/latency, per-upstream
// observations, cache activity, and health-check failures. Kept
// low-cardinality by design — no per-request identifiers as labels.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total proxy responses by method, status and cache result",
		},
		[]string{"method", "status", "cache"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_request_duration_seconds",
			Help:    "End-to-end proxy request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "cache"},
	)
	upstreamInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proxy_upstream_inflight",
			Help: "In-flight upstream requests by upstream host",
		},
		[]string{"upstream"},
	)
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_upstream_requests_total",
			Help: "Total upstream responses observed by the proxy, by upstream host, method, status",
		},
		[]string{"upstream", "method", "status"},
	)
	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_upstream_request_duration_seconds",
			Help:    "Upstream request duration observed at the proxy, by upstream host and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream", "method"},
	)
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_cache_entries",
			Help: "Current number of entries held in the cache store",
		},
	)
	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_hits_total",
			Help: "Total cache lookups served without contacting upstream",
		},
	)
	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_misses_total",
			Help: "Total cache lookups that required contacting upstream",
		},
	)
	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_evictions_total",
			Help: "Total entries evicted from the cache by LRU pressure",
		},
	)
	healthcheckFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_healthcheck_failures_total",
			Help: "Total failed liveness probes, by service",
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		requestDuration,
		upstreamInflight,
		upstreamRequestsTotal,
		upstreamRequestDuration,
		cacheEntries,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		healthcheckFailuresTotal,
	)
}

func normCacheLabel(v string) string {
	if v == "" {
		return "BYPASS"
	}
	return v
}

// ObserveResponse records one client-facing proxy response.
func ObserveResponse(method string, status int, cache string, dur time.Duration) {
	cache = normCacheLabel(cache)
	requestsTotal.WithLabelValues(method, strconv.Itoa(status), cache).Inc()
	requestDuration.WithLabelValues(method, cache).Observe(dur.Seconds())
}

// ObserveUpstreamResponse records one upstream response as seen by the proxy.
func ObserveUpstreamResponse(upstream, method string, status int, dur time.Duration) {
	if upstream == "" {
		upstream = "unknown"
	}
	upstreamRequestsTotal.WithLabelValues(upstream, method, strconv.Itoa(status)).Inc()
	upstreamRequestDuration.WithLabelValues(upstream, method).Observe(dur.Seconds())
}

// UpstreamInflightInc/Dec track concurrent upstream calls for a given host.
func UpstreamInflightInc(upstream string) { upstreamInflight.WithLabelValues(upstream).Inc() }
func UpstreamInflightDec(upstream string) { upstreamInflight.WithLabelValues(upstream).Dec() }

// CacheHitInc/CacheMissInc record a cache lookup outcome.
func CacheHitInc()  { cacheHitsTotal.Inc() }
func CacheMissInc() { cacheMissesTotal.Inc() }

// CacheEvictionInc records one LRU eviction.
func CacheEvictionInc() { cacheEvictionsTotal.Inc() }

// CacheEntriesSet publishes the current entry count.
func CacheEntriesSet(n int) { cacheEntries.Set(float64(n)) }

// HealthcheckFailureInc records one failed probe for service.
func HealthcheckFailureInc(service string) { healthcheckFailuresTotal.WithLabelValues(service).Inc() }
