package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Load gate metrics
	LoadsTotal      *prometheus.CounterVec
	AnalyzeDuration prometheus.Histogram
	FetchDuration   prometheus.Histogram
	ModulesActive   prometheus.Gauge

	// Verification cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for JSON API
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalLoads    int64   `json:"total_loads"`
	TotalRejects  int64   `json:"total_rejects"`
	ActiveModules int64   `json:"active_modules"`
	TotalDuration float64 `json:"-"`
	RequestCount  int64   `json:"-"`
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		LoadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_loads_total",
				Help: "Total number of module load attempts by decision",
			},
			[]string{"kind", "decision"},
		),
		AnalyzeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modguard_analyze_duration_seconds",
				Help:    "Static capability analysis duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		FetchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modguard_fetch_duration_seconds",
				Help:    "Module source fetch duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		ModulesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "modguard_modules_active",
				Help: "Number of admitted modules currently loaded",
			},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "modguard_verify_cache_hits_total",
				Help: "Total verification cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "modguard_verify_cache_misses_total",
				Help: "Total verification cache misses",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "modguard_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "modguard_uptime_seconds",
				Help: "Verifier uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordLoad records a module load decision
func (m *Metrics) RecordLoad(kind, decision string) {
	m.LoadsTotal.WithLabelValues(kind, decision).Inc()

	m.mu.Lock()
	m.snapshot.TotalLoads++
	if decision != "ALLOW" {
		m.snapshot.TotalRejects++
	}
	m.mu.Unlock()
}

// ObserveAnalyze records an analysis duration
func (m *Metrics) ObserveAnalyze(d time.Duration) {
	m.AnalyzeDuration.Observe(d.Seconds())
}

// ObserveFetch records a fetch duration
func (m *Metrics) ObserveFetch(d time.Duration) {
	m.FetchDuration.Observe(d.Seconds())
}

// SetModulesActive sets the number of loaded modules
func (m *Metrics) SetModulesActive(count int) {
	m.ModulesActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveModules = int64(count)
	m.mu.Unlock()
}

// IncCacheHits increments verification cache hits
func (m *Metrics) IncCacheHits() {
	m.CacheHits.Inc()
}

// IncCacheMisses increments verification cache misses
func (m *Metrics) IncCacheMisses() {
	m.CacheMisses.Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// GetSnapshot returns current metric values
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
