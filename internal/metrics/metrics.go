// Package metrics provides run metrics and health monitoring for the trades archiver.
// Pipeline runs are counted and timed in memory and, when enabled, served as JSON over
// HTTP together with health checks of the archiver's dependencies.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/johnayoung/go-trades-archiver/internal/config"
	"github.com/johnayoung/go-trades-archiver/internal/logger"
)

// Metric names recorded for pipeline runs
const (
	MetricRuns          = "archiver_runs_total"
	MetricRunFailures   = "archiver_run_failures_total"
	MetricTradesStored  = "archiver_trades_archived_total"
	MetricLastRunRows   = "archiver_last_run_rows"
	MetricLastRunSecs   = "archiver_last_run_duration_seconds"
	MetricLastSuccessTS = "archiver_last_success_timestamp_seconds"
)

// MetricsCollector manages application metrics and health monitoring
type MetricsCollector struct {
	config    config.MetricsConfig
	logger    *logger.ComponentLogger
	server    *http.Server
	listener  net.Listener
	startTime time.Time

	mu      sync.RWMutex
	metrics map[string]Metric
	checks  map[string]HealthChecker
}

// Metric represents a single metric with metadata
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MetricType represents different types of metrics
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// HealthChecker is implemented by dependencies that can report whether they work,
// such as the run ledger
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// MetricsSnapshot represents a snapshot of all metrics at a point in time
type MetricsSnapshot struct {
	Timestamp     time.Time         `json:"timestamp"`
	Uptime        time.Duration     `json:"uptime"`
	Metrics       map[string]Metric `json:"metrics"`
	SystemMetrics SystemMetrics     `json:"system_metrics"`
}

// SystemMetrics represents system-level metrics
type SystemMetrics struct {
	GoroutineCount int    `json:"goroutine_count"`
	NumGC          uint32 `json:"num_gc"`
	HeapAlloc      uint64 `json:"heap_alloc"`
	HeapInuse      uint64 `json:"heap_inuse"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(cfg config.MetricsConfig, loggerMgr *logger.LoggerManager) *MetricsCollector {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}

	return &MetricsCollector{
		config:    cfg,
		logger:    loggerMgr.GetComponentLogger("metrics"),
		startTime: time.Now(),
		metrics:   make(map[string]Metric),
		checks:    make(map[string]HealthChecker),
	}
}

// Start serves the metrics and health endpoints when metrics are enabled
func (mc *MetricsCollector) Start(ctx context.Context) error {
	if !mc.config.Enabled {
		mc.logger.Debug("metrics endpoint disabled")
		return nil
	}

	listener, err := net.Listen("tcp", mc.config.Addr)
	if err != nil {
		return err
	}
	mc.listener = listener

	mc.server = &http.Server{
		Handler:           mc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		mc.logger.Info("metrics HTTP server starting", "addr", listener.Addr().String())
		if err := mc.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mc.logger.Error("metrics HTTP server failed", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the metrics server listens on, or "" when it is not running
func (mc *MetricsCollector) Addr() string {
	if mc.listener == nil {
		return ""
	}
	return mc.listener.Addr().String()
}

// Stop shuts the metrics server down
func (mc *MetricsCollector) Stop(ctx context.Context) error {
	if mc.server == nil {
		return nil
	}
	mc.logger.Info("stopping metrics HTTP server")
	return mc.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for the metrics and health endpoints
func (mc *MetricsCollector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(mc.config.Path, mc.handleMetrics)
	mux.HandleFunc("/health", mc.handleHealth)
	mux.HandleFunc("/debug/metrics", mc.handleDebugMetrics)
	return mux
}

// RegisterHealthChecker adds a dependency to the health endpoint
func (mc *MetricsCollector) RegisterHealthChecker(name string, checker HealthChecker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.checks[name] = checker
}

// RecordCounter increments a counter metric by one
func (mc *MetricsCollector) RecordCounter(name, description string, labels map[string]string) {
	mc.recordMetric(name, MetricTypeCounter, 1, description, labels)
}

// AddCounter increments a counter metric by delta
func (mc *MetricsCollector) AddCounter(name string, delta float64, description string, labels map[string]string) {
	mc.recordMetric(name, MetricTypeCounter, delta, description, labels)
}

// RecordGauge sets a gauge metric
func (mc *MetricsCollector) RecordGauge(name string, value float64, description string, labels map[string]string) {
	mc.recordMetric(name, MetricTypeGauge, value, description, labels)
}

// RecordDuration sets a gauge metric to a duration in seconds
func (mc *MetricsCollector) RecordDuration(name string, duration time.Duration, description string, labels map[string]string) {
	mc.recordMetric(name, MetricTypeGauge, duration.Seconds(), description, labels)
}

// ObserveRun records the outcome of one pipeline run. failureKind is empty for a
// successful run.
func (mc *MetricsCollector) ObserveRun(symbol string, rows int, duration time.Duration, failureKind string) {
	labels := map[string]string{"symbol": symbol}

	mc.RecordCounter(MetricRuns, "Pipeline runs started", labels)
	mc.RecordDuration(MetricLastRunSecs, duration, "Duration of the most recent run", labels)

	if failureKind != "" {
		mc.RecordCounter(metricKey(MetricRunFailures, failureKind), "Pipeline runs that failed, by failure kind",
			map[string]string{"symbol": symbol, "kind": failureKind})
		return
	}

	mc.AddCounter(MetricTradesStored, float64(rows), "Trades written to archive files", labels)
	mc.RecordGauge(MetricLastRunRows, float64(rows), "Trades in the most recent successful run", labels)
	mc.RecordGauge(MetricLastSuccessTS, float64(time.Now().Unix()), "Unix time of the most recent successful run", labels)
}

// metricKey keeps one series per label value under a stable map key
func metricKey(name, label string) string {
	return name + "{" + label + "}"
}

// recordMetric is the internal method for recording metrics
func (mc *MetricsCollector) recordMetric(name string, metricType MetricType, value float64, description string, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()

	existing, exists := mc.metrics[name]
	if exists {
		if metricType == MetricTypeCounter {
			existing.Value += value
		} else {
			existing.Value = value
		}
		existing.UpdatedAt = now
		mc.metrics[name] = existing
		return
	}

	mc.metrics[name] = Metric{
		Name:        strings.SplitN(name, "{", 2)[0],
		Type:        metricType,
		Value:       value,
		Labels:      labels,
		Description: description,
		UpdatedAt:   now,
	}
}

// Value returns the current value of a metric and whether it exists
func (mc *MetricsCollector) Value(name string) (float64, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	m, ok := mc.metrics[name]
	return m.Value, ok
}

// FailureKey returns the map key of the failure counter for kind
func FailureKey(kind string) string {
	return metricKey(MetricRunFailures, kind)
}

// GetSnapshot returns a snapshot of all current metrics
func (mc *MetricsCollector) GetSnapshot() MetricsSnapshot {
	mc.mu.RLock()
	metricsCopy := make(map[string]Metric, len(mc.metrics))
	for k, v := range mc.metrics {
		metricsCopy[k] = v
	}
	mc.mu.RUnlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MetricsSnapshot{
		Timestamp: time.Now(),
		Uptime:    time.Since(mc.startTime),
		Metrics:   metricsCopy,
		SystemMetrics: SystemMetrics{
			GoroutineCount: runtime.NumGoroutine(),
			NumGC:          m.NumGC,
			HeapAlloc:      m.HeapAlloc,
			HeapInuse:      m.HeapInuse,
		},
	}
}

// CheckHealth runs every registered health check
func (mc *MetricsCollector) CheckHealth(ctx context.Context) (bool, map[string]HealthStatus) {
	mc.mu.RLock()
	names := make([]string, 0, len(mc.checks))
	for name := range mc.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthChecker, len(mc.checks))
	for k, v := range mc.checks {
		checks[k] = v
	}
	mc.mu.RUnlock()
	sort.Strings(names)

	healthy := true
	statuses := make(map[string]HealthStatus, len(names))
	for _, name := range names {
		start := time.Now()
		err := checks[name].HealthCheck(ctx)
		status := HealthStatus{Status: "healthy", Duration: time.Since(start)}
		if err != nil {
			healthy = false
			status.Status = "unhealthy"
			status.Error = err.Error()
			mc.logger.ErrorWithContext(ctx, "health check failed", err, "dependency", name)
		}
		statuses[name] = status
	}

	return healthy, statuses
}

// handleMetrics handles the metrics endpoint
func (mc *MetricsCollector) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := mc.GetSnapshot()

	output := make(map[string]interface{}, len(snapshot.Metrics))
	for key, metric := range snapshot.Metrics {
		output[key] = map[string]interface{}{
			"value":       metric.Value,
			"type":        metric.Type,
			"description": metric.Description,
			"labels":      metric.Labels,
			"updated_at":  metric.UpdatedAt,
		}
	}

	writeJSON(w, http.StatusOK, output)
}

// handleHealth handles the health check endpoint
func (mc *MetricsCollector) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy, statuses := mc.CheckHealth(r.Context())

	body := map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now(),
		"uptime":       time.Since(mc.startTime).String(),
		"dependencies": statuses,
	}
	code := http.StatusOK
	if !healthy {
		body["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, body)
}

// handleDebugMetrics provides detailed metrics for debugging
func (mc *MetricsCollector) handleDebugMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mc.GetSnapshot())
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
