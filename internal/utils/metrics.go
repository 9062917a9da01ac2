// internal/utils/metrics.go
package utils

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// slot returns the value cell for name, creating it under the write lock.
func (m *MetricsCollector) slot(set map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, ok := set[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = set[name]; !ok {
		v = new(int64)
		set[name] = v
	}
	return v
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// SetGauge sets a gauge metric
func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

// IncGauge increments a gauge metric
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge decrements a gauge metric
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, ok := m.counters[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[name]; !ok {
			h = &Histogram{min: value, max: value}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	if value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}
	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}
	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{"count": h.count, "sum": h.sum, "min": h.min, "max": h.max}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// DeckMetrics records presentation-specific metrics
type DeckMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewDeckMetrics creates a metrics recorder on the global collector
func NewDeckMetrics() *DeckMetrics {
	return &DeckMetrics{
		metrics: GetMetricsCollector(),
		logger:  GetLogger(),
	}
}

// NewDeckMetricsWith is used when a private collector is needed (tests, CLI)
func NewDeckMetricsWith(m *MetricsCollector, l *Logger) *DeckMetrics {
	return &DeckMetrics{metrics: m, logger: l}
}

// Collector returns the underlying collector
func (dm *DeckMetrics) Collector() *MetricsCollector { return dm.metrics }

// RecordAPIRequest records metrics for an API request
func (dm *DeckMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	dm.metrics.IncrementCounter("api_requests_total")
	dm.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	dm.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	dm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordEdit records a document edit; applied is false for no-op edits
func (dm *DeckMetrics) RecordEdit(op string, applied bool) {
	dm.metrics.IncrementCounter("edits_total")
	dm.metrics.IncrementCounter("edits_" + op)
	if !applied {
		dm.metrics.IncrementCounter("edits_noop")
	}
}

// RecordNavigation records a selection change
func (dm *DeckMetrics) RecordNavigation(kind string) {
	dm.metrics.IncrementCounter("navigations_total")
	dm.metrics.IncrementCounter("navigations_" + kind)
}

// RecordBridgeMessage records an embedded-content message
func (dm *DeckMetrics) RecordBridgeMessage(accepted bool) {
	if accepted {
		dm.metrics.IncrementCounter("bridge_messages_accepted")
		return
	}
	dm.metrics.IncrementCounter("bridge_messages_ignored")
}

// RecordSave records a document save
func (dm *DeckMetrics) RecordSave(ok bool, duration time.Duration) {
	dm.metrics.RecordHistogram("save_time_ms", duration.Milliseconds())
	if ok {
		dm.metrics.IncrementCounter("saves_ok")
		return
	}
	dm.metrics.IncrementCounter("saves_failed")
	dm.logger.Warn("Document save failed", map[string]interface{}{"duration_ms": duration.Milliseconds()})
}

// RecordLoad records a document load
func (dm *DeckMetrics) RecordLoad(ok bool, attempts int, duration time.Duration) {
	dm.metrics.AddCounter("load_attempts_total", int64(attempts))
	dm.metrics.RecordHistogram("load_time_ms", duration.Milliseconds())
	if ok {
		dm.metrics.IncrementCounter("loads_ok")
		return
	}
	dm.metrics.IncrementCounter("loads_failed")
}

// SessionOpened updates the live session gauge
func (dm *DeckMetrics) SessionOpened() { dm.metrics.IncGauge("sessions_active") }

// SessionClosed updates the live session gauge
func (dm *DeckMetrics) SessionClosed() { dm.metrics.DecGauge("sessions_active") }

// StartMetricsCollection periodically logs a metrics summary
func (dm *DeckMetrics) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dm.logger.Info("Periodic metrics report", map[string]interface{}{
					"metrics": dm.metrics.GetMetrics(),
				})
			}
		}
	}()
}
