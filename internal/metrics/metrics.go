package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimerMetric captures timing information for one operation.
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateMetric captures success/error counts for one operation.
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	minTimeMs   int64
	maxTimeMs   int64
}

type errorRate struct {
	total  int64
	errors int64
}

// Metrics is an in-process collector for operation counters, timers, error
// rates and component health, exposed at /metrics.
type Metrics struct {
	mu         sync.RWMutex
	counters   map[string]*int64
	gauges     map[string]*int64
	timers     map[string]*timer
	errorRates map[string]*errorRate
	health     map[string]*int64
	startTime  time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		timers:     make(map[string]*timer),
		errorRates: make(map[string]*errorRate),
		health:     make(map[string]*int64),
		startTime:  time.Now(),
	}
}

// IncrementCounter increments a counter by 1.
func (m *Metrics) IncrementCounter(name string) {
	atomic.AddInt64(m.counter(name), 1)
}

// SetGauge sets a gauge to a specific value.
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.Lock()
	gauge, ok := m.gauges[name]
	if !ok {
		gauge = new(int64)
		m.gauges[name] = gauge
	}
	m.mu.Unlock()
	atomic.StoreInt64(gauge, value)
}

// RecordTimer records one duration measurement for an operation.
func (m *Metrics) RecordTimer(name string, durationMs int64) {
	m.mu.Lock()
	t, ok := m.timers[name]
	if !ok {
		t = &timer{minTimeMs: int64(^uint64(0) >> 1)}
		m.timers[name] = t
	}
	m.mu.Unlock()

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalTimeMs, durationMs)

	for {
		min := atomic.LoadInt64(&t.minTimeMs)
		if durationMs >= min || atomic.CompareAndSwapInt64(&t.minTimeMs, min, durationMs) {
			break
		}
	}
	for {
		max := atomic.LoadInt64(&t.maxTimeMs)
		if durationMs <= max || atomic.CompareAndSwapInt64(&t.maxTimeMs, max, durationMs) {
			break
		}
	}
}

// RecordSuccess records a successful operation for error rate tracking.
func (m *Metrics) RecordSuccess(name string) {
	m.recordOutcome(name, false)
}

// RecordError records a failed operation for error rate tracking.
func (m *Metrics) RecordError(name string) {
	m.recordOutcome(name, true)
}

// SetHealth sets the health status of a component.
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	m.mu.Lock()
	h, ok := m.health[component]
	if !ok {
		h = new(int64)
		m.health[component] = h
	}
	m.mu.Unlock()

	var value int64
	if isHealthy {
		value = 1
	}
	atomic.StoreInt64(h, value)
}

func (m *Metrics) counter(name string) *int64 {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; !ok {
		c = new(int64)
		m.counters[name] = c
	}
	return c
}

func (m *Metrics) recordOutcome(name string, isError bool) {
	m.mu.Lock()
	er, ok := m.errorRates[name]
	if !ok {
		er = &errorRate{}
		m.errorRates[name] = er
	}
	m.mu.Unlock()

	atomic.AddInt64(&er.total, 1)
	if isError {
		atomic.AddInt64(&er.errors, 1)
	}
}

// GetCounters returns a snapshot of all counters.
func (m *Metrics) GetCounters() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		counters[name] = atomic.LoadInt64(c)
	}
	return counters
}

// GetGauges returns a snapshot of all gauges.
func (m *Metrics) GetGauges() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gauges := make(map[string]int64, len(m.gauges))
	for name, g := range m.gauges {
		gauges[name] = atomic.LoadInt64(g)
	}
	return gauges
}

// GetTimers returns a snapshot of all timers.
func (m *Metrics) GetTimers() map[string]TimerMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	timers := make(map[string]TimerMetric, len(m.timers))
	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalTimeMs)

		var average float64
		if count > 0 {
			average = float64(total) / float64(count)
		}

		timers[name] = TimerMetric{
			Count:         count,
			TotalTimeMs:   total,
			AverageTimeMs: average,
			MinTimeMs:     atomic.LoadInt64(&t.minTimeMs),
			MaxTimeMs:     atomic.LoadInt64(&t.maxTimeMs),
		}
	}
	return timers
}

// GetErrorRates returns a snapshot of all error rates.
func (m *Metrics) GetErrorRates() map[string]ErrorRateMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rates := make(map[string]ErrorRateMetric, len(m.errorRates))
	for name, er := range m.errorRates {
		total := atomic.LoadInt64(&er.total)
		errs := atomic.LoadInt64(&er.errors)

		var rate float64
		if total > 0 {
			rate = float64(errs) / float64(total) * 100.0
		}

		rates[name] = ErrorRateMetric{Total: total, Errors: errs, ErrorRate: rate}
	}
	return rates
}

// GetHealthChecks returns a snapshot of component health.
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	checks := make(map[string]bool, len(m.health))
	for name, h := range m.health {
		checks[name] = atomic.LoadInt64(h) > 0
	}
	return checks
}

// GetUptimeSeconds returns the service uptime in seconds.
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns all metrics in a structured format.
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"timers":         m.GetTimers(),
		"error_rates":    m.GetErrorRates(),
		"health_checks":  m.GetHealthChecks(),
	}
}
