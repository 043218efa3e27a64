package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linesmerrill/benefits-access-api/models"
)

// OutcomeOK is recorded for operations that completed without an error kind
const OutcomeOK = "ok"

// RequestTrace is the timing and outcome of a single request
type RequestTrace struct {
	RequestID string        `json:"requestId"`
	Method    string        `json:"method"`
	Route     string        `json:"route"`
	Status    int           `json:"status"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Operation string        `json:"operation,omitempty"`
	Outcome   string        `json:"outcome,omitempty"`
}

// RouteMetrics aggregates traces of one method and route template
type RouteMetrics struct {
	Method      string        `json:"method"`
	Route       string        `json:"route"`
	Count       int64         `json:"count"`
	ErrorCount  int64         `json:"errorCount"`
	TotalTime   time.Duration `json:"totalTime"`
	AvgTime     time.Duration `json:"avgTime"`
	MinTime     time.Duration `json:"minTime"`
	MaxTime     time.Duration `json:"maxTime"`
	P50Time     time.Duration `json:"p50Time"`
	P95Time     time.Duration `json:"p95Time"`
	LastRequest time.Time     `json:"lastRequest"`
}

// MetricsCollector aggregates request traces and operation outcomes in memory.
// Traces are queued on a buffered channel and dropped when it is full, so recording never
// blocks a request.
type MetricsCollector struct {
	mu           sync.RWMutex
	traces       []RequestTrace
	maxTraces    int
	routeMetrics map[string]*RouteMetrics
	outcomes     map[string]map[string]int64
	windowStart  time.Time
	total        int64
	errors       int64

	traceChan chan RequestTrace
	stopOnce  sync.Once
	stopChan  chan struct{}
}

// NewMetricsCollector starts a collector keeping at most maxTraces recent traces
func NewMetricsCollector(maxTraces int) *MetricsCollector {
	if maxTraces <= 0 {
		maxTraces = 1000
	}
	mc := &MetricsCollector{
		traces:       make([]RequestTrace, 0, maxTraces),
		maxTraces:    maxTraces,
		routeMetrics: make(map[string]*RouteMetrics),
		outcomes:     make(map[string]map[string]int64),
		windowStart:  time.Now(),
		traceChan:    make(chan RequestTrace, 1000),
		stopChan:     make(chan struct{}),
	}
	go mc.processTraces()
	return mc
}

// Stop ends the background processor. Traces recorded afterwards are dropped.
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopChan) })
}

// RecordTrace queues a trace without blocking
func (mc *MetricsCollector) RecordTrace(trace RequestTrace) {
	select {
	case mc.traceChan <- trace:
	default:
	}
}

func (mc *MetricsCollector) processTraces() {
	for {
		select {
		case trace := <-mc.traceChan:
			mc.processTrace(trace)
		case <-mc.stopChan:
			return
		}
	}
}

func (mc *MetricsCollector) processTrace(trace RequestTrace) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.traces) >= mc.maxTraces {
		mc.traces = mc.traces[1:]
	}
	mc.traces = append(mc.traces, trace)

	key := trace.Method + " " + trace.Route
	m, ok := mc.routeMetrics[key]
	if !ok {
		m = &RouteMetrics{Method: trace.Method, Route: trace.Route, MinTime: trace.Duration}
		mc.routeMetrics[key] = m
	}
	m.Count++
	m.TotalTime += trace.Duration
	m.AvgTime = m.TotalTime / time.Duration(m.Count)
	m.LastRequest = trace.StartTime
	if trace.Duration < m.MinTime {
		m.MinTime = trace.Duration
	}
	if trace.Duration > m.MaxTime {
		m.MaxTime = trace.Duration
	}
	mc.total++
	if trace.Status >= 500 {
		m.ErrorCount++
		mc.errors++
	}

	if trace.Operation != "" {
		byOutcome, ok := mc.outcomes[trace.Operation]
		if !ok {
			byOutcome = make(map[string]int64)
			mc.outcomes[trace.Operation] = byOutcome
		}
		byOutcome[trace.Outcome]++
	}

	// percentiles are recomputed every 50 requests per route
	if m.Count%50 == 0 {
		mc.calculatePercentiles(key, m)
	}
}

func (mc *MetricsCollector) calculatePercentiles(key string, m *RouteMetrics) {
	var durations []time.Duration
	for _, t := range mc.traces {
		if t.Method+" "+t.Route == key {
			durations = append(durations, t.Duration)
		}
	}
	if len(durations) == 0 {
		return
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	m.P50Time = durations[len(durations)*50/100]
	m.P95Time = durations[len(durations)*95/100]
}

// Outcomes returns a copy of the outcome counters keyed by operation then outcome
func (mc *MetricsCollector) Outcomes() map[string]map[string]int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make(map[string]map[string]int64, len(mc.outcomes))
	for op, byOutcome := range mc.outcomes {
		c := make(map[string]int64, len(byOutcome))
		for k, v := range byOutcome {
			c[k] = v
		}
		out[op] = c
	}
	return out
}

// GetTraces returns up to limit of the most recent traces, oldest first
func (mc *MetricsCollector) GetTraces(limit int) []RequestTrace {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	start := len(mc.traces) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	out := make([]RequestTrace, len(mc.traces)-start)
	copy(out, mc.traces[start:])
	return out
}

// GetSlowestRoutes returns routes ordered by average latency, slowest first
func (mc *MetricsCollector) GetSlowestRoutes(limit, offset int) []RouteMetrics {
	mc.mu.RLock()
	routes := make([]RouteMetrics, 0, len(mc.routeMetrics))
	for _, m := range mc.routeMetrics {
		routes = append(routes, *m)
	}
	mc.mu.RUnlock()

	sort.Slice(routes, func(i, j int) bool { return routes[i].AvgTime > routes[j].AvgTime })
	if offset >= len(routes) {
		return []RouteMetrics{}
	}
	end := offset + limit
	if limit <= 0 || end > len(routes) {
		end = len(routes)
	}
	return routes[offset:end]
}

// GetSummary returns totals since the collector started
func (mc *MetricsCollector) GetSummary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var errorRate, rps float64
	if mc.total > 0 {
		errorRate = float64(mc.errors) / float64(mc.total)
	}
	if elapsed := time.Since(mc.windowStart).Seconds(); elapsed > 0 {
		rps = float64(mc.total) / elapsed
	}
	return map[string]interface{}{
		"totalRequests": mc.total,
		"totalErrors":   mc.errors,
		"errorRate":     errorRate,
		"rps":           rps,
		"since":         mc.windowStart,
		"routeCount":    len(mc.routeMetrics),
		"traceCount":    len(mc.traces),
	}
}

type requestTraceContextKey struct{}

type requestTraceContext struct {
	mu    sync.Mutex
	trace *RequestTrace
}

// WithRequestTrace attaches a trace under construction to ctx
func WithRequestTrace(ctx context.Context, trace *RequestTrace) context.Context {
	return context.WithValue(ctx, requestTraceContextKey{}, &requestTraceContext{trace: trace})
}

// RecordOutcome notes on the request's trace which operation ran and how it ended. A nil
// err records OutcomeOK, an error without a kind records "internal". Requests without a
// trace are ignored.
func RecordOutcome(ctx context.Context, operation string, err error) {
	rtc, ok := ctx.Value(requestTraceContextKey{}).(*requestTraceContext)
	if !ok || rtc.trace == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = "internal"
		if kind := models.KindOf(err); kind != "" {
			outcome = string(kind)
		}
	}
	rtc.mu.Lock()
	rtc.trace.Operation = operation
	rtc.trace.Outcome = outcome
	rtc.mu.Unlock()
}

func traceSnapshot(ctx context.Context) (string, string) {
	rtc, ok := ctx.Value(requestTraceContextKey{}).(*requestTraceContext)
	if !ok || rtc.trace == nil {
		return "", ""
	}
	rtc.mu.Lock()
	defer rtc.mu.Unlock()
	return rtc.trace.Operation, rtc.trace.Outcome
}
