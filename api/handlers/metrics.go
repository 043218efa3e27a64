package handlers

import (
	"net/http"
	"strconv"

	"github.com/linesmerrill/benefits-access-api/api"
)

// formatRouteMetrics converts duration fields to milliseconds for JSON serialization
func formatRouteMetrics(routes []api.RouteMetrics) []map[string]interface{} {
	result := make([]map[string]interface{}, len(routes))
	for i, route := range routes {
		result[i] = map[string]interface{}{
			"method":      route.Method,
			"route":       route.Route,
			"count":       route.Count,
			"errorCount":  route.ErrorCount,
			"avgTime":     route.AvgTime.Milliseconds(),
			"minTime":     route.MinTime.Milliseconds(),
			"maxTime":     route.MaxTime.Milliseconds(),
			"p50Time":     route.P50Time.Milliseconds(),
			"p95Time":     route.P95Time.Milliseconds(),
			"lastRequest": route.LastRequest,
		}
	}
	return result
}

// Metrics exported for testing purposes
type Metrics struct {
	Collector *api.MetricsCollector
}

// MetricsHandler returns the request summary, the slowest routes and the outcome counters
// per operation and error kind
func (m Metrics) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
		limit = parsed
	}

	writeOK(w, http.StatusOK, "metrics", map[string]interface{}{
		"summary":  m.Collector.GetSummary(),
		"routes":   formatRouteMetrics(m.Collector.GetSlowestRoutes(limit, 0)),
		"outcomes": m.Collector.Outcomes(),
	})
}
