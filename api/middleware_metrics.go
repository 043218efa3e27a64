package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SlowRequestThreshold is the duration above which a request is logged as slow
const SlowRequestThreshold = time.Second

// Middleware records a RequestTrace for every routed request. It must be installed with
// Router.Use so the matched route template is available.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if route == "/health" || route == "/api/v1/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		trace := &RequestTrace{
			RequestID: requestID,
			Method:    r.Method,
			Route:     route,
			StartTime: time.Now(),
		}
		r = r.WithContext(WithRequestTrace(r.Context(), trace))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		finished := *trace
		finished.Duration = time.Since(trace.StartTime)
		finished.Status = wrapped.statusCode
		finished.Operation, finished.Outcome = traceSnapshot(r.Context())
		mc.RecordTrace(finished)

		if finished.Duration > SlowRequestThreshold {
			zap.S().Warnw("slow request",
				"requestId", requestID,
				"method", r.Method,
				"route", route,
				"duration", finished.Duration,
				"status", finished.Status,
				"outcome", finished.Outcome)
		}
	})
}

// responseWriter captures the status code. It implements http.Hijacker so the live
// validation websocket can upgrade through it.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Hijack implements http.Hijacker
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		rw.statusCode = http.StatusSwitchingProtocols
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}
